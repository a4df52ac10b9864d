package terminology

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/kaicode/barts-cohort-tool/cmd/cohort/types"
)

// Client queries a FHIR terminology server's ValueSet $expand operation,
// authenticating through an OAuth2 client-credentials exchange.
type Client struct {
	baseURL      string
	authServer   string
	clientID     string
	clientSecret string
	httpClient   *http.Client

	tokenMu       sync.Mutex
	bearerToken   string
	tokenDeadline time.Time

	log zerolog.Logger
}

type ClientConfig struct {
	BaseURL      string
	AuthServer   string
	ClientID     string
	ClientSecret string
	// RetryMax is passed through to the underlying HTTP client. The cohort
	// pipeline runs with 0: no operation is retried automatically.
	RetryMax int
	Timeout  time.Duration
}

func NewClient(config ClientConfig, log zerolog.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = config.RetryMax
	retryClient.Logger = nil
	retryClient.HTTPClient = &http.Client{Timeout: config.Timeout}

	return &Client{
		baseURL:      strings.TrimSuffix(config.BaseURL, "/"),
		authServer:   config.AuthServer,
		clientID:     config.ClientID,
		clientSecret: config.ClientSecret,
		httpClient:   retryClient.StandardClient(),
		log:          log,
	}
}

// Expand runs the implicit-ValueSet expansion for an ECL expression, see
// https://snomed.org/ecl. The expression grammar is passed through untouched:
// "<<X" selects X and its descendants, "<X" strictly the descendants.
// A negative count leaves the result size to the server's default; count=0
// asks for the total only.
func (c *Client) Expand(ctx context.Context, ecl, termFilter string, count int) (*ValueSet, error) {
	endpoint := fmt.Sprintf("%s/ValueSet/$expand?url=http://snomed.info/sct?fhir_vs=ecl/%s&filter=%s",
		c.baseURL, url.QueryEscape(ecl), url.QueryEscape(termFilter))
	if count >= 0 {
		endpoint = fmt.Sprintf("%s&count=%d", endpoint, count)
	}

	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create expand request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &types.TransportError{Op: "valueset expand", Err: err}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read expand response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &types.TransportError{
			Op:  "valueset expand",
			Err: fmt.Errorf("terminology server returned status %d: %s", resp.StatusCode, string(bodyBytes)),
		}
	}

	var valueSet ValueSet
	if err := json.Unmarshal(bodyBytes, &valueSet); err != nil {
		return nil, fmt.Errorf("failed to decode ValueSet: %w", err)
	}

	c.log.Debug().
		Str("ecl", ecl).
		Int("contains", len(valueSetContains(&valueSet))).
		Msg("Expanded ValueSet")

	return &valueSet, nil
}

// ExpandCodes returns the flat list of codings an ECL expression matches, in
// the order the terminology server listed them.
func (c *Client) ExpandCodes(ctx context.Context, ecl string, maxResults int) ([]Coding, error) {
	valueSet, err := c.Expand(ctx, ecl, "", maxResults)
	if err != nil {
		return nil, err
	}
	return valueSetContains(valueSet), nil
}

// CountDescendantsAndSelf reports how many concepts "<<code" covers without
// transferring them.
func (c *Client) CountDescendantsAndSelf(ctx context.Context, code string) (int, error) {
	valueSet, err := c.Expand(ctx, DescendantsAndSelf(code), "", 0)
	if err != nil {
		return 0, err
	}
	if valueSet.Expansion == nil {
		return 0, nil
	}
	return valueSet.Expansion.Total, nil
}

func valueSetContains(valueSet *ValueSet) []Coding {
	if valueSet == nil || valueSet.Expansion == nil {
		return nil
	}
	return valueSet.Expansion.Contains
}
