package cohort

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/kaicode/barts-cohort-tool/cmd/cohort/datasource"
	"github.com/kaicode/barts-cohort-tool/cmd/cohort/terminology"
)

// Executor runs the generated aggregate statement against the warehouse.
type Executor interface {
	Execute(ctx context.Context, query string, params []any) ([]datasource.CohortRow, error)
}

// Expander resolves an ECL expression to its matching concept codes.
type Expander interface {
	ExpandCodes(ctx context.Context, ecl string, maxResults int) ([]terminology.Coding, error)
}

// Policy controls how the pipeline reacts to a warehouse that cannot be
// reached: degrade to an empty result view, or surface the failure.
type Policy struct {
	DegradeToEmpty bool
}

// Cap on codes pulled from the terminology server for one finding.
const expansionLimit = 1000

// CohortService runs the cohort pipeline: validate the definition, resolve
// finding code lists, build and execute the aggregate statement, reshape the
// rows and persist the definition. The steps run strictly sequentially and
// nothing is retried.
type CohortService struct {
	executor Executor
	expander Expander
	searches *SearchRepository
	policy   Policy
	log      zerolog.Logger
}

func NewCohortService(executor Executor, expander Expander, searches *SearchRepository, policy Policy, log zerolog.Logger) *CohortService {
	return &CohortService{
		executor: executor,
		expander: expander,
		searches: searches,
		policy:   policy,
		log:      log,
	}
}

// Select handles one submitted cohort definition and returns its aggregate
// result view.
func (s *CohortService) Select(ctx context.Context, def CohortDefinition) (CohortResultView, error) {
	if err := def.Validate(); err != nil {
		return CohortResultView{}, err
	}

	haveCodes, err := s.resolveFindingCodes(ctx, def.MustHaveFindings)
	if err != nil {
		return CohortResultView{}, err
	}
	notHaveCodes, err := s.resolveFindingCodes(ctx, def.MustNotHaveFindings)
	if err != nil {
		return CohortResultView{}, err
	}

	query, params := BuildQuery(def, haveCodes, notHaveCodes)
	s.log.Debug().
		Str("title", def.Title).
		Int("params", len(params)).
		Msg("Built cohort query")

	rows, err := s.executor.Execute(ctx, query, params)
	if err != nil {
		if errors.Is(err, datasource.ErrWarehouseUnavailable) && s.policy.DegradeToEmpty {
			s.log.Warn().Err(err).Msg("Warehouse unreachable, returning empty result view")
			rows = nil
		} else {
			return CohortResultView{}, err
		}
	}

	view := Aggregate(rows, def)

	// An unwritable saved-searches directory fails the whole request.
	if err := s.searches.Save(def); err != nil {
		return CohortResultView{}, err
	}

	return view, nil
}

// resolveFindingCodes flattens each finding's pre-expanded code list, in
// submission order. A finding submitted without one falls back to expanding
// "<<root" through the terminology server, the contract earlier clients used.
func (s *CohortService) resolveFindingCodes(ctx context.Context, findings []Finding) ([]string, error) {
	var codes []string
	for _, finding := range findings {
		if len(finding.CodesWithDetails) > 0 {
			for _, detail := range finding.CodesWithDetails {
				codes = append(codes, detail.Code)
			}
			continue
		}

		root, ok := finding.RootCode()
		if !ok {
			continue
		}
		expanded, err := s.expander.ExpandCodes(ctx, terminology.DescendantsAndSelf(root), expansionLimit)
		if err != nil {
			return nil, err
		}
		for _, coding := range expanded {
			codes = append(codes, coding.Code)
		}
	}
	return codes, nil
}
