package datasource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/kaicode/barts-cohort-tool/cmd/cohort/types"
)

// ErrWarehouseUnavailable marks a failure to reach the warehouse at all, as
// opposed to a failure while running the statement. No partial execution is
// possible in that case.
var ErrWarehouseUnavailable = errors.New("warehouse unavailable")

// CohortRow is one group of the warehouse aggregate: one row per distinct
// combination of gender, ethnicity, diagnosis, admission date and birth year.
type CohortRow struct {
	AdmissionDate    time.Time `db:"admission_date" json:"admissionDate"`
	Gender           string    `db:"gender" json:"gender"`
	Ethnicity        string    `db:"ethnicity" json:"ethnicity"`
	DiagnosisCode    string    `db:"diagnosis_code" json:"diagnosisCode"`
	DiagnosisDisplay string    `db:"diagnosis_display" json:"diagnosisDisplay"`
	YearOfBirth      int       `db:"year_of_birth" json:"yearOfBirth"`
	Count            int       `db:"patient_count" json:"count"`
}

// WarehouseService runs cohort aggregate statements against the clinical
// data warehouse. Each call opens and releases its own scoped connection;
// nothing is pooled across requests.
type WarehouseService struct {
	dsn string
	log zerolog.Logger
}

func NewWarehouseService(dsn string, log zerolog.Logger) *WarehouseService {
	return &WarehouseService{dsn: dsn, log: log}
}

// Execute connects to the warehouse, rebinds the statement's '?'
// placeholders to the driver's bindvar style, binds the parameters
// positionally and reads every row. The connection is released whether or
// not the statement succeeds.
func (svc *WarehouseService) Execute(ctx context.Context, query string, params []any) ([]CohortRow, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", svc.dsn)
	if err != nil {
		return nil, &types.TransportError{
			Op:  "warehouse connect",
			Err: fmt.Errorf("%w: %v", ErrWarehouseUnavailable, err),
		}
	}
	defer db.Close()

	rows, err := db.QueryxContext(ctx, db.Rebind(query), params...)
	if err != nil {
		return nil, fmt.Errorf("error executing cohort query: %w", err)
	}
	defer rows.Close()

	var results []CohortRow
	for rows.Next() {
		var row CohortRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("error scanning cohort row: %w", err)
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading cohort rows: %w", err)
	}

	svc.log.Debug().Int("rows", len(results)).Msg("Executed cohort query")

	return results, nil
}
