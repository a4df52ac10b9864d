package cohort

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kaicode/barts-cohort-tool/cmd/cohort/types"
)

// SavedSearch wraps a stored definition with bookkeeping metadata.
type SavedSearch struct {
	ID         uuid.UUID        `json:"id"`
	SavedAt    time.Time        `json:"savedAt"`
	Definition CohortDefinition `json:"definition"`
}

// SearchRepository persists submitted cohort definitions as one JSON file
// per title under a configured directory.
type SearchRepository struct {
	dir string
	log zerolog.Logger
}

func NewSearchRepository(dir string, log zerolog.Logger) (*SearchRepository, error) {
	if dir == "" {
		return nil, fmt.Errorf("saved searches directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create saved searches directory: %w", err)
	}
	return &SearchRepository{dir: dir, log: log}, nil
}

// Save writes the definition under its title, spaces replaced with
// underscores. An existing file for the same title is replaced silently.
func (r *SearchRepository) Save(def CohortDefinition) error {
	saved := SavedSearch{
		ID:         uuid.New(),
		SavedAt:    time.Now().UTC(),
		Definition: def,
	}

	data, err := json.MarshalIndent(saved, "", "  ")
	if err != nil {
		return &types.PersistenceError{Path: r.pathForTitle(def.Title), Err: err}
	}

	path := r.pathForTitle(def.Title)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return &types.PersistenceError{Path: path, Err: err}
	}

	r.log.Info().
		Str("title", def.Title).
		Str("file", path).
		Msg("Saved cohort definition")

	return nil
}

// Load reads back the definition previously saved under title.
func (r *SearchRepository) Load(title string) (CohortDefinition, error) {
	path := r.pathForTitle(title)

	data, err := os.ReadFile(path)
	if err != nil {
		return CohortDefinition{}, &types.PersistenceError{Path: path, Err: err}
	}

	var saved SavedSearch
	if err := json.Unmarshal(data, &saved); err != nil {
		return CohortDefinition{}, &types.PersistenceError{Path: path, Err: err}
	}

	return saved.Definition, nil
}

func (r *SearchRepository) pathForTitle(title string) string {
	filename := strings.ReplaceAll(title, " ", "_") + ".json"
	return filepath.Join(r.dir, filename)
}
