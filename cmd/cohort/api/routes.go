package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/kaicode/barts-cohort-tool/cmd/cohort/cohort"
	"github.com/kaicode/barts-cohort-tool/cmd/cohort/terminology"
	"github.com/kaicode/barts-cohort-tool/cmd/cohort/types"
)

// Router exposes the cohort pipeline and the SNOMED search endpoints the
// cohort form uses.
type Router struct {
	cohorts     *cohort.CohortService
	searches    *cohort.SearchRepository
	terminology *terminology.Client
	log         zerolog.Logger
}

func NewRouter(cohorts *cohort.CohortService, searches *cohort.SearchRepository, terminologyClient *terminology.Client, log zerolog.Logger) *Router {
	return &Router{
		cohorts:     cohorts,
		searches:    searches,
		terminology: terminologyClient,
		log:         log,
	}
}

func (router *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", router.handleRoot)

	r.Route("/api", func(r chi.Router) {
		r.Post("/cohort/select", router.handleCohortSelect)
		r.Get("/cohort/saved/{title}", router.handleSavedSearch)
		r.Get("/snomed/search", router.handleSnomedSearch)
		r.Get("/snomed/search-findings", router.handleSearchFindings)
		r.Get("/snomed/search-procedures", router.handleSearchProcedures)
		r.Get("/snomed/count-descendants-and-self", router.handleCountDescendants)
	})

	return r
}

func (router *Router) handleRoot(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "API root"})
}

func (router *Router) handleCohortSelect(w http.ResponseWriter, r *http.Request) {
	var def cohort.CohortDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid cohort definition: "+err.Error())
		return
	}

	view, err := router.cohorts.Select(r.Context(), def)
	if err != nil {
		router.log.Error().Err(err).Str("title", def.Title).Msg("Cohort selection failed")
		respondWithError(w, statusForError(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, view)
}

func (router *Router) handleSavedSearch(w http.ResponseWriter, r *http.Request) {
	title := chi.URLParam(r, "title")

	def, err := router.searches.Load(title)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "no saved search for title "+title)
		return
	}

	respondWithJSON(w, http.StatusOK, def)
}

func (router *Router) handleSnomedSearch(w http.ResponseWriter, r *http.Request) {
	ecl := r.URL.Query().Get("ecl")
	term := r.URL.Query().Get("term")
	router.expand(w, r, ecl, term)
}

func (router *Router) handleSearchFindings(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("term")
	router.expand(w, r, terminology.Descendants(terminology.ClinicalFindingRoot), term)
}

func (router *Router) handleSearchProcedures(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("term")
	router.expand(w, r, terminology.Descendants(terminology.ProcedureRoot), term)
}

func (router *Router) handleCountDescendants(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		respondWithError(w, http.StatusBadRequest, "code parameter is required")
		return
	}

	valueSet, err := router.terminology.Expand(r.Context(), terminology.DescendantsAndSelf(code), "", 0)
	if err != nil {
		router.log.Error().Err(err).Str("code", code).Msg("Descendant count failed")
		respondWithError(w, statusForError(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, valueSet)
}

func (router *Router) expand(w http.ResponseWriter, r *http.Request, ecl, term string) {
	if ecl == "" {
		respondWithError(w, http.StatusBadRequest, "ecl parameter is required")
		return
	}

	valueSet, err := router.terminology.Expand(r.Context(), ecl, term, -1)
	if err != nil {
		router.log.Error().Err(err).Str("ecl", ecl).Msg("SNOMED search failed")
		respondWithError(w, statusForError(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, valueSet)
}

func statusForError(err error) int {
	var validationErr *types.ValidationError
	var transportErr *types.TransportError
	var persistenceErr *types.PersistenceError

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &transportErr):
		return http.StatusBadGateway
	case errors.As(err, &persistenceErr):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func respondWithJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondWithError(w http.ResponseWriter, status int, message string) {
	respondWithJSON(w, status, map[string]string{"error": message})
}
