package main

import (
	"net/http"
	"os"

	"github.com/rs/zerolog"

	"github.com/kaicode/barts-cohort-tool/cmd/cohort/api"
	"github.com/kaicode/barts-cohort-tool/cmd/cohort/cohort"
	"github.com/kaicode/barts-cohort-tool/cmd/cohort/config"
	"github.com/kaicode/barts-cohort-tool/cmd/cohort/datasource"
	"github.com/kaicode/barts-cohort-tool/cmd/cohort/terminology"
	"github.com/kaicode/barts-cohort-tool/util"
)

func main() {
	log := zerolog.New(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) { w.Out = os.Stdout })).With().Timestamp().Caller().Logger()
	log.Info().Msg("Starting cohort service")

	cfg, err := config.ReadFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read configuration")
	}

	terminologyClient := terminology.NewClient(terminology.ClientConfig{
		BaseURL:      cfg.Terminology.BaseURL,
		AuthServer:   cfg.Terminology.AuthServer,
		ClientID:     cfg.Terminology.ClientID,
		ClientSecret: cfg.Terminology.ClientSecret,
		RetryMax:     cfg.Terminology.RetryMax,
	}, log)

	warehouse := datasource.NewWarehouseService(cfg.Warehouse.DSN, log)

	searches, err := cohort.NewSearchRepository(util.GetAbsolutePath(cfg.API.SavedSearchesDir), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize saved searches directory")
	}

	cohorts := cohort.NewCohortService(warehouse, terminologyClient, searches,
		cohort.Policy{DegradeToEmpty: cfg.Warehouse.DegradeToEmpty}, log)

	router := api.NewRouter(cohorts, searches, terminologyClient, log)

	addr := ":" + cfg.API.Port
	log.Info().Str("addr", addr).Msg("Listening")
	if err := http.ListenAndServe(addr, router.Handler()); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}
