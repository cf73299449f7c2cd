// main is the entry point of the Warden membership registry.
// It wires configuration, logging, the journal, GeoIP lookup and the HTTP surface.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/warden/internal/config"
	"github.com/woozymasta/warden/internal/fake"
	"github.com/woozymasta/warden/internal/geoip"
	"github.com/woozymasta/warden/internal/logger"
	"github.com/woozymasta/warden/internal/maintenance"
	"github.com/woozymasta/warden/internal/registry"
	"github.com/woozymasta/warden/internal/server"
	"github.com/woozymasta/warden/internal/storage"
	"github.com/woozymasta/warden/internal/telemetry"
)

func main() {
	cfg := config.Parse()

	logger.Setup(cfg.Logger)
	log.Info().Msg("Starting warden service...")

	// Journal database
	store, err := storage.New(cfg.Storage.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize journal database")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing journal database")
		}
	}()

	// data generation or journal maintenance
	if cfg.Storage.GenerateCount > 0 {
		n := fake.GenerateEvents(store, cfg.Storage.GenerateCount, nil)
		log.Info().Int("events", n).Msg("Fake journal data generated")
		return
	} else if maintenance.Run(cfg, store) {
		return
	}

	journal := storage.NewJournal(store, cfg.Storage.QueueSize, cfg.Storage.Workers)
	journal.Start()

	var reg *registry.Registry
	metrics := telemetry.New(func() int {
		routable := 0
		for _, g := range reg.Gateways() {
			if g.Routable() {
				routable++
			}
		}
		return routable
	})

	options := []registry.Option{
		registry.WithListener(journal),
		registry.WithListener(metrics),
	}
	if geo := openGeoIP(cfg.GeoIP); geo != nil {
		defer func() {
			if err := geo.Close(); err != nil {
				log.Error().Err(err).Msg("Error closing GeoIP provider")
			}
		}()
		options = append(options, registry.WithCountryResolver(geo))
	}

	reg = registry.New(registry.Options{
		LivenessTimeout: cfg.Registry.LivenessTimeout,
		SweepInterval:   cfg.Registry.SweepInterval,
		SweepDelay:      cfg.Registry.SweepDelay,
	}, options...)
	reg.Start()

	srv := server.New(reg, store, metrics, cfg)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      srv.Run(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("Server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	srv.Stop()
	reg.Close()

	// drain pending journal writes before the deferred store close
	journal.Stop()

	log.Info().Msg("Server exited")
}

func openGeoIP(cfg config.GeoIP) *geoip.Provider {
	if cfg.Disable {
		log.Info().Msg("GeoIP disabled, country detection off")
		return nil
	}

	log.Info().Msg("Checking GeoIP database...")
	if err := geoip.EnsureDB(cfg.Path, cfg.URL, cfg.Interval); err != nil {
		log.Error().Err(err).Msg("Failed to download GeoIP database")
	}

	geo, err := geoip.Open(cfg.Path)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open GeoIP database, country detection disabled")
		return nil
	}

	return geo
}
