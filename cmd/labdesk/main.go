// Command labdesk serves the lab report assistant API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/factchecker/labdesk/internal/api"
	"github.com/factchecker/labdesk/internal/citation"
	"github.com/factchecker/labdesk/internal/config"
	"github.com/factchecker/labdesk/internal/database"
	"github.com/factchecker/labdesk/internal/llm"
	"github.com/factchecker/labdesk/internal/logging"
	"github.com/factchecker/labdesk/internal/orchestrator"
	"github.com/factchecker/labdesk/internal/session"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	generate := flag.Bool("generate-config", false, "write a sample configuration and exit")
	flag.Parse()

	if *generate {
		if err := config.GenerateSample(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Sample configuration written to %s\n", *configPath)
		return
	}

	// Missing .env is fine; the config file may reference plain env vars.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	closer := logging.Setup(cfg.Logging)
	defer closer.Close()

	if err := run(cfg); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
		closer.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	if dir := filepath.Dir(cfg.Database.Path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	store, err := database.NewStore(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	collab, err := llm.NewCollaborator(&cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to create collaborator: %w", err)
	}

	sess := session.New(store, cfg.Session.StorageKey)
	restoreCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if _, err := sess.Restore(restoreCtx); err != nil {
		log.Warn().Err(err).Msg("Starting with an empty session")
	}
	cancel()

	citer := citation.NewGenerator(&cfg.Citations)
	orch := orchestrator.New(sess, collab, citer, orchestrator.OptionsFrom(cfg))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	autosaveDone := make(chan struct{})
	go func() {
		defer close(autosaveDone)
		sess.Autosave(ctx, cfg.Session.AutosaveInterval)
	}()

	handler := api.NewHandler(sess, orch, citer, collab.Name())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewRouter(cfg, handler),
		ReadHeaderTimeout: 10 * time.Second,
		// Submits may wait on the collaborator for the full request timeout.
		WriteTimeout: cfg.LLM.RequestTimeout + 30*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Int("port", cfg.Server.Port).
			Str("provider", collab.Name()).
			Str("database", cfg.Database.Driver).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			stop()
			<-autosaveDone
			return err
		}
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Graceful shutdown failed")
	}

	stop()
	<-autosaveDone
	if sess.Dirty() {
		saveCtx, cancelSave := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelSave()
		if err := sess.Save(saveCtx); err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
	}
	return nil
}
