package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mido3801/pokedraft/internal/config"
	"github.com/mido3801/pokedraft/internal/filter"
	"github.com/mido3801/pokedraft/internal/httpapi"
	"github.com/mido3801/pokedraft/internal/hub"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := buildLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	catalog, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		log.Fatal("loading catalog", zap.Error(err))
	}
	log.Info("catalog loaded", zap.Int("species", len(catalog)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := hub.NewHub(ctx, catalog, log)
	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: httpapi.SetupRoutes(h, log),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		h.Inbox() <- hub.ShutdownHub{}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	return cfg.Build()
}

// loadCatalog reads the species list from a JSON file. Metadata acquisition
// is someone else's job; the file is the interchange point.
func loadCatalog(path string) ([]filter.Species, error) {
	if path == "" {
		return nil, errors.New("CATALOG_PATH is required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var catalog []filter.Species
	if err := json.Unmarshal(raw, &catalog); err != nil {
		return nil, err
	}
	return catalog, nil
}
