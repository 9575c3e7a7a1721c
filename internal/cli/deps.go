package cli

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lazypower/statuscast/internal/engine"
	"github.com/lazypower/statuscast/internal/llm"
	"github.com/lazypower/statuscast/internal/store"
)

// openDB opens the configured database, resolving the default path.
func openDB() (*store.DB, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// newEngine wires the LLM client and engine from config.
func newEngine(db *store.DB) (*engine.Engine, error) {
	client, err := llm.NewClient(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("configure llm: %w", err)
	}
	logger.Info("llm configured", zap.String("provider", cfg.LLM.Provider), zap.String("model", cfg.LLM.Model))

	threshold := cfg.Context.Threshold
	return engine.New(db, client, logger, engine.Options{
		Threshold:         &threshold,
		HistoryCap:        cfg.Context.HistoryCap,
		CompletionTimeout: cfg.CompletionTimeout(),
		StrictOrdering:    cfg.Context.StrictOrdering,
		Params:            llm.Params{MaxTokens: cfg.LLM.MaxTokens, JSON: true},
	}), nil
}
