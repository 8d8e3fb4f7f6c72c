package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/lazypower/homeostat/internal/checkpoint"
	"github.com/lazypower/homeostat/internal/client"
	"github.com/lazypower/homeostat/internal/engine"
	"github.com/lazypower/homeostat/internal/executive"
	"github.com/lazypower/homeostat/internal/llm"
	"github.com/lazypower/homeostat/internal/regulator"
	"github.com/lazypower/homeostat/internal/store"
)

// daemon returns a client for the running daemon, or nil when none answers.
func daemon(ctx context.Context) *client.Client {
	url := daemonURL
	if url == "" {
		url = cfg.BaseURL()
	}
	c := client.New(url)
	if !c.Healthy(ctx) {
		slog.Debug("no daemon, operating on the state file", "url", url)
		return nil
	}
	return c
}

func openEngine() (*engine.Engine, error) {
	fs := store.NewFileStore(cfg.State.File)
	fs.BackupEvery = cfg.State.BackupEvery
	eng, err := engine.New(fs, engine.WithParams(cfg.Physiology))
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}
	return eng, nil
}

// openLedger returns nil without error when the ledger is disabled.
func openLedger() (*store.DB, error) {
	if !cfg.Ledger.Enabled {
		return nil, nil
	}
	db, err := store.Open(cfg.Ledger.Path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return db, nil
}

// oracle returns nil when no provider is configured or it cannot be built.
func oracle() llm.Client {
	if cfg.LLM.Provider == "" {
		return nil
	}
	c, err := llm.NewClient(cfg.LLM)
	if err != nil {
		slog.Warn("LLM not configured, oracles disabled", "err", err)
		return nil
	}
	return c
}

func newRegulator(eng *engine.Engine, ledger *store.DB, oc llm.Client) *regulator.Regulator {
	r := &regulator.Regulator{Engine: eng}
	if oc != nil {
		r.Classifier = &regulator.LLMClassifier{Client: oc}
		r.Reflector = &regulator.LLMReflector{Client: oc}
	}
	if ledger != nil {
		r.Ledger = ledger
	}
	return r
}

func newFilter(oc llm.Client) *executive.Filter {
	return executive.New(oc, cfg.Executive.CortisolThreshold)
}

func newCheckpoints() *checkpoint.Manager {
	return checkpoint.New(checkpoint.Config{
		Root:      cfg.Checkpoint.Dir,
		StateFile: cfg.State.File,
		Siblings:  cfg.Checkpoint.Siblings,
		Every:     cfg.Checkpoint.Every,
		Keep:      cfg.Checkpoint.Keep,
	})
}

// withEngine opens the state file, brings it up to date, runs fn and
// flushes the result.
func withEngine(fn func(eng *engine.Engine) error) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	eng.Tick(nowFunc())
	if err := fn(eng); err != nil {
		return err
	}
	return eng.Flush()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
