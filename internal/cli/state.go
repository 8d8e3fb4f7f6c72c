package cli

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lazypower/homeostat/internal/engine"
	"github.com/lazypower/homeostat/internal/server"
	"github.com/lazypower/homeostat/internal/store"
)

// nowFunc is the clock for local operations.
var nowFunc = time.Now

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Print the current manifest (records a plasticity sample)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if c := daemon(cmd.Context()); c != nil {
			m, err := c.Manifest(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(out(cmd), m)
		}
		return withEngine(func(eng *engine.Engine) error {
			return printJSON(out(cmd), eng.Manifest())
		})
	},
}

var stateJSON bool

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show the full state",
	RunE: func(cmd *cobra.Command, args []string) error {
		var st server.StateResponse
		if c := daemon(cmd.Context()); c != nil {
			var err error
			if st, err = c.State(cmd.Context()); err != nil {
				return err
			}
		} else {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			st = server.StateResponse{State: eng.State(), Stats: eng.Stats()}
		}
		if stateJSON {
			return printJSON(out(cmd), st)
		}
		printState(cmd, st.State)
		return nil
	},
}

func printState(cmd *cobra.Command, s engine.State) {
	w := out(cmd)
	fmt.Fprintf(w, "updated %s\n\n", humanize.Time(s.LastUpdate))
	fmt.Fprintf(w, "%-16s %6s %6s\n", "drive", "level", "base")
	for _, c := range engine.Chemicals() {
		fmt.Fprintf(w, "%-16s %6.2f %6.2f\n", c, s.Chemicals[c], s.Baselines[c])
	}
	fmt.Fprintf(w, "\nenergy %.1f  fatigue %.3f  pain %.2f\n", s.Energy, s.Fatigue, s.Pain)
	fmt.Fprintf(w, "events %d  plasticity samples %d  journal entries %d\n",
		s.EventCount, s.PlasticitySamples, len(s.Journal))

	skills := slices.Sorted(maps.Keys(s.Skills))
	if len(skills) > 0 {
		fmt.Fprintln(w, "\nskills:")
		for _, k := range skills {
			fmt.Fprintf(w, "  %-20s %.3f\n", k, s.Skills[k])
		}
	}
}

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Apply the time elapsed since the last update",
	RunE: func(cmd *cobra.Command, args []string) error {
		if c := daemon(cmd.Context()); c != nil {
			t, err := c.Tick(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "applied %.1fs\n", t.Elapsed)
			return nil
		}
		eng, err := openEngine()
		if err != nil {
			return err
		}
		fmt.Fprintf(out(cmd), "applied %.1fs\n", eng.Tick(nowFunc()))
		return eng.Flush()
	},
}

var stimulateCmd = &cobra.Command{
	Use:   "stimulate <kind> <intensity>",
	Short: "Apply a stimulus (comfort, hostile, achievement, pain, adrenaline)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		intensity, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("intensity: %w", err)
		}
		if c := daemon(cmd.Context()); c != nil {
			res, err := c.Stimulate(cmd.Context(), args[0], intensity)
			if err != nil {
				return err
			}
			return printJSON(out(cmd), res)
		}
		kind, err := engine.ParseStimulus(args[0])
		if err != nil {
			return err
		}
		return withEngine(func(eng *engine.Engine) error {
			res, err := eng.Stimulate(kind, intensity)
			if err != nil {
				return err
			}
			return printJSON(out(cmd), res)
		})
	},
}

var skillCmd = &cobra.Command{
	Use:   "skill <id> [cost]",
	Short: "Spend energy on a skill",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cost := engine.DefaultSkillCost
		if len(args) == 2 {
			v, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("cost: %w", err)
			}
			cost = v
		}
		if c := daemon(cmd.Context()); c != nil {
			res, err := c.UseSkill(cmd.Context(), args[0], cost)
			if err != nil {
				return err
			}
			return printJSON(out(cmd), res)
		}
		return withEngine(func(eng *engine.Engine) error {
			res, err := eng.UseSkill(args[0], cost)
			if err != nil {
				return err
			}
			return printJSON(out(cmd), res)
		})
	},
}

var resourceCmd = &cobra.Command{
	Use:   "resource <class>",
	Short: "Charge a resource class (agile, base, coder, cloud)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if c := daemon(cmd.Context()); c != nil {
			res, err := c.UseResource(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(out(cmd), res)
		}
		return withEngine(func(eng *engine.Engine) error {
			res, err := eng.UseResource(args[0])
			if err != nil {
				return err
			}
			return printJSON(out(cmd), res)
		})
	},
}

var sleepCmd = &cobra.Command{
	Use:   "sleep",
	Short: "Run a consolidation cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		if c := daemon(cmd.Context()); c != nil {
			rep, err := c.Consolidate(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(out(cmd), rep.Summary)
			return nil
		}

		ledger, err := openLedger()
		if err != nil {
			return err
		}
		if ledger != nil {
			defer ledger.Close()
		}
		return withEngine(func(eng *engine.Engine) error {
			rep, err := newRegulator(eng, ledger, oracle()).Sleep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(out(cmd), rep.Summary)
			if rep.Journal != nil {
				fmt.Fprintf(out(cmd), "\n%s\n", rep.Journal.Text)
			}
			return nil
		})
	},
}

var journalLimit int

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Show recent journal entries, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		var entries []engine.JournalEntry
		if c := daemon(cmd.Context()); c != nil {
			resp, err := c.Journal(cmd.Context(), journalLimit)
			if err != nil {
				return err
			}
			entries = resp.Entries
		} else {
			var err error
			if entries, err = localJournal(journalLimit); err != nil {
				return err
			}
		}
		if len(entries) == 0 {
			fmt.Fprintln(out(cmd), "No journal entries yet.")
			return nil
		}
		for _, j := range entries {
			fmt.Fprintf(out(cmd), "## %s\n%s\n\n", j.Date, j.Text)
		}
		return nil
	},
}

// localJournal reads the ledger when enabled, otherwise the state file.
func localJournal(limit int) ([]engine.JournalEntry, error) {
	ledger, err := openLedger()
	if err != nil {
		return nil, err
	}
	if ledger != nil {
		defer ledger.Close()
		recs, err := ledger.ListJournal(limit)
		if err != nil {
			return nil, err
		}
		out := make([]engine.JournalEntry, len(recs))
		for i, r := range recs {
			out[i] = engine.JournalEntry{Date: r.Date, Text: r.Text, Baselines: r.Baselines}
		}
		return out, nil
	}

	snap, err := loadSnapshot()
	if err != nil {
		return nil, err
	}
	var out []engine.JournalEntry
	for i := len(snap.Journal) - 1; i >= 0 && len(out) < limit; i-- {
		j := snap.Journal[i]
		out = append(out, engine.JournalEntry{Date: j.Date, Text: j.Text, Baselines: j.Baselines})
	}
	return out, nil
}

// loadSnapshot reads the state file as-is. A missing file is an empty
// snapshot.
func loadSnapshot() (*store.Snapshot, error) {
	var snap store.Snapshot
	err := store.NewFileStore(cfg.State.File).Load(&snap)
	if err != nil && !errors.Is(err, store.ErrNoSnapshot) {
		return nil, fmt.Errorf("read state: %w", err)
	}
	return &snap, nil
}

func init() {
	stateCmd.Flags().BoolVar(&stateJSON, "json", false, "print as JSON")
	journalCmd.Flags().IntVarP(&journalLimit, "limit", "n", 10, "maximum entries")
}
