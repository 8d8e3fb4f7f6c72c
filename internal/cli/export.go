package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/lazypower/homeostat/internal/store"
	"github.com/lazypower/homeostat/internal/telemetry"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:       "export <plasticity|events|journal>",
	Short:     "Export persisted history as CSV",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"plasticity", "events", "journal"},
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		w := out(cmd)
		if exportOut != "" && exportOut != "-" {
			f, err := os.Create(exportOut)
			if err != nil {
				return fmt.Errorf("create %s: %w", exportOut, err)
			}
			defer func() {
				if cerr := f.Close(); err == nil {
					err = cerr
				}
			}()
			w = f
		}
		return export(w, args[0])
	},
}

func export(w io.Writer, what string) error {
	if what == "journal" {
		entries, err := localJournal(1 << 30)
		if err != nil {
			return err
		}
		rows := make([]store.JournalEntry, len(entries))
		for i, j := range entries {
			rows[i] = store.JournalEntry{Date: j.Date, Text: j.Text, Baselines: j.Baselines}
		}
		return telemetry.WriteJournal(w, rows)
	}

	snap, err := loadSnapshot()
	if err != nil {
		return err
	}
	switch what {
	case "plasticity":
		return telemetry.WritePlasticity(w, snap)
	case "events":
		return telemetry.WriteEvents(w, snap)
	}
	return fmt.Errorf("unknown export %q", what)
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default stdout)")
}
