package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lazypower/homeostat/internal/checkpoint"
	"github.com/lazypower/homeostat/internal/telemetry"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Save, restore and list state archives",
}

var checkpointSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Archive the state and task files now",
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			rep checkpoint.Report
			err error
		)
		if c := daemon(cmd.Context()); c != nil {
			rep, err = c.SaveCheckpoint(cmd.Context())
		} else {
			rep, err = newCheckpoints().Save(nowFunc())
			telemetry.RecordCheckpoint("save", len(rep.Failed), err)
		}
		if err != nil {
			return err
		}
		printReport(cmd, "saved", rep)
		return nil
	},
}

var checkpointRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Overwrite the live files with the newest archive",
	Long:  "Restore refuses to run while a daemon is serving, since the daemon would overwrite the restored state.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if daemon(cmd.Context()) != nil {
			return fmt.Errorf("daemon is running; stop it or use serve --restore")
		}
		rep, err := newCheckpoints().RestoreLatest()
		telemetry.RecordCheckpoint("restore", len(rep.Failed), err)
		if errors.Is(err, checkpoint.ErrNoCheckpoints) {
			fmt.Fprintln(out(cmd), "No checkpoints to restore.")
			return nil
		}
		if err != nil {
			return err
		}
		printReport(cmd, "restored", rep)
		return nil
	},
}

var checkpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archives, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := newCheckpoints().List()
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Fprintln(out(cmd), "No checkpoints.")
			return nil
		}
		for _, cp := range list {
			fmt.Fprintf(out(cmd), "%-24s %-14s %8s  %s\n",
				cp.Name, humanize.Time(cp.ModTime), humanize.Bytes(uint64(cp.Size)), strings.Join(cp.Files, ", "))
		}
		return nil
	},
}

func printReport(cmd *cobra.Command, verb string, rep checkpoint.Report) {
	w := out(cmd)
	fmt.Fprintf(w, "%s %s: %d copied", verb, rep.Checkpoint, len(rep.Copied))
	if len(rep.Skipped) > 0 {
		fmt.Fprintf(w, ", %d missing (%s)", len(rep.Skipped), strings.Join(rep.Skipped, ", "))
	}
	fmt.Fprintln(w)
	for name, msg := range rep.Failed {
		fmt.Fprintf(w, "  failed %s: %s\n", name, msg)
	}
}

func init() {
	checkpointCmd.AddCommand(checkpointSaveCmd)
	checkpointCmd.AddCommand(checkpointRestoreCmd)
	checkpointCmd.AddCommand(checkpointListCmd)
}
