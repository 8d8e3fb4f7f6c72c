package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lazypower/homeostat/internal/config"
	"github.com/lazypower/homeostat/internal/logging"
)

var (
	cfgPath   string
	daemonURL string
	cfg       *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "homeostat",
	Short: "Affective regulation engine for autonomous agents",
	Long: "Homeostat keeps a decaying neurochemical state (drives, energy, fatigue, pain) " +
		"that shapes an agent's behaviour, and consolidates it during sleep.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(c.DataDir, 0755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
		logging.Setup(c.Log, cmd.ErrOrStderr())
		cfg = c
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&daemonURL, "url", "", "daemon URL (default from server config)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(manifestCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(tickCmd)
	rootCmd.AddCommand(stimulateCmd)
	rootCmd.AddCommand(skillCmd)
	rootCmd.AddCommand(resourceCmd)
	rootCmd.AddCommand(sleepCmd)
	rootCmd.AddCommand(journalCmd)
	rootCmd.AddCommand(checkpointCmd)
	rootCmd.AddCommand(exportCmd)
}
