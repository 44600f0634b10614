package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/veridata/surveyguard/internal/api"
)

var (
	// Version information (set via ldflags)
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	// Global flags
	configPath string
	dataDir    string
	listenAddr string
)

var rootCmd = &cobra.Command{
	Use:   "surveyguard",
	Short: "Surveyguard - survey bot and fraud detection",
	Long: `Surveyguard scores survey sessions for automation and fraud.

It provides:
  - Behavioral analysis of keystroke, mouse, and timing telemetry
  - Text quality classification of open-ended responses
  - Cross-session fraud signals (IP reuse, device reuse, duplicates)
  - Grid and per-question timing checks
  - Hierarchical rollups per survey, platform, and respondent

Get started:
  surveyguard serve    # Start the server`,
	Run: func(cmd *cobra.Command, args []string) {
		serveCmd.Run(cmd, args)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("surveyguard %s (commit %s, built %s)\n", Version, Commit, BuildDate)
	},
}

func init() {
	api.Version = Version

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to JSON config file")
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data", "d", "", "Data directory for the database")
	rootCmd.PersistentFlags().StringVarP(&listenAddr, "listen", "l", "", "Address to listen on")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(geoipCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
