package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/veridata/surveyguard/internal/config"
	"github.com/veridata/surveyguard/internal/geoip"
)

var geoipCmd = &cobra.Command{
	Use:   "geoip",
	Short: "Manage the GeoLite2 database used for geolocation checks",
}

var geoipDownloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download the GeoLite2-City database from MaxMind",
	Long: `Downloads the GeoLite2-City database into the data directory.

Requires MaxMind credentials in the environment:
  SURVEYGUARD_MAXMIND_ACCOUNT_ID
  SURVEYGUARD_MAXMIND_LICENSE_KEY`,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newGeoIPDownloader()
		if err != nil {
			return err
		}
		fmt.Println("Downloading GeoLite2-City database...")
		if err := d.Download(cmd.Context()); err != nil {
			return err
		}
		status := d.GetStatus()
		fmt.Printf("Installed %s (%.1f MB)\n", status.Path, float64(status.FileSize)/(1024*1024))
		return nil
	},
}

var geoipStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the installed GeoLite2 database status",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newGeoIPDownloader()
		if err != nil {
			return err
		}
		status := d.GetStatus()
		if !status.Exists {
			fmt.Printf("No database at %s\n", status.Path)
			fmt.Println("Run 'surveyguard geoip download' to install it.")
			return nil
		}
		fmt.Printf("Path:     %s\n", status.Path)
		fmt.Printf("Size:     %.1f MB\n", float64(status.FileSize)/(1024*1024))
		fmt.Printf("Modified: %s\n", status.LastModified.Format("2006-01-02 15:04:05"))
		return nil
	},
}

func newGeoIPDownloader() (*geoip.Downloader, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return geoip.NewDownloader(
		os.Getenv("SURVEYGUARD_MAXMIND_ACCOUNT_ID"),
		os.Getenv("SURVEYGUARD_MAXMIND_LICENSE_KEY"),
		cfg.DataDir,
	), nil
}

func init() {
	geoipCmd.AddCommand(geoipDownloadCmd)
	geoipCmd.AddCommand(geoipStatusCmd)
}
