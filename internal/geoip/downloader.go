// Package geoip fetches and refreshes the MaxMind GeoLite2-City database
// that the fraud geolocation component reads.
package geoip

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const downloadURL = "https://download.maxmind.com/geoip/databases/GeoLite2-City/download?suffix=tar.gz"

// DatabaseName is the filename the resolver expects under the data directory.
const DatabaseName = "GeoLite2-City.mmdb"

// Downloader pulls the GeoLite2-City archive with MaxMind account
// credentials and installs the extracted .mmdb under DataDir.
type Downloader struct {
	AccountID  string
	LicenseKey string
	DataDir    string
}

// Status describes the installed database file, if any.
type Status struct {
	Exists       bool      `json:"exists"`
	Path         string    `json:"path"`
	FileSize     int64     `json:"file_size"`
	LastModified time.Time `json:"last_modified"`
}

func NewDownloader(accountID, licenseKey, dataDir string) *Downloader {
	return &Downloader{
		AccountID:  accountID,
		LicenseKey: licenseKey,
		DataDir:    dataDir,
	}
}

// Download fetches the current GeoLite2-City archive and replaces the
// installed database. The swap is a rename, so a resolver opened on the old
// file keeps working until the process reopens it.
func (d *Downloader) Download(ctx context.Context) error {
	if d.AccountID == "" || d.LicenseKey == "" {
		return fmt.Errorf("maxmind credentials not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}
	req.SetBasicAuth(d.AccountID, d.LicenseKey)

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download geolite archive: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: %s", resp.Status)
	}

	archive, err := os.CreateTemp(d.DataDir, "geoip-*.tar.gz")
	if err != nil {
		return fmt.Errorf("create temp archive: %w", err)
	}
	archivePath := archive.Name()
	defer os.Remove(archivePath)

	_, err = io.Copy(archive, resp.Body)
	archive.Close()
	if err != nil {
		return fmt.Errorf("save archive: %w", err)
	}

	extracted, err := d.extract(archivePath)
	if err != nil {
		return fmt.Errorf("extract database: %w", err)
	}

	final := filepath.Join(d.DataDir, DatabaseName)
	if err := os.Rename(extracted, final); err != nil {
		// Rename can fail across filesystems; fall back to a copy.
		if err := copyFile(extracted, final); err != nil {
			return fmt.Errorf("install database: %w", err)
		}
		os.Remove(extracted)
	}
	return nil
}

// extract pulls the single .mmdb entry out of the tar.gz archive.
func (d *Downloader) extract(archivePath string) (string, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return "", err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		if !strings.HasSuffix(header.Name, ".mmdb") {
			continue
		}

		out := filepath.Join(d.DataDir, DatabaseName+".tmp")
		f, err := os.Create(out)
		if err != nil {
			return "", err
		}
		_, err = io.Copy(f, tr)
		f.Close()
		if err != nil {
			os.Remove(out)
			return "", err
		}
		return out, nil
	}
	return "", fmt.Errorf("no .mmdb entry in archive")
}

// GetStatus reports whether the database is installed and how fresh it is.
func (d *Downloader) GetStatus() Status {
	path := filepath.Join(d.DataDir, DatabaseName)
	info, err := os.Stat(path)
	if err != nil {
		return Status{Exists: false, Path: path}
	}
	return Status{
		Exists:       true,
		Path:         path,
		FileSize:     info.Size(),
		LastModified: info.ModTime(),
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
