// Package settings manages runtime-tunable detection thresholds stored in
// the database, so operators can recalibrate scoring without a restart.
package settings

import (
	"database/sql"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/veridata/surveyguard/internal/config"
)

// Keys recognized for runtime threshold overrides. Anything else is rejected
// so typos do not silently become dead settings.
var knownKeys = map[string]bool{
	"composite_bot_threshold":  true,
	"behavioral_bot_threshold": true,
	"duplicate_threshold":      true,
	"speeder_ms":               true,
	"flatliner_ms":             true,
	"anomaly_z":                true,
	"grid_straightline_share":  true,
	"min_response_length":      true,
	"adaptive_timing_enabled":  true,
	"adaptive_timing_k":        true,
}

// IsKnown reports whether key is a recognized override.
func IsKnown(key string) bool {
	return knownKeys[key]
}

// Service reads and writes threshold overrides in the settings table,
// keeping a read-through cache in front of the database.
type Service struct {
	db *sql.DB

	mu        sync.RWMutex
	overrides map[string]string
}

// New creates the settings service.
func New(db *sql.DB) *Service {
	return &Service{db: db, overrides: make(map[string]string)}
}

// Get returns the stored value for key, or the empty string when unset.
func (s *Service) Get(key string) (string, error) {
	s.mu.RLock()
	cached, hit := s.overrides[key]
	s.mu.RUnlock()
	if hit {
		return cached, nil
	}

	var value string
	switch err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value); {
	case errors.Is(err, sql.ErrNoRows):
		return "", nil
	case err != nil:
		return "", err
	}

	s.mu.Lock()
	s.overrides[key] = value
	s.mu.Unlock()
	return value, nil
}

// Set stores an override and refreshes the cache.
func (s *Service) Set(key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO settings (key, value, updated_at) VALUES (?, ?, ?)`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.overrides[key] = value
	s.mu.Unlock()
	return nil
}

// Delete removes an override, falling back to the configured default.
func (s *Service) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM settings WHERE key = ?`, key); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.overrides, key)
	s.mu.Unlock()
	return nil
}

// GetAll returns every stored override.
func (s *Service) GetAll() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, rows.Err()
}

// ClearCache drops the read-through cache; the next Get hits the database.
func (s *Service) ClearCache() {
	s.mu.Lock()
	s.overrides = make(map[string]string)
	s.mu.Unlock()
}

// GetFloat returns key parsed as a float, or fallback when unset or
// unparseable.
func (s *Service) GetFloat(key string, fallback float64) float64 {
	raw, err := s.Get(key)
	if err != nil || raw == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return f
}

// GetInt returns key parsed as an integer, or fallback.
func (s *Service) GetInt(key string, fallback int) int {
	raw, err := s.Get(key)
	if err != nil || raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// GetBool returns key as a boolean, or fallback. "true", "1", and "yes"
// count as true.
func (s *Service) GetBool(key string, fallback bool) bool {
	raw, err := s.Get(key)
	if err != nil || raw == "" {
		return fallback
	}
	return raw == "true" || raw == "1" || raw == "yes"
}

// ApplyTo overlays the stored overrides onto cfg. Called at startup and
// after an update.
func (s *Service) ApplyTo(cfg *config.Config) {
	cfg.CompositeBotThreshold = s.GetFloat("composite_bot_threshold", cfg.CompositeBotThreshold)
	cfg.BehavioralBotThreshold = s.GetFloat("behavioral_bot_threshold", cfg.BehavioralBotThreshold)
	cfg.DuplicateThreshold = s.GetFloat("duplicate_threshold", cfg.DuplicateThreshold)
	cfg.SpeederMs = s.GetFloat("speeder_ms", cfg.SpeederMs)
	cfg.FlatlinerMs = s.GetFloat("flatliner_ms", cfg.FlatlinerMs)
	cfg.AnomalyZ = s.GetFloat("anomaly_z", cfg.AnomalyZ)
	cfg.GridStraightlineShare = s.GetFloat("grid_straightline_share", cfg.GridStraightlineShare)
	cfg.MinResponseLengthChars = s.GetInt("min_response_length", cfg.MinResponseLengthChars)
	cfg.AdaptiveTimingEnabled = s.GetBool("adaptive_timing_enabled", cfg.AdaptiveTimingEnabled)
	cfg.AdaptiveTimingK = s.GetFloat("adaptive_timing_k", cfg.AdaptiveTimingK)
}
