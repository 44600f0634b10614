package config

import "sync/atomic"

// Clone returns a copy safe to overlay scalar overrides onto. Slice and map
// fields are shared with the original; they are never written after load.
func (c *Config) Clone() *Config {
	dup := *c
	return &dup
}

// Store publishes the live configuration to concurrent readers. Every reader
// takes an immutable snapshot per operation; runtime setting updates build a
// fresh snapshot from the base and swap it in atomically, so the fields of a
// published Config are never written.
type Store struct {
	base    *Config
	current atomic.Pointer[Config]
}

// NewStore publishes base as the initial snapshot.
func NewStore(base *Config) *Store {
	s := &Store{base: base}
	s.current.Store(base)
	return s
}

// Current returns the live snapshot. Callers must not mutate it.
func (s *Store) Current() *Config {
	return s.current.Load()
}

// Base returns a mutable clone of the startup configuration, before any
// runtime overrides. Deleted overrides revert by rebuilding from this.
func (s *Store) Base() *Config {
	return s.base.Clone()
}

// Swap publishes cfg as the live snapshot.
func (s *Store) Swap(cfg *Config) {
	s.current.Store(cfg)
}
