// Copyright (C) 2025 Vertice Code (dev@vertice-code.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store persists learned fixes in an embedded BadgerDB.
//
// The store keeps short-term recovery memory across process restarts. It is
// not an audit log: entries expire.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// fixTTL bounds how long a learned fix survives. Stale fixes for code that
// has since changed are worse than no fix.
const fixTTL = 7 * 24 * time.Hour

// maxFixesPerError bounds the fix list kept per error text.
const maxFixesPerError = 5

// keyPrefix namespaces learned-fix keys in the database.
const keyPrefix = "fix:"

var (
	storeReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "governor_fix_store_reads_total",
		Help: "Learned-fix store reads",
	}, []string{"status"})

	storeWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "governor_fix_store_writes_total",
		Help: "Learned-fix store writes",
	}, []string{"status"})
)

// Config holds configuration for the learned-fix store.
type Config struct {
	// Path is the directory for database files. Ignored when InMemory.
	Path string

	// InMemory enables in-memory mode (no disk persistence). Useful for
	// testing.
	InMemory bool
}

// LearnedFixStore persists per-error fix lists in BadgerDB.
//
// Thread Safety: Safe for concurrent use.
type LearnedFixStore struct {
	db *badger.DB
}

// Open opens or creates the store.
//
// Inputs:
//   - cfg: Store configuration.
//
// Outputs:
//   - *LearnedFixStore: Ready to use store. Close it when done.
//   - error: Non-nil if the database cannot be opened.
func Open(cfg Config) (*LearnedFixStore, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("store path must not be empty")
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open learned-fix store: %w", err)
	}

	slog.Debug("Learned-fix store opened",
		slog.String("path", cfg.Path),
		slog.Bool("in_memory", cfg.InMemory),
	)
	return &LearnedFixStore{db: db}, nil
}

// Close releases the underlying database.
func (s *LearnedFixStore) Close() error {
	return s.db.Close()
}

// fixKey derives a stable key from the exact error text.
func fixKey(errorText string) []byte {
	sum := sha256.Sum256([]byte(errorText))
	return []byte(keyPrefix + hex.EncodeToString(sum[:]))
}

// Fixes returns previously successful fixes for the exact error text.
// A missing key is not an error; it returns an empty list.
func (s *LearnedFixStore) Fixes(errorText string) ([]string, error) {
	var fixes []string

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(fixKey(errorText))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &fixes)
		})
	})
	if err != nil {
		storeReads.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("read fixes: %w", err)
	}

	storeReads.WithLabelValues("ok").Inc()
	return fixes, nil
}

// AppendFix records a fix that led to a successful recovery.
//
// The per-error list is capped at maxFixesPerError, newest last, and the
// whole entry expires after fixTTL.
func (s *LearnedFixStore) AppendFix(errorText, fix string) error {
	key := fixKey(errorText)

	err := s.db.Update(func(txn *badger.Txn) error {
		var fixes []string

		item, err := txn.Get(key)
		if err == nil {
			if verr := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &fixes)
			}); verr != nil {
				// Corrupt entry: start over rather than fail.
				fixes = nil
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		fixes = append(fixes, fix)
		if len(fixes) > maxFixesPerError {
			fixes = fixes[len(fixes)-maxFixesPerError:]
		}

		data, err := json.Marshal(fixes)
		if err != nil {
			return err
		}
		entry := badger.NewEntry(key, data).WithTTL(fixTTL)
		return txn.SetEntry(entry)
	})
	if err != nil {
		storeWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("append fix: %w", err)
	}

	storeWrites.WithLabelValues("ok").Inc()
	return nil
}
