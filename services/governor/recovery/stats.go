// Copyright (C) 2025 Vertice Code (dev@vertice-code.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package recovery

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// topErrorLimit is how many frequent errors GetStatistics reports.
const topErrorLimit = 10

// OutcomeRecord archives one completed recovery attempt.
type OutcomeRecord struct {
	ErrorText    string           `json:"error_text"`
	Category     ErrorCategory    `json:"category"`
	Strategy     RecoveryStrategy `json:"strategy"`
	Diagnosis    string           `json:"diagnosis,omitempty"`
	AttemptsUsed int              `json:"attempts_used"`
	Succeeded    bool             `json:"succeeded"`
	RecordedAt   time.Time        `json:"recorded_at"`
}

// ErrorFrequency pairs an error text with how often it was seen.
type ErrorFrequency struct {
	ErrorText string `json:"error_text"`
	Count     int    `json:"count"`
}

// Statistics summarizes the engine's recovery history.
type Statistics struct {
	TotalOutcomes   int              `json:"total_outcomes"`
	TotalSuccesses  int              `json:"total_successes"`
	SuccessRate     float64          `json:"success_rate"`
	TopErrors       []ErrorFrequency `json:"top_errors,omitempty"`
	LearnedFixCount int              `json:"learned_fix_count"`
	CircuitBreaker  CircuitSnapshot  `json:"circuit_breaker"`
}

// recoveryStats holds the engine's bounded history and learned-fix memory.
type recoveryStats struct {
	mu           sync.Mutex
	limit        int
	history      []OutcomeRecord
	errorCounts  map[string]int
	learnedFixes map[string][]string
	successes    int
	total        int
}

func (s *recoveryStats) init(limit int) {
	s.limit = limit
	s.errorCounts = make(map[string]int)
	s.learnedFixes = make(map[string][]string)
}

func (s *recoveryStats) record(rec OutcomeRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, rec)
	if len(s.history) > s.limit {
		s.history = s.history[len(s.history)-s.limit:]
	}
	s.errorCounts[rec.ErrorText]++
	s.total++
	if rec.Succeeded {
		s.successes++
	}
}

func (s *recoveryStats) addFix(errorText, fix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.learnedFixes[errorText] = append(s.learnedFixes[errorText], fix)
}

func (s *recoveryStats) hasFix(errorText string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.learnedFixes[errorText]) > 0
}

// RecordRecoveryOutcome archives a completed recovery attempt.
//
// On a final success the suggested fix is appended to the per-error memory
// consulted by DetermineStrategy, and to the persistent store when one is
// configured.
func (e *Engine) RecordRecoveryOutcome(rc *RecoveryContext, succeeded bool) {
	e.stats.record(OutcomeRecord{
		ErrorText:    rc.ErrorText,
		Category:     rc.Category,
		Strategy:     rc.Strategy,
		Diagnosis:    rc.Diagnosis,
		AttemptsUsed: rc.AttemptNumber,
		Succeeded:    succeeded,
		RecordedAt:   time.Now(),
	})

	if !succeeded || rc.SuggestedFix == "" {
		return
	}

	e.stats.addFix(rc.ErrorText, rc.SuggestedFix)
	if e.store != nil {
		if err := e.store.AppendFix(rc.ErrorText, rc.SuggestedFix); err != nil {
			e.logger.Warn("Learned-fix store write failed",
				slog.String("error", err.Error()),
			)
		}
	}
}

// GetStatistics returns totals, success rate, the top-10 most frequent
// errors, the learned-fix count, and a circuit breaker snapshot.
func (e *Engine) GetStatistics() Statistics {
	e.stats.mu.Lock()

	stats := Statistics{
		TotalOutcomes:   e.stats.total,
		TotalSuccesses:  e.stats.successes,
		LearnedFixCount: len(e.stats.learnedFixes),
	}
	if e.stats.total > 0 {
		stats.SuccessRate = float64(e.stats.successes) / float64(e.stats.total)
	}

	for text, count := range e.stats.errorCounts {
		stats.TopErrors = append(stats.TopErrors, ErrorFrequency{ErrorText: text, Count: count})
	}
	e.stats.mu.Unlock()

	sort.Slice(stats.TopErrors, func(i, j int) bool {
		if stats.TopErrors[i].Count != stats.TopErrors[j].Count {
			return stats.TopErrors[i].Count > stats.TopErrors[j].Count
		}
		return stats.TopErrors[i].ErrorText < stats.TopErrors[j].ErrorText
	})
	if len(stats.TopErrors) > topErrorLimit {
		stats.TopErrors = stats.TopErrors[:topErrorLimit]
	}

	stats.CircuitBreaker = e.breaker.Snapshot()
	return stats
}
