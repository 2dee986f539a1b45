// Package usage provides the default core.UsageLogger: an in-memory ledger of
// token consumption records with structured log echo. Billing systems replace
// it behind the interface.
package usage

import (
	"sync"
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
)

// Ledger is a process-local append-only usage recorder. Safe for concurrent
// access.
type Ledger struct {
	mu      sync.RWMutex
	records []core.UsageRecord
	logger  logging.Logger
}

// Options configure the ledger.
type Options struct {
	Logger logging.Logger
}

// NewLedger constructs an empty usage ledger.
func NewLedger(optFns ...func(o *Options)) *Ledger {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Ledger{logger: logging.OrNoOp(opts.Logger)}
}

// Record implements core.UsageLogger.
func (l *Ledger) Record(rec core.UsageRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	l.records = append(l.records, rec)
	l.mu.Unlock()

	l.logger.Info("llm usage recorded",
		"model", rec.Model,
		"total_tokens", rec.TotalTokens,
		"user_id", rec.UserID,
		"session_id", rec.SessionID,
		"agent", rec.AgentKey,
		"label", rec.AgentLabel,
	)
	return nil
}

// Records returns a copy of all recorded entries in insertion order.
func (l *Ledger) Records() []core.UsageRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]core.UsageRecord, len(l.records))
	copy(out, l.records)
	return out
}

// TotalTokens sums total token consumption for a user across all sessions.
func (l *Ledger) TotalTokens(userID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := 0
	for _, rec := range l.records {
		if rec.UserID == userID {
			total += rec.TotalTokens
		}
	}
	return total
}

var _ core.UsageLogger = (*Ledger)(nil)
