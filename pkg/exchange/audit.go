package exchange

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// AuditLog is the append-only record of rejected or anomalous intents.
// Entries have no identity beyond insertion order.
type AuditLog struct {
	log *zap.SugaredLogger
	db  Persistence

	mu      sync.Mutex
	entries []*AuditEntry
	seq     uint64
}

func NewAuditLog(db Persistence, log *zap.SugaredLogger) (*AuditLog, error) {
	entries, err := db.AuditEntries()
	if err != nil {
		return nil, err
	}
	a := &AuditLog{log: log, db: db, entries: entries}
	for _, e := range entries {
		if e.Seq > a.seq {
			a.seq = e.Seq
		}
	}
	return a, nil
}

// Record appends a snapshot of the offending payload. Persistence errors
// are logged and swallowed: auditing must never mask the original
// rejection.
func (a *AuditLog) Record(payload []byte, reason string) {
	a.mu.Lock()
	a.seq++
	entry := &AuditEntry{
		Seq:     a.seq,
		At:      time.Now(),
		Reason:  reason,
		Payload: json.RawMessage(append([]byte{}, payload...)),
	}
	a.entries = append(a.entries, entry)
	a.mu.Unlock()

	if err := a.db.AppendAudit(entry); err != nil {
		a.log.Errorw("audit entry not persisted", "seq", entry.Seq, "err", err)
	}
	a.log.Warnw("intent rejected", "seq", entry.Seq, "reason", reason)
}

// Entries returns the audit trail in insertion order.
func (a *AuditLog) Entries() []*AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*AuditEntry, len(a.entries))
	copy(out, a.entries)
	return out
}
