package storage

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/crossdex/crossdex/pkg/exchange"
)

// PebbleStore is the durable backing for orders, settlement receipts and
// the audit trail.
//
// keys: o:<8-byte order id>, r:<8-byte order id>, a:<8-byte audit seq>
type PebbleStore struct {
	db *pebble.DB
}

const (
	prefixOrder   = "o:"
	prefixReceipt = "r:"
	prefixAudit   = "a:"
)

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

func (s *PebbleStore) PutOrder(o *exchange.Order) error {
	val, err := encodeOrder(o)
	if err != nil {
		return fmt.Errorf("encode order %d: %w", o.ID, err)
	}
	return s.db.Set(idKey(prefixOrder, o.ID), val, pebble.Sync)
}

func (s *PebbleStore) Orders() ([]*exchange.Order, error) {
	var out []*exchange.Order
	err := s.scanPrefix(prefixOrder, func(val []byte) error {
		o, err := decodeOrder(val)
		if err != nil {
			return err
		}
		out = append(out, o)
		return nil
	})
	return out, err
}

func (s *PebbleStore) PutReceipt(r *exchange.Receipt) error {
	val, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode receipt for order %d: %w", r.OrderID, err)
	}
	return s.db.Set(idKey(prefixReceipt, r.OrderID), val, pebble.Sync)
}

func (s *PebbleStore) Receipts() ([]*exchange.Receipt, error) {
	var out []*exchange.Receipt
	err := s.scanPrefix(prefixReceipt, func(val []byte) error {
		var r exchange.Receipt
		if err := json.Unmarshal(val, &r); err != nil {
			return err
		}
		out = append(out, &r)
		return nil
	})
	return out, err
}

func (s *PebbleStore) AppendAudit(e *exchange.AuditEntry) error {
	val, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode audit entry %d: %w", e.Seq, err)
	}
	return s.db.Set(idKey(prefixAudit, e.Seq), val, pebble.Sync)
}

func (s *PebbleStore) AuditEntries() ([]*exchange.AuditEntry, error) {
	var out []*exchange.AuditEntry
	err := s.scanPrefix(prefixAudit, func(val []byte) error {
		var e exchange.AuditEntry
		if err := json.Unmarshal(val, &e); err != nil {
			return err
		}
		out = append(out, &e)
		return nil
	})
	return out, err
}

// scanPrefix visits every value under a key prefix in key order (big-endian
// ids, so insertion order).
func (s *PebbleStore) scanPrefix(prefix string, fn func(val []byte) error) error {
	upper := []byte(prefix)
	upper[len(upper)-1]++
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: upper,
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		val, err := iter.ValueAndErr()
		if err != nil {
			return err
		}
		if err := fn(val); err != nil {
			return err
		}
	}
	return iter.Error()
}

var _ exchange.Persistence = (*PebbleStore)(nil)
