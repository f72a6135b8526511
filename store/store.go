// Package store defines the document store interface, the connection
// bootstrap and the backend implementations.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
)

const (
	// PartitionKeyPath is the single-field partitioning scheme of every collection.
	PartitionKeyPath = "/id"
	// DefaultThroughput is the provisioned throughput for new collections.
	DefaultThroughput = 400
	// IDField is the record field carrying the identifier.
	IDField = "id"
)

var (
	ErrNotConnected = errors.New("store is not initialized")
	ErrMissingID    = errors.New("record has no string id")
	ErrDuplicateID  = errors.New("record id already exists")
	ErrUnknown      = errors.New("unknown store backend")
)

// Record is one schema-less JSON document.
type Record map[string]any

// ID returns the record identifier when it is a non-empty string.
func (r Record) ID() (string, bool) {
	id, ok := r[IDField].(string)
	return id, ok && id != ""
}

// Clone returns a deep copy by round-tripping through JSON. Numbers come
// back as json.Number.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	b, _ := json.Marshal(r)
	dst, _ := DecodeRecord(b)
	return dst
}

// DecodeRecord decodes a JSON object keeping numbers as json.Number, so
// integers beyond float64 precision survive a round trip. JSON null yields a
// nil Record.
func DecodeRecord(b []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Store is the interface that all backing stores must implement. Each Store
// is bound to a single collection.
type Store interface {
	// Create inserts rec. It fails with ErrMissingID if rec has no id.
	Create(ctx context.Context, rec Record) error

	// List returns at most limit records.
	List(ctx context.Context, limit int) ([]Record, error)

	// Close releases the underlying client.
	Close(ctx context.Context) error
}
