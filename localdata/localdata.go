// Package localdata reads the read-only sample records from a JSON file.
package localdata

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/stevemurr/simple-data-server/store"
)

var ErrNotObject = errors.New("element is not a JSON object")

// Loader reads a JSON array from disk on every call. Nothing is cached.
type Loader struct {
	path string
	log  zerolog.Logger
}

func New(path string, log zerolog.Logger) *Loader {
	return &Loader{path: path, log: log.With().Str("file", path).Logger()}
}

func (l *Loader) Path() string { return l.path }

// Load returns the array elements verbatim. A missing file, an unreadable
// file, invalid JSON or a non-array document all yield an empty slice.
func (l *Loader) Load() []json.RawMessage {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			l.log.Warn().Msg("local data file not found")
		} else {
			l.log.Error().Err(err).Msg("cannot read local data file")
		}
		return []json.RawMessage{}
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		l.log.Error().Err(err).Msg("invalid JSON in local data file")
		return []json.RawMessage{}
	}
	if items == nil {
		// "null"
		return []json.RawMessage{}
	}
	return items
}

// Item is one decoded element of the file.
type Item struct {
	Record store.Record
	Err    error
}

// Records decodes every element into a Record. Elements that are not objects
// carry ErrNotObject instead.
func (l *Loader) Records() []Item {
	raw := l.Load()
	items := make([]Item, 0, len(raw))
	for i, r := range raw {
		rec, err := store.DecodeRecord(r)
		if err != nil || rec == nil {
			items = append(items, Item{Err: fmt.Errorf("element %d: %w", i, ErrNotObject)})
			continue
		}
		items = append(items, Item{Record: rec})
	}
	return items
}
