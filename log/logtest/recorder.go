/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package logtest provides a log.FieldLogger that records entries for inspection in tests.
package logtest

import (
	"sync"
	"time"

	"github.com/ssgreg/logf"

	"github.com/acronis/go-rpcgate/log"
)

// RecordedEntry is a logged entry.
type RecordedEntry struct {
	Fields []log.Field
	Level  log.Level
	Time   time.Time
	Text   string
}

// FindField looks up a field of the entry by key.
func (re *RecordedEntry) FindField(key string) (*log.Field, bool) {
	for i := range re.Fields {
		if re.Fields[i].Key == key {
			return &re.Fields[i], true
		}
	}
	return nil, false
}

type recordingWriter struct {
	sync.RWMutex
	entries []RecordedEntry
}

//nolint:gocritic
func (w *recordingWriter) WriteEntry(e logf.Entry) {
	fields := append([]log.Field{}, e.DerivedFields...)
	fields = append(fields, e.Fields...)
	w.Lock()
	w.entries = append(w.entries, RecordedEntry{Fields: fields, Level: fromLogfLevel(e.Level), Time: e.Time, Text: e.Text})
	w.Unlock()
}

// Recorder is a log.FieldLogger that keeps every entry (at any level) in memory.
// Loggers derived with With and WithLevel share the same storage.
type Recorder struct {
	*log.LogfAdapter
	w *recordingWriter
}

// NewRecorder returns an initialized Recorder.
func NewRecorder() *Recorder {
	w := &recordingWriter{}
	return &Recorder{&log.LogfAdapter{Logger: logf.NewLogger(logf.LevelDebug, w)}, w}
}

func (r *Recorder) With(fs ...log.Field) log.FieldLogger {
	return &Recorder{r.LogfAdapter.With(fs...).(*log.LogfAdapter), r.w}
}

func (r *Recorder) WithLevel(level log.Level) log.FieldLogger {
	return &Recorder{r.LogfAdapter.WithLevel(level).(*log.LogfAdapter), r.w}
}

// Entries returns a copy of all recorded entries.
func (r *Recorder) Entries() []RecordedEntry {
	r.w.RLock()
	defer r.w.RUnlock()
	return append([]RecordedEntry{}, r.w.entries...)
}

// FindEntry returns the first entry with the given message.
func (r *Recorder) FindEntry(msg string) (RecordedEntry, bool) {
	return r.FindEntryByFilter(func(entry RecordedEntry) bool { return entry.Text == msg })
}

// FindEntryByFilter returns the first entry accepted by filter.
func (r *Recorder) FindEntryByFilter(filter func(entry RecordedEntry) bool) (RecordedEntry, bool) {
	for _, entry := range r.Entries() {
		if filter(entry) {
			return entry, true
		}
	}
	return RecordedEntry{}, false
}

// FindAllEntriesByFilter returns every entry accepted by filter.
func (r *Recorder) FindAllEntriesByFilter(filter func(entry RecordedEntry) bool) []RecordedEntry {
	var found []RecordedEntry
	for _, entry := range r.Entries() {
		if filter(entry) {
			found = append(found, entry)
		}
	}
	return found
}

// Reset drops all recorded entries.
func (r *Recorder) Reset() {
	r.w.Lock()
	r.w.entries = nil
	r.w.Unlock()
}

func fromLogfLevel(value logf.Level) log.Level {
	switch value {
	case logf.LevelError:
		return log.LevelError
	case logf.LevelWarn:
		return log.LevelWarn
	case logf.LevelDebug:
		return log.LevelDebug
	}
	return log.LevelInfo
}
