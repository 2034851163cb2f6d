// Package groups loads a talkgroup directory from a trunk-recorder style
// CSV file and answers allow/block policy questions for the grant filter
// and the audio gate. The directory hot-reloads when the file changes.
package groups

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Entry is a parsed row from the talkgroup CSV file.
type Entry struct {
	TGID        uint32
	Mode        string
	AlphaTag    string
	Description string
	Tag         string
	Category    string
	Priority    int
}

// Blocked reports whether the row marks the group as never-follow: a "B"
// in the mode column or a negative priority.
func (e Entry) Blocked() bool {
	return strings.ContainsAny(e.Mode, "Bb") || e.Priority < 0
}

// EncryptedExpected reports whether the row marks the group as routinely
// encrypted (an "E" in the mode column, e.g. "DE"). Such groups still get
// their audio gated, but the one-shot lockout notification is suppressed:
// there is nothing surprising to report.
func (e Entry) EncryptedExpected() bool {
	return strings.ContainsAny(e.Mode, "Ee")
}

// Directory is the immutable-swap talkgroup table. Reads during a reload
// see either the old or the new table, never a mix.
type Directory struct {
	path  string
	log   zerolog.Logger
	table atomic.Pointer[map[uint32]Entry]

	debounce map[string]*time.Timer
}

// Load reads the CSV file and returns a directory ready for queries. An
// empty path returns a nil directory, which every query treats as
// allow-all.
func Load(path string, log zerolog.Logger) (*Directory, error) {
	if path == "" {
		return nil, nil
	}
	d := &Directory{
		path:     path,
		log:      log.With().Str("component", "groups").Logger(),
		debounce: make(map[string]*time.Timer),
	}
	if err := d.reload(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Directory) reload() error {
	table, err := parseCSV(d.path)
	if err != nil {
		return err
	}
	d.table.Store(&table)
	d.log.Info().Str("path", d.path).Int("talkgroups", len(table)).Msg("talkgroup directory loaded")
	return nil
}

// Allowed reports allow-list membership: the talkgroup has a row and the
// row is not blocked. A nil directory allows everything.
func (d *Directory) Allowed(tg uint32) bool {
	if d == nil {
		return true
	}
	e, ok := d.get(tg)
	return ok && !e.Blocked()
}

// Blocked reports whether the talkgroup is explicitly marked never-follow.
func (d *Directory) Blocked(tg uint32) bool {
	if d == nil {
		return false
	}
	e, ok := d.get(tg)
	return ok && e.Blocked()
}

// EncryptedExpected reports whether the talkgroup is marked routinely
// encrypted in the directory.
func (d *Directory) EncryptedExpected(tg uint32) bool {
	if d == nil {
		return false
	}
	e, ok := d.get(tg)
	return ok && e.EncryptedExpected()
}

// AlphaTag returns the display tag for the talkgroup, empty when unknown.
func (d *Directory) AlphaTag(tg uint32) string {
	if d == nil {
		return ""
	}
	e, _ := d.get(tg)
	return e.AlphaTag
}

// Len returns the number of directory rows.
func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(*d.table.Load())
}

func (d *Directory) get(tg uint32) (Entry, bool) {
	e, ok := (*d.table.Load())[tg]
	return e, ok
}

// Watch reloads the directory when its file changes, until the context is
// cancelled. Editors that replace the file (rename-over) are handled by
// watching the parent directory; rapid write bursts are debounced.
func (d *Directory) Watch(ctx context.Context) error {
	if d == nil {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(d.path)); err != nil {
		w.Close()
		return err
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(d.path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				d.debounceReload(ev.Name)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				d.log.Warn().Err(err).Msg("talkgroup directory watch error")
			}
		}
	}()
	return nil
}

func (d *Directory) debounceReload(name string) {
	if t, ok := d.debounce[name]; ok {
		t.Stop()
	}
	d.debounce[name] = time.AfterFunc(250*time.Millisecond, func() {
		if err := d.reload(); err != nil {
			d.log.Warn().Err(err).Msg("talkgroup directory reload failed, keeping previous table")
		}
	})
}

// parseCSV reads a talkgroup file with header-aware column mapping, so
// column order and optional columns don't matter. Headerless files fall
// back to positional trunk-recorder order.
func parseCSV(path string) (map[uint32]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	cols := map[string]int{
		"decimal": 0, "mode": 1, "alpha tag": 2,
		"description": 3, "tag": 4, "category": 5, "priority": 6,
	}

	table := make(map[uint32]Entry)
	first := true
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if first {
			first = false
			if len(record) == 0 {
				continue
			}
			if _, numErr := strconv.Atoi(strings.TrimSpace(record[0])); numErr != nil {
				// Header row: remap column indexes.
				for k := range cols {
					cols[k] = -1
				}
				for i, h := range record {
					h = strings.ToLower(strings.TrimSpace(h))
					if _, known := cols[h]; known || h == "decimal" {
						cols[h] = i
					}
				}
				continue
			}
		}

		field := func(name string) string {
			i, ok := cols[name]
			if !ok || i < 0 || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}
		tgid, err := strconv.ParseUint(field("decimal"), 10, 32)
		if err != nil {
			continue
		}
		prio, _ := strconv.Atoi(field("priority"))
		table[uint32(tgid)] = Entry{
			TGID:        uint32(tgid),
			Mode:        field("mode"),
			AlphaTag:    field("alpha tag"),
			Description: field("description"),
			Tag:         field("tag"),
			Category:    field("category"),
			Priority:    prio,
		}
	}
	return table, nil
}
