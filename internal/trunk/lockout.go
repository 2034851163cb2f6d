package trunk

import (
	"time"
)

// HistoryRow is one entry in the call/event history ring consumed by UI
// surfaces. Mode follows the display convention: "DE" for digital
// encrypted, "D" for digital clear.
type HistoryRow struct {
	Time  time.Time `json:"time"`
	Mode  string    `json:"mode"`
	TG    uint32    `json:"tg"`
	Slot  int       `json:"slot"`
	AlgID uint8     `json:"alg_id"`
	KeyID uint16    `json:"key_id"`
	Text  string    `json:"text"`
}

// historyRing is a fixed-size ring of history rows, oldest overwritten
// first.
type historyRing struct {
	rows []HistoryRow
	head int
	size int
}

func newHistoryRing(capacity int) *historyRing {
	return &historyRing{rows: make([]HistoryRow, capacity)}
}

func (r *historyRing) push(row HistoryRow) {
	r.rows[r.head] = row
	r.head = (r.head + 1) % len(r.rows)
	if r.size < len(r.rows) {
		r.size++
	}
}

// all returns the buffered rows oldest-first.
func (r *historyRing) all() []HistoryRow {
	out := make([]HistoryRow, 0, r.size)
	start := (r.head - r.size + len(r.rows)) % len(r.rows)
	for i := 0; i < r.size; i++ {
		out = append(out, r.rows[(start+i)%len(r.rows)])
	}
	return out
}

// LockoutEmitter produces the once-per-talkgroup "encrypted, not
// following" notification. Emission is idempotent per talkgroup for the
// lifetime of a site session; Scrub resets it on site change.
type LockoutEmitter struct {
	seen map[uint32]struct{}
	ring *historyRing
	now  func() time.Time
}

// NewLockoutEmitter returns an emitter writing to a history ring of the
// given capacity.
func NewLockoutEmitter(capacity int, now func() time.Time) *LockoutEmitter {
	if now == nil {
		now = time.Now
	}
	return &LockoutEmitter{
		seen: make(map[uint32]struct{}),
		ring: newHistoryRing(capacity),
		now:  now,
	}
}

// Emit records an encryption lockout for the talkgroup. Returns true when
// a history row was produced, false when the talkgroup was already
// reported this session.
func (e *LockoutEmitter) Emit(tg uint32, slot int, alg uint8, key uint16) bool {
	if _, dup := e.seen[tg]; dup {
		return false
	}
	e.seen[tg] = struct{}{}
	e.ring.push(HistoryRow{
		Time:  e.now(),
		Mode:  "DE",
		TG:    tg,
		Slot:  slot,
		AlgID: alg,
		KeyID: key,
		Text:  "encrypted call, not following",
	})
	return true
}

// Seen reports whether the talkgroup has already been reported.
func (e *LockoutEmitter) Seen(tg uint32) bool {
	_, ok := e.seen[tg]
	return ok
}

// Scrub forgets all reported talkgroups. Called on site change or an
// explicit user scrub.
func (e *LockoutEmitter) Scrub() {
	e.seen = make(map[uint32]struct{})
}

// History returns the buffered lockout rows oldest-first.
func (e *LockoutEmitter) History() []HistoryRow {
	return e.ring.all()
}
