package trunk

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// PatchKind distinguishes two-way patches from one-way simulselects.
type PatchKind uint8

const (
	PatchKindPatch PatchKind = iota
	PatchKindSimulselect
)

func (k PatchKind) String() string {
	if k == PatchKindSimulselect {
		return "simulselect"
	}
	return "patch"
}

const maxPatchMembers = 8

// Patch is one active super-group record: the regrouped talkgroups and
// radios, plus the cryptographic context announced for the group. KeyID
// and AlgID are -1 until a key-assignment PDU fills them in; KeyID 0 with
// AlgID 0x80 marks the super-group as explicitly clear.
type Patch struct {
	SGID       uint16
	Kind       PatchKind
	Active     bool
	WGIDs      []uint32
	WUIDs      []uint32
	KeyID      int32
	AlgID      int32
	SSN        int32
	LastUpdate time.Time
}

func (p *Patch) isClear() bool {
	return p.Active && p.KeyID == 0 && p.AlgID == 0x80
}

// PatchTracker keeps the active super-group records for the current site.
// Owned by the processing goroutine; observers read copies via Snapshot.
type PatchTracker struct {
	patches map[uint16]*Patch
	now     func() time.Time
}

// NewPatchTracker returns an empty tracker using the given clock.
func NewPatchTracker(now func() time.Time) *PatchTracker {
	if now == nil {
		now = time.Now
	}
	return &PatchTracker{patches: make(map[uint16]*Patch), now: now}
}

func (t *PatchTracker) get(sgid uint16, create bool) *Patch {
	p, ok := t.patches[sgid]
	if !ok && create {
		p = &Patch{SGID: sgid, KeyID: -1, AlgID: -1, SSN: -1, Active: true}
		t.patches[sgid] = p
	}
	if p != nil {
		p.LastUpdate = t.now()
	}
	return p
}

// Update creates or modifies a super-group record. Clearing active removes
// the record entirely.
func (t *PatchTracker) Update(sgid uint16, kind PatchKind, active bool) {
	if !active {
		delete(t.patches, sgid)
		return
	}
	p := t.get(sgid, true)
	p.Kind = kind
	p.Active = true
}

// AddWGID appends a working talkgroup to the super-group, creating and
// activating the record if absent.
func (t *PatchTracker) AddWGID(sgid uint16, tg uint32) {
	p := t.get(sgid, true)
	for _, w := range p.WGIDs {
		if w == tg {
			return
		}
	}
	if len(p.WGIDs) < maxPatchMembers {
		p.WGIDs = append(p.WGIDs, tg)
	}
}

// AddWUID appends a working radio to the super-group, creating and
// activating the record if absent.
func (t *PatchTracker) AddWUID(sgid uint16, rid uint32) {
	p := t.get(sgid, true)
	for _, w := range p.WUIDs {
		if w == rid {
			return
		}
	}
	if len(p.WUIDs) < maxPatchMembers {
		p.WUIDs = append(p.WUIDs, rid)
	}
}

// RemoveWGID drops a working talkgroup from the super-group, if present.
func (t *PatchTracker) RemoveWGID(sgid uint16, tg uint32) {
	p := t.get(sgid, false)
	if p == nil {
		return
	}
	for i, w := range p.WGIDs {
		if w == tg {
			p.WGIDs = append(p.WGIDs[:i], p.WGIDs[i+1:]...)
			return
		}
	}
}

// RemoveWUID drops a working radio from the super-group, if present.
func (t *PatchTracker) RemoveWUID(sgid uint16, rid uint32) {
	p := t.get(sgid, false)
	if p == nil {
		return
	}
	for i, w := range p.WUIDs {
		if w == rid {
			p.WUIDs = append(p.WUIDs[:i], p.WUIDs[i+1:]...)
			return
		}
	}
}

// ClearSG removes the super-group record.
func (t *PatchTracker) ClearSG(sgid uint16) {
	delete(t.patches, sgid)
}

// SetKAS sets the super-group's key/algorithm/serial context. A -1 leaves
// the corresponding field unchanged.
func (t *PatchTracker) SetKAS(sgid uint16, key, alg, ssn int32) {
	p := t.get(sgid, true)
	if key >= 0 {
		p.KeyID = key
	}
	if alg >= 0 {
		p.AlgID = alg
	}
	if ssn >= 0 {
		p.SSN = ssn
	}
}

// TGKeyIsClear reports whether the talkgroup belongs to an active
// super-group with explicit clear policy (key 0, algorithm 0x80). Such
// membership overrides encryption lockout for the talkgroup.
func (t *PatchTracker) TGKeyIsClear(tg uint32) bool {
	for _, p := range t.patches {
		if !p.isClear() {
			continue
		}
		for _, w := range p.WGIDs {
			if w == tg {
				return true
			}
		}
	}
	return false
}

// Sweep removes records whose last update is older than the retention
// window and returns the number removed.
func (t *PatchTracker) Sweep(now time.Time, retention time.Duration) int {
	if retention <= 0 {
		return 0
	}
	removed := 0
	for sgid, p := range t.patches {
		if now.Sub(p.LastUpdate) > retention {
			delete(t.patches, sgid)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked super-groups.
func (t *PatchTracker) Len() int { return len(t.patches) }

func (t *PatchTracker) sortedSGIDs() []uint16 {
	ids := make([]uint16, 0, len(t.patches))
	for sgid := range t.patches {
		ids = append(ids, sgid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Summary returns the compact one-line form shown in status displays,
// e.g. "P: 069,142". Empty when no super-groups are active.
func (t *PatchTracker) Summary() string {
	if len(t.patches) == 0 {
		return ""
	}
	parts := make([]string, 0, len(t.patches))
	for _, sgid := range t.sortedSGIDs() {
		parts = append(parts, fmt.Sprintf("%03d", sgid))
	}
	return "P: " + strings.Join(parts, ",")
}

// Status returns the detailed multi-group status string enumerating
// member counts and known members.
func (t *PatchTracker) Status() string {
	if len(t.patches) == 0 {
		return "no active patches"
	}
	var sb strings.Builder
	for _, sgid := range t.sortedSGIDs() {
		p := t.patches[sgid]
		fmt.Fprintf(&sb, "SG %03d (%s)", p.SGID, p.Kind)
		if p.isClear() {
			sb.WriteString(" clear")
		} else if p.AlgID > 0 {
			fmt.Fprintf(&sb, " alg 0x%02X key 0x%04X", p.AlgID, p.KeyID)
		}
		fmt.Fprintf(&sb, " tgs=%d", len(p.WGIDs))
		for _, w := range p.WGIDs {
			fmt.Fprintf(&sb, " %d", w)
		}
		fmt.Fprintf(&sb, " rids=%d", len(p.WUIDs))
		for _, w := range p.WUIDs {
			fmt.Fprintf(&sb, " %d", w)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// PatchSnapshot is the immutable copy of a patch published to observers.
type PatchSnapshot struct {
	SGID   uint16   `json:"sgid"`
	Kind   string   `json:"kind"`
	Clear  bool     `json:"clear"`
	KeyID  int32    `json:"key_id"`
	AlgID  int32    `json:"alg_id"`
	WGIDs  []uint32 `json:"wgids,omitempty"`
	WUIDs  []uint32 `json:"wuids,omitempty"`
}

// Snapshot returns copies of all active patches ordered by SGID.
func (t *PatchTracker) Snapshot() []PatchSnapshot {
	out := make([]PatchSnapshot, 0, len(t.patches))
	for _, sgid := range t.sortedSGIDs() {
		p := t.patches[sgid]
		out = append(out, PatchSnapshot{
			SGID:  p.SGID,
			Kind:  p.Kind.String(),
			Clear: p.isClear(),
			KeyID: p.KeyID,
			AlgID: p.AlgID,
			WGIDs: append([]uint32(nil), p.WGIDs...),
			WUIDs: append([]uint32(nil), p.WUIDs...),
		})
	}
	return out
}
