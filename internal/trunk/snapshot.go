package trunk

import "time"

// SlotSnapshot is the published per-slot activity view.
type SlotSnapshot struct {
	VoiceActive  bool   `json:"voice_active"`
	AudioAllowed bool   `json:"audio_allowed"`
	TG           uint32 `json:"tg,omitempty"`
	AlgID        uint8  `json:"alg_id,omitempty"`
	KeyID        uint16 `json:"key_id,omitempty"`
}

// Snapshot is the immutable state view published by the processing
// goroutine after each grant, slot, sync, encryption, neighbor and site
// event, each release, and each tick. The unit-registration, IDEN and
// voice-error handlers do not publish; their effects (such as the
// affiliation counts) appear in the next snapshot. Observers (the HTTP API, a UI)
// read it lock-free through an acquire-load; nothing in a snapshot
// aliases live state.
type Snapshot struct {
	Time         time.Time       `json:"time"`
	State        string          `json:"state"`
	Phase        string          `json:"phase,omitempty"`
	Site         Site            `json:"site"`
	CCFreqHz     int64           `json:"cc_freq_hz"`
	VCFreqHz     int64           `json:"vc_freq_hz,omitempty"`
	TG           uint32          `json:"tg,omitempty"`
	SrcRID       uint32          `json:"src,omitempty"`
	TDMA         bool            `json:"tdma,omitempty"`
	Slots        [2]SlotSnapshot `json:"slots"`
	Counters     Counters        `json:"counters"`
	Candidates   []int64         `json:"candidates,omitempty"`
	Patches      []PatchSnapshot `json:"patches,omitempty"`
	PatchSummary string          `json:"patch_summary,omitempty"`
	Affiliations int             `json:"affiliations"`
	GroupAffs    int             `json:"group_affiliations"`
}

func (sm *StateMachine) publish() {
	snap := &Snapshot{
		Time:         sm.now(),
		State:        sm.state.String(),
		Site:         sm.site,
		CCFreqHz:     sm.ccFreq,
		Counters:     sm.counters,
		Candidates:   sm.cands.Freqs(),
		Patches:      sm.patches.Snapshot(),
		PatchSummary: sm.patches.Summary(),
		Affiliations: sm.affs.Len(),
		GroupAffs:    sm.gaffs.Len(),
	}
	if sm.state == StateTuned {
		snap.Phase = sm.phase.String()
		snap.VCFreqHz = sm.vc.FreqHz
		snap.TG = sm.vc.TG
		snap.SrcRID = sm.vc.SrcRID
		snap.TDMA = sm.vc.IsTDMA
	}
	for i := range snap.Slots {
		st := sm.slots[i]
		snap.Slots[i] = SlotSnapshot{
			VoiceActive:  st.voiceActive,
			AudioAllowed: sm.AudioAllowed(i),
			TG:           st.tg,
			AlgID:        st.algID,
			KeyID:        st.keyID,
		}
	}
	sm.snap.Store(snap)
}

// Snapshot returns the most recently published state view. Safe to call
// from any goroutine.
func (sm *StateMachine) Snapshot() *Snapshot {
	return sm.snap.Load()
}
