package ingest

// JSON contracts for the demodulator event stream. The front end
// publishes one message per signaling event on dsd-neo/events/<type>;
// slot-bearing messages flag whether their slot index is SACCH-relative,
// in which case the pipeline normalizes it through trunk.VoiceSlot before
// dispatch.

// GrantMsg is a voice-channel grant (topic suffix "grant").
type GrantMsg struct {
	Channel uint16 `json:"channel"`
	FreqHz  int64  `json:"freq_hz"`
	TG      uint32 `json:"tg"`
	Src     uint32 `json:"src"`
	Dst     uint32 `json:"dst"`
	Svc     uint8  `json:"svc"`
	IsGroup bool   `json:"is_group"`
	Slot    int    `json:"slot"`
	Sacch   bool   `json:"sacch"`
}

// SlotMsg is a per-slot voice activity indication (topic suffix "slot").
// Kind is one of ptt, active, end, idle.
type SlotMsg struct {
	Kind  string `json:"kind"`
	Slot  int    `json:"slot"`
	Sacch bool   `json:"sacch"`
}

// SyncMsg is a demodulator sync indication (topic suffix "sync"). Kind is
// one of cc, vc, lost.
type SyncMsg struct {
	Kind string `json:"kind"`
}

// TDUMsg is a Phase 1 terminator data unit (topic suffix "tdu").
type TDUMsg struct{}

// EncMsg carries decoded encryption parameters (topic suffix "enc").
type EncMsg struct {
	Slot  int    `json:"slot"`
	Sacch bool   `json:"sacch"`
	Alg   uint8  `json:"alg"`
	Key   uint16 `json:"key"`
	TG    uint32 `json:"tg"`
}

// NeighborsMsg lists neighbor control-channel frequencies (topic suffix
// "neighbors").
type NeighborsMsg struct {
	FreqsHz []int64 `json:"freqs_hz"`
}

// IdenMsg is an IDEN_UP channel-plan broadcast (topic suffix "iden").
type IdenMsg struct {
	Iden    uint8  `json:"iden"`
	Base    uint32 `json:"base"`
	Spacing uint32 `json:"spacing"`
	Offset  int32  `json:"offset"`
	Type    uint8  `json:"type"`
}

// SiteMsg announces the site identity (topic suffix "site").
type SiteMsg struct {
	WACN  uint32 `json:"wacn"`
	SysID uint16 `json:"sysid"`
	NAC   uint16 `json:"nac"`
}

// UnitMsg is a unit registration event (topic suffix "unit"). Kind is one
// of reg, dereg, gaff.
type UnitMsg struct {
	Kind string `json:"kind"`
	RID  uint32 `json:"rid"`
	TG   uint32 `json:"tg"`
}

// ErrorsMsg feeds voice decoder error rates (topic suffix "errors").
type ErrorsMsg struct {
	Slot  int     `json:"slot"`
	Sacch bool    `json:"sacch"`
	Pct   float64 `json:"pct"`
}

// StatusOut is the periodic outbound status payload published on
// dsd-neo/status.
type StatusOut struct {
	State      string `json:"state"`
	Phase      string `json:"phase,omitempty"`
	CCFreqHz   int64  `json:"cc_freq_hz"`
	VCFreqHz   int64  `json:"vc_freq_hz,omitempty"`
	TG         uint32 `json:"tg,omitempty"`
	Tunes      uint64 `json:"tunes"`
	Releases   uint64 `json:"releases"`
	Candidates int    `json:"candidates"`
}
