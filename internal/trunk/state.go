package trunk

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// State is the trunking follower's top-level state.
type State uint8

const (
	// StateIdle: no control channel identified, no follower activity.
	StateIdle State = iota
	// StateOnCC: parked on a control channel parsing MAC PDUs.
	StateOnCC
	// StateTuned: tuned to a voice channel (see TunedPhase).
	StateTuned
	// StateHunting: control channel lost, iterating candidates.
	StateHunting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOnCC:
		return "on_cc"
	case StateTuned:
		return "tuned"
	default:
		return "hunting"
	}
}

// TunedPhase is the logical sub-phase within StateTuned.
type TunedPhase uint8

const (
	// PhaseArmed: tuned, awaiting the first voice indicator.
	PhaseArmed TunedPhase = iota
	// PhaseFollowing: voice active on at least one slot.
	PhaseFollowing
	// PhaseHangtime: voice ended, retention window running.
	PhaseHangtime
)

func (p TunedPhase) String() string {
	switch p {
	case PhaseArmed:
		return "armed"
	case PhaseFollowing:
		return "following"
	default:
		return "hangtime"
	}
}

// Config carries the trunking follower's timing and policy knobs. All
// durations are wall-clock intervals compared against monotonic anchors.
type Config struct {
	Hangtime          time.Duration
	GrantTimeout      time.Duration
	CCGrace           time.Duration
	VCGrace           time.Duration
	MACHold           time.Duration
	VoiceHold         time.Duration
	MinFollowDwell    time.Duration
	GrantVoiceTimeout time.Duration
	RetuneBackoff     time.Duration
	ForceReleaseExtra time.Duration
	ErrHoldPct        float64
	ErrHold           time.Duration
	TickPeriod        time.Duration

	PreferCCCandidates bool
	TuneGroupCalls     bool
	TunePrivateCalls   bool
	TuneDataCalls      bool
	TuneEncCalls       bool
	AllowListMode      bool
	LCWRetune          bool
	SimpleSM           bool
	UnmuteEnc          bool

	AffRetention   time.Duration
	PatchRetention time.Duration

	CacheDir string
}

// DefaultConfig returns the stock trunking configuration.
func DefaultConfig() Config {
	return Config{
		Hangtime:       2 * time.Second,
		GrantTimeout:   3 * time.Second,
		CCGrace:        5 * time.Second,
		VCGrace:        750 * time.Millisecond,
		MACHold:        750 * time.Millisecond,
		VoiceHold:      750 * time.Millisecond,
		TickPeriod:     200 * time.Millisecond,
		TuneGroupCalls: true,
		TunePrivateCalls: true,
		TuneEncCalls:   true,
		AffRetention:   15 * time.Minute,
		PatchRetention: 10 * time.Minute,
		CacheDir:       DefaultCacheDir(),
	}
}

// GroupDirectory answers talkgroup policy questions for the grant filter,
// the audio gate, and the lockout emitter. A nil directory allows
// everything and expects nothing encrypted.
type GroupDirectory interface {
	Allowed(tg uint32) bool
	Blocked(tg uint32) bool
	EncryptedExpected(tg uint32) bool
	AlphaTag(tg uint32) string
}

// OutEvent is the immutable notification the state machine hands to its
// observer on observable transitions: tunes, releases, hunts, lockouts.
type OutEvent struct {
	Type     string        `json:"type"`
	Time     time.Time     `json:"time"`
	TG       uint32        `json:"tg,omitempty"`
	SrcRID   uint32        `json:"src,omitempty"`
	FreqHz   int64         `json:"freq_hz,omitempty"`
	Channel  uint16        `json:"channel,omitempty"`
	Slot     int           `json:"slot"`
	AlgID    uint8         `json:"alg_id,omitempty"`
	KeyID    uint16        `json:"key_id,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// VoiceContext describes the currently tuned voice channel.
type VoiceContext struct {
	FreqHz  int64
	Channel uint16
	TG      uint32
	SrcRID  uint32
	IsTDMA  bool
	EncBit  bool
}

// Counters are the follower's monotonically increasing statistics.
type Counters struct {
	Grants        uint64 `json:"grants"`
	Tunes         uint64 `json:"tunes"`
	Releases      uint64 `json:"releases"`
	CCReturns     uint64 `json:"cc_returns"`
	DroppedGrants uint64 `json:"dropped_grants"`
	EncLockouts   uint64 `json:"enc_lockouts"`
	HuntAttempts  uint64 `json:"hunt_attempts"`
}

// Site is the P25 system identity; it selects the candidate cache file.
type Site struct {
	WACN  uint32 `json:"wacn"`
	SysID uint16 `json:"sysid"`
	NAC   uint16 `json:"nac"`
}

type slotState struct {
	voiceActive bool
	hadVoice    bool
	lastActive  time.Time
	algID       uint8
	keyID       uint16
	tg          uint32
}

// StateMachine is the P25 trunking follower: a single-goroutine policy
// engine over signaling events. Every method must be called from the
// owning processing goroutine; cross-thread observation goes through
// Snapshot only.
type StateMachine struct {
	cfg    Config
	log    zerolog.Logger
	now    func() time.Time
	hooks  Hooks
	groups GroupDirectory

	onEvent func(OutEvent)

	plan    *ChannelPlan
	cands   *CandidateCache
	patches *PatchTracker
	affs    *AffiliationTable
	gaffs   *GroupAffiliationTable
	lockout *LockoutEmitter
	keys    map[uint16]struct{}

	site      Site
	siteKnown bool

	state    State
	phase    TunedPhase
	ccFreq   int64
	huntFreq int64
	vc       VoiceContext
	slots    [2]slotState
	holdTG   uint32

	syncLost  bool
	tCCSync   time.Time
	tSyncLost time.Time
	tTune     time.Time
	tHangtime time.Time
	tLastMAC  time.Time

	tHuntTry   time.Time
	tHuntStart time.Time

	errHoldUntil time.Time
	lastSweep    time.Time

	counters Counters
	snap     atomic.Pointer[Snapshot]
}

// Options configures a StateMachine. Zero-value hooks become no-ops; a
// nil Now uses the wall clock; a nil Groups directory allows all
// talkgroups.
type Options struct {
	Config  Config
	Log     zerolog.Logger
	Hooks   Hooks
	Groups  GroupDirectory
	Now     func() time.Time
	OnEvent func(OutEvent)
}

// New constructs an idle StateMachine.
func New(opts Options) *StateMachine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	onEvent := opts.OnEvent
	if onEvent == nil {
		onEvent = func(OutEvent) {}
	}
	sm := &StateMachine{
		cfg:     opts.Config,
		log:     opts.Log.With().Str("component", "trunk").Logger(),
		now:     now,
		hooks:   opts.Hooks.normalized(),
		groups:  opts.Groups,
		onEvent: onEvent,
		plan:    NewChannelPlan(),
		cands:   NewCandidateCache(opts.Log),
		patches: NewPatchTracker(now),
		affs:    NewAffiliationTable(512),
		gaffs:   NewGroupAffiliationTable(1024),
		lockout: NewLockoutEmitter(64, now),
		keys:    make(map[uint16]struct{}),
		state:   StateIdle,
	}
	sm.publish()
	return sm
}

// State returns the current top-level state.
func (sm *StateMachine) State() State { return sm.state }

// Phase returns the TUNED sub-phase; meaningful only in StateTuned.
func (sm *StateMachine) Phase() TunedPhase { return sm.phase }

// CCFreq returns the last known control-channel frequency in Hz.
func (sm *StateMachine) CCFreq() int64 { return sm.ccFreq }

// Voice returns the tuned voice-channel context.
func (sm *StateMachine) Voice() VoiceContext { return sm.vc }

// Counters returns a copy of the statistics counters.
func (sm *StateMachine) Counters() Counters { return sm.counters }

// Candidates exposes the control-channel candidate cache.
func (sm *StateMachine) Candidates() *CandidateCache { return sm.cands }

// Patches exposes the super-group tracker.
func (sm *StateMachine) Patches() *PatchTracker { return sm.patches }

// Plan exposes the channel plan for IDEN observations arriving out of
// band.
func (sm *StateMachine) Plan() *ChannelPlan { return sm.plan }

// Lockouts exposes the encryption-lockout history.
func (sm *StateMachine) Lockouts() []HistoryRow { return sm.lockout.History() }

// LoadKey marks a decryption key as available. Keyed material itself
// lives in the crypto subsystem; the follower only needs presence.
func (sm *StateMachine) LoadKey(keyID uint16) {
	sm.keys[keyID] = struct{}{}
}

func (sm *StateMachine) keyLoaded(keyID uint16) bool {
	_, ok := sm.keys[keyID]
	return ok
}

// SetTalkgroupHold pins a talkgroup: grants for it pre-empt an active
// call on a different group. Zero clears the hold.
func (sm *StateMachine) SetTalkgroupHold(tg uint32) {
	sm.holdTG = tg
}

// SetControlChannel primes the follower with a known control-channel
// frequency before the first CC sync, e.g. from user configuration.
func (sm *StateMachine) SetControlChannel(freqHz int64) {
	sm.ccFreq = freqHz
	sm.publish()
}

func (sm *StateMachine) emit(ev OutEvent) {
	ev.Time = sm.now()
	sm.onEvent(ev)
}

func (sm *StateMachine) slotIndex(slot int) int {
	if slot < 0 {
		return 0
	}
	return slot & 1
}

// monitoredSlots returns how many voice slots the tuned channel carries.
func (sm *StateMachine) monitoredSlots() int {
	if sm.vc.IsTDMA {
		return 2
	}
	return 1
}
