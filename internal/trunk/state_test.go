package trunk

import (
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"pgregory.net/rapid"
)

// tHelper is the subset of *testing.T / *rapid.T that newTestSM needs.
type tHelper interface {
	Helper()
}

// fakeClock drives the state machine deterministically.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// hookRec records every hook invocation.
type hookRec struct {
	voiceFreqs []int64
	ccFreqs    []int64
	returns    []int64
	flushes    []int
}

func (h *hookRec) hooks() Hooks {
	return Hooks{
		TuneVoice:  func(f int64, _ int) { h.voiceFreqs = append(h.voiceFreqs, f) },
		TuneCC:     func(f int64, _ int) { h.ccFreqs = append(h.ccFreqs, f) },
		ReturnToCC: func(f int64) { h.returns = append(h.returns, f) },
		FlushVoice: func(s int) { h.flushes = append(h.flushes, s) },
	}
}

type testSM struct {
	sm    *StateMachine
	clock *fakeClock
	rec   *hookRec
	out   []OutEvent
}

func newTestSM(t tHelper, mod func(*Config)) *testSM {
	t.Helper()
	cfg := DefaultConfig()
	switch tt := t.(type) {
	case *testing.T:
		cfg.CacheDir = tt.TempDir()
	case *rapid.T:
		dir, err := os.MkdirTemp("", "trunk-test-*")
		if err != nil {
			tt.Fatal(err)
		}
		tt.Cleanup(func() { os.RemoveAll(dir) })
		cfg.CacheDir = dir
	}
	if mod != nil {
		mod(&cfg)
	}
	ts := &testSM{clock: newFakeClock(), rec: &hookRec{}}
	ts.sm = New(Options{
		Config:  cfg,
		Log:     zerolog.Nop(),
		Hooks:   ts.rec.hooks(),
		Now:     ts.clock.Now,
		OnEvent: func(ev OutEvent) { ts.out = append(ts.out, ev) },
	})
	return ts
}

// trustIden makes the given IDEN resolvable with a 12.5 kHz plan of the
// given access type; with an FDMA type, channel (iden<<12)|1 lands on
// 852.2500 MHz.
func trustIden(sm *StateMachine, iden uint8, accType uint8) {
	// base*5 + (idx/slots)*spacing*125; spacing 100 = 12.5 kHz.
	ev := IdenEvent{Iden: iden, Base: 170447500, Spacing: 100, AccType: accType}
	sm.HandleIden(ev)
	sm.HandleIden(ev)
}

func (ts *testSM) parkOnCC(freq int64) {
	ts.sm.SetControlChannel(freq)
	ts.sm.HandleSync(SyncEvent{Kind: SyncCC})
}

func (ts *testSM) eventsOfType(typ string) []OutEvent {
	var out []OutEvent
	for _, ev := range ts.out {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func TestHappyPathGroupCall(t *testing.T) {
	ts := newTestSM(t, nil)
	ts.parkOnCC(851012500)
	trustIden(ts.sm, 2, 0)

	if ts.sm.State() != StateOnCC {
		t.Fatalf("state = %v, want on_cc", ts.sm.State())
	}

	ts.sm.HandleGrant(GrantEvent{Channel: 0x2001, TG: 1234, SrcRID: 5678, IsGroup: true, Slot: -1})
	if ts.sm.State() != StateTuned || ts.sm.Phase() != PhaseArmed {
		t.Fatalf("state = %v/%v, want tuned/armed", ts.sm.State(), ts.sm.Phase())
	}
	if len(ts.rec.voiceFreqs) != 1 || ts.rec.voiceFreqs[0] != 852250000 {
		t.Fatalf("voice tunes = %v, want [852250000]", ts.rec.voiceFreqs)
	}

	ts.clock.advance(200 * time.Millisecond)
	ts.sm.HandleSlot(SlotEvent{Kind: SlotPTT, Slot: -1})
	if ts.sm.Phase() != PhaseFollowing {
		t.Fatalf("phase = %v, want following", ts.sm.Phase())
	}

	ts.clock.advance(2 * time.Second)
	ts.sm.HandleSlot(SlotEvent{Kind: SlotEnd, Slot: -1})
	if ts.sm.Phase() != PhaseHangtime {
		t.Fatalf("phase = %v, want hangtime", ts.sm.Phase())
	}

	ts.clock.advance(2100 * time.Millisecond)
	ts.sm.Tick()
	if ts.sm.State() != StateOnCC {
		t.Fatalf("state = %v, want on_cc after hangtime", ts.sm.State())
	}
	if len(ts.rec.returns) != 1 || ts.rec.returns[0] != 851012500 {
		t.Fatalf("returns = %v, want one return to 851012500", ts.rec.returns)
	}

	c := ts.sm.Counters()
	if c.Tunes != 1 || c.Releases != 1 || c.CCReturns != 1 {
		t.Errorf("counters = %+v, want tunes=1 releases=1 cc_returns=1", c)
	}
	rel := ts.eventsOfType("release")
	if len(rel) != 1 || rel[0].Reason != "hangtime" {
		t.Errorf("release events = %+v, want one with reason hangtime", rel)
	}
}

func TestEncryptedGrantWithoutKey(t *testing.T) {
	t.Run("tuning_encrypted_disabled", func(t *testing.T) {
		ts := newTestSM(t, func(c *Config) { c.TuneEncCalls = false })
		ts.parkOnCC(851012500)
		trustIden(ts.sm, 2, 0)

		grant := GrantEvent{Channel: 0x2001, TG: 9999, IsGroup: true, SvcBits: SvcEncrypted, Slot: -1}
		ts.sm.HandleGrant(grant)
		if len(ts.rec.voiceFreqs) != 0 {
			t.Fatalf("tune hook called for policy-rejected grant: %v", ts.rec.voiceFreqs)
		}
		if ts.sm.State() != StateOnCC {
			t.Fatalf("state = %v, want on_cc", ts.sm.State())
		}
		if got := len(ts.eventsOfType("lockout")); got != 1 {
			t.Fatalf("lockout events = %d, want 1", got)
		}

		// Second identical grant produces no new lockout.
		ts.sm.HandleGrant(grant)
		if got := len(ts.eventsOfType("lockout")); got != 1 {
			t.Errorf("lockout events after repeat = %d, want 1", got)
		}
		if got := len(ts.sm.Lockouts()); got != 1 {
			t.Errorf("history rows = %d, want 1", got)
		}
	})

	t.Run("tuning_encrypted_enabled_gate_closed", func(t *testing.T) {
		ts := newTestSM(t, nil)
		ts.parkOnCC(851012500)
		trustIden(ts.sm, 2, 0)

		ts.sm.HandleGrant(GrantEvent{Channel: 0x2001, TG: 9999, IsGroup: true, SvcBits: SvcEncrypted, Slot: -1})
		if len(ts.rec.voiceFreqs) != 1 {
			t.Fatalf("tune hook calls = %d, want 1", len(ts.rec.voiceFreqs))
		}
		ts.sm.HandleEnc(EncEvent{Slot: 0, AlgID: 0x84, KeyID: 0x0001, TG: 9999})
		if ts.sm.AudioAllowed(0) {
			t.Error("gate open for encrypted call without key")
		}
		if got := len(ts.eventsOfType("lockout")); got != 1 {
			t.Errorf("lockout events = %d, want 1", got)
		}
		ts.sm.HandleEnc(EncEvent{Slot: 0, AlgID: 0x84, KeyID: 0x0001, TG: 9999})
		if got := len(ts.eventsOfType("lockout")); got != 1 {
			t.Errorf("lockout events after repeat = %d, want 1", got)
		}
	})
}

func TestGrantPolicyFilters(t *testing.T) {
	t.Run("unresolved_channel_dropped", func(t *testing.T) {
		ts := newTestSM(t, nil)
		ts.parkOnCC(851012500)
		// IDEN 7 never observed.
		ts.sm.HandleGrant(GrantEvent{Channel: 0x7001, TG: 100, IsGroup: true, Slot: -1})
		if ts.sm.State() != StateOnCC {
			t.Fatalf("state = %v, want on_cc", ts.sm.State())
		}
		if ts.sm.Counters().DroppedGrants != 1 {
			t.Errorf("dropped grants = %d, want 1", ts.sm.Counters().DroppedGrants)
		}
	})

	t.Run("private_calls_disabled", func(t *testing.T) {
		ts := newTestSM(t, func(c *Config) { c.TunePrivateCalls = false })
		ts.parkOnCC(851012500)
		trustIden(ts.sm, 2, 0)
		ts.sm.HandleGrant(GrantEvent{Channel: 0x2001, DstRID: 42, IsGroup: false, Slot: -1})
		if len(ts.rec.voiceFreqs) != 0 {
			t.Error("tuned a private call with private tuning disabled")
		}
	})

	t.Run("data_calls_disabled", func(t *testing.T) {
		ts := newTestSM(t, nil)
		ts.parkOnCC(851012500)
		trustIden(ts.sm, 2, 0)
		ts.sm.HandleGrant(GrantEvent{Channel: 0x2001, TG: 100, IsGroup: true, SvcBits: SvcData, Slot: -1})
		if len(ts.rec.voiceFreqs) != 0 {
			t.Error("tuned a data call with data tuning disabled")
		}
	})
}

func TestGrantTimeoutReleasesArmedCall(t *testing.T) {
	ts := newTestSM(t, nil)
	ts.parkOnCC(851012500)
	trustIden(ts.sm, 2, 0)

	ts.sm.HandleGrant(GrantEvent{Channel: 0x2001, TG: 1234, IsGroup: true, Slot: -1})
	ts.clock.advance(3100 * time.Millisecond)
	ts.sm.Tick()

	if ts.sm.State() != StateOnCC {
		t.Fatalf("state = %v, want on_cc", ts.sm.State())
	}
	rel := ts.eventsOfType("release")
	if len(rel) != 1 || rel[0].Reason != "grant_timeout" {
		t.Fatalf("release events = %+v, want one grant_timeout", rel)
	}
}

func TestHangtimeGrantHandling(t *testing.T) {
	setup := func(t *testing.T) *testSM {
		ts := newTestSM(t, nil)
		ts.parkOnCC(851012500)
		trustIden(ts.sm, 2, 0)
		ts.sm.HandleGrant(GrantEvent{Channel: 0x2001, TG: 1234, IsGroup: true, Slot: -1})
		ts.sm.HandleSlot(SlotEvent{Kind: SlotPTT, Slot: -1})
		ts.clock.advance(time.Second)
		ts.sm.HandleSlot(SlotEvent{Kind: SlotEnd, Slot: -1})
		return ts
	}

	t.Run("same_tg_resumes_without_retune", func(t *testing.T) {
		ts := setup(t)
		ts.sm.HandleGrant(GrantEvent{Channel: 0x2001, TG: 1234, SrcRID: 99, IsGroup: true, Slot: -1})
		if len(ts.rec.voiceFreqs) != 1 {
			t.Fatalf("voice tunes = %d, want 1 (no retune on resume)", len(ts.rec.voiceFreqs))
		}
		if ts.sm.Phase() != PhaseArmed {
			t.Errorf("phase = %v, want armed", ts.sm.Phase())
		}
		if ts.sm.Voice().SrcRID != 99 {
			t.Errorf("src = %d, want 99", ts.sm.Voice().SrcRID)
		}
	})

	t.Run("different_tg_retunes", func(t *testing.T) {
		ts := setup(t)
		ts.sm.HandleGrant(GrantEvent{Channel: 0x2002, TG: 777, IsGroup: true, Slot: -1})
		if len(ts.rec.voiceFreqs) != 2 {
			t.Fatalf("voice tunes = %d, want 2", len(ts.rec.voiceFreqs))
		}
		if ts.sm.Voice().TG != 777 {
			t.Errorf("tg = %d, want 777", ts.sm.Voice().TG)
		}
	})
}

func TestNoPreemptionMidCall(t *testing.T) {
	ts := newTestSM(t, nil)
	ts.parkOnCC(851012500)
	trustIden(ts.sm, 2, 0)

	ts.sm.HandleGrant(GrantEvent{Channel: 0x2001, TG: 1234, IsGroup: true, Slot: -1})
	ts.sm.HandleSlot(SlotEvent{Kind: SlotPTT, Slot: -1})

	ts.sm.HandleGrant(GrantEvent{Channel: 0x2002, TG: 777, IsGroup: true, Slot: -1})
	if ts.sm.Voice().TG != 1234 {
		t.Fatalf("tg = %d, want 1234 (no pre-emption)", ts.sm.Voice().TG)
	}
	if len(ts.rec.voiceFreqs) != 1 {
		t.Fatalf("voice tunes = %d, want 1", len(ts.rec.voiceFreqs))
	}

	// A talkgroup hold pre-empts.
	ts.sm.SetTalkgroupHold(777)
	ts.sm.HandleGrant(GrantEvent{Channel: 0x2002, TG: 777, IsGroup: true, Slot: -1})
	if ts.sm.Voice().TG != 777 {
		t.Fatalf("tg = %d, want 777 after hold grant", ts.sm.Voice().TG)
	}
}

func TestCCLossAndHuntRecovery(t *testing.T) {
	ts := newTestSM(t, nil)
	ts.parkOnCC(851012500)
	ts.sm.Candidates().Add(852000000, false)
	ts.sm.Candidates().Add(853000000, false)

	ts.sm.HandleSync(SyncEvent{Kind: SyncLost})
	ts.clock.advance(5100 * time.Millisecond)
	ts.sm.Tick()

	if ts.sm.State() != StateHunting {
		t.Fatalf("state = %v, want hunting", ts.sm.State())
	}
	if len(ts.rec.ccFreqs) != 1 || ts.rec.ccFreqs[0] != 852000000 {
		t.Fatalf("cc tunes = %v, want [852000000]", ts.rec.ccFreqs)
	}

	t.Run("cc_sync_recovers", func(t *testing.T) {
		ts.sm.HandleSync(SyncEvent{Kind: SyncCC})
		if ts.sm.State() != StateOnCC {
			t.Fatalf("state = %v, want on_cc", ts.sm.State())
		}
		if ts.sm.CCFreq() != 852000000 {
			t.Errorf("cc freq = %d, want confirmed candidate 852000000", ts.sm.CCFreq())
		}
	})
}

func TestHuntBackoffIteratesCandidates(t *testing.T) {
	ts := newTestSM(t, nil)
	ts.parkOnCC(851012500)
	ts.sm.Candidates().Add(852000000, false)
	ts.sm.Candidates().Add(853000000, false)

	ts.sm.HandleSync(SyncEvent{Kind: SyncLost})
	ts.clock.advance(5100 * time.Millisecond)
	ts.sm.Tick()
	if len(ts.rec.ccFreqs) != 1 {
		t.Fatalf("cc tunes = %d, want 1", len(ts.rec.ccFreqs))
	}

	// Within backoff: no new attempt.
	ts.clock.advance(500 * time.Millisecond)
	ts.sm.Tick()
	if len(ts.rec.ccFreqs) != 1 {
		t.Fatalf("cc tunes = %d, want still 1 within backoff", len(ts.rec.ccFreqs))
	}

	ts.clock.advance(600 * time.Millisecond)
	ts.sm.Tick()
	if len(ts.rec.ccFreqs) != 2 || ts.rec.ccFreqs[1] != 853000000 {
		t.Fatalf("cc tunes = %v, want second attempt 853000000", ts.rec.ccFreqs)
	}
}

func TestHuntExhaustionGoesIdle(t *testing.T) {
	ts := newTestSM(t, nil)
	ts.parkOnCC(851012500)

	ts.sm.HandleSync(SyncEvent{Kind: SyncLost})
	ts.clock.advance(5100 * time.Millisecond)
	ts.sm.Tick()
	if ts.sm.State() != StateHunting {
		t.Fatalf("state = %v, want hunting", ts.sm.State())
	}

	ts.clock.advance(11 * time.Second)
	ts.sm.Tick()
	if ts.sm.State() != StateIdle {
		t.Fatalf("state = %v, want idle after hunt exhaustion", ts.sm.State())
	}
}

func TestShortTDMACallFlushesPartialAudio(t *testing.T) {
	ts := newTestSM(t, func(c *Config) { c.SimpleSM = true })
	ts.parkOnCC(851012500)
	trustIden(ts.sm, 3, 0x3)

	ts.sm.HandleGrant(GrantEvent{Channel: 0x3002, TG: 1234, IsGroup: true, Slot: 0})
	if !ts.sm.Voice().IsTDMA {
		t.Fatal("voice context not TDMA")
	}
	ts.sm.HandleSlot(SlotEvent{Kind: SlotPTT, Slot: 0})
	ts.clock.advance(300 * time.Millisecond)
	ts.sm.HandleSlot(SlotEvent{Kind: SlotEnd, Slot: 0})

	if ts.sm.State() != StateOnCC {
		t.Fatalf("state = %v, want on_cc (simple mode releases on call end)", ts.sm.State())
	}
	if len(ts.rec.flushes) != 1 || ts.rec.flushes[0] != 0 {
		t.Fatalf("flushes = %v, want [0]", ts.rec.flushes)
	}
	if len(ts.rec.returns) != 1 {
		t.Fatalf("returns = %d, want 1", len(ts.rec.returns))
	}
}

func TestVCLostReleasesAfterSustainedLoss(t *testing.T) {
	ts := newTestSM(t, nil)
	ts.parkOnCC(851012500)
	trustIden(ts.sm, 2, 0)

	ts.sm.HandleGrant(GrantEvent{Channel: 0x2001, TG: 1234, IsGroup: true, Slot: -1})
	ts.sm.HandleSlot(SlotEvent{Kind: SlotPTT, Slot: -1})
	ts.sm.HandleSync(SyncEvent{Kind: SyncLost})

	// Not sustained yet.
	ts.clock.advance(500 * time.Millisecond)
	ts.sm.Tick()
	if ts.sm.State() != StateTuned {
		t.Fatalf("state = %v, want still tuned inside grace", ts.sm.State())
	}

	ts.clock.advance(400 * time.Millisecond)
	ts.sm.Tick()
	if ts.sm.State() != StateOnCC {
		t.Fatalf("state = %v, want on_cc after sustained loss", ts.sm.State())
	}
	rel := ts.eventsOfType("release")
	if len(rel) != 1 || rel[0].Reason != "vc_lost" {
		t.Fatalf("release events = %+v, want one vc_lost", rel)
	}
}

func TestPatchClearOverridesEncLockout(t *testing.T) {
	ts := newTestSM(t, nil)
	ts.parkOnCC(851012500)
	trustIden(ts.sm, 2, 0)

	ts.sm.Patches().SetKAS(69, 0, 0x80, -1)
	ts.sm.Patches().AddWGID(69, 1234)

	ts.sm.HandleGrant(GrantEvent{Channel: 0x2001, TG: 1234, IsGroup: true, Slot: -1})
	ts.sm.HandleEnc(EncEvent{Slot: 0, AlgID: 0x84, KeyID: 0x0000, TG: 1234})

	if !ts.sm.AudioAllowed(0) {
		t.Error("gate closed despite patch-clear membership")
	}
	if got := len(ts.eventsOfType("lockout")); got != 0 {
		t.Errorf("lockout events = %d, want 0", got)
	}
}

func TestReleaseCountMatchesTunedExits(t *testing.T) {
	ts := newTestSM(t, nil)
	ts.parkOnCC(851012500)
	trustIden(ts.sm, 2, 0)

	for i := 0; i < 5; i++ {
		ts.sm.HandleGrant(GrantEvent{Channel: 0x2001, TG: uint32(100 + i), IsGroup: true, Slot: -1})
		if ts.sm.State() != StateTuned {
			t.Fatalf("iteration %d: not tuned", i)
		}
		ts.clock.advance(3100 * time.Millisecond)
		ts.sm.Tick()
		if ts.sm.State() != StateOnCC {
			t.Fatalf("iteration %d: not released", i)
		}
	}

	c := ts.sm.Counters()
	if c.Tunes != 5 || c.Releases != 5 {
		t.Errorf("counters = %+v, want tunes=5 releases=5", c)
	}
	if len(ts.rec.voiceFreqs) != 5 || len(ts.rec.returns) != 5 {
		t.Errorf("hook calls: tunes=%d returns=%d, want 5/5", len(ts.rec.voiceFreqs), len(ts.rec.returns))
	}
}

func TestTickIdempotentWithFrozenClock(t *testing.T) {
	states := []func(*testSM){
		func(ts *testSM) {}, // idle
		func(ts *testSM) { ts.parkOnCC(851012500) },
		func(ts *testSM) {
			ts.parkOnCC(851012500)
			trustIden(ts.sm, 2, 0)
			ts.sm.HandleGrant(GrantEvent{Channel: 0x2001, TG: 1, IsGroup: true, Slot: -1})
		},
		func(ts *testSM) {
			ts.parkOnCC(851012500)
			ts.sm.Candidates().Add(852000000, false)
			ts.sm.HandleSync(SyncEvent{Kind: SyncLost})
			ts.clock.advance(5100 * time.Millisecond)
		},
	}

	for i, setup := range states {
		ts := newTestSM(t, nil)
		setup(ts)

		// Let any pending timeout fire, then the machine must be stable.
		ts.sm.Tick()
		ts.sm.Tick()
		before := *ts.sm.Snapshot()
		beforeHooks := len(ts.rec.voiceFreqs) + len(ts.rec.ccFreqs) + len(ts.rec.returns)

		for j := 0; j < 10; j++ {
			ts.sm.Tick()
		}
		after := *ts.sm.Snapshot()
		afterHooks := len(ts.rec.voiceFreqs) + len(ts.rec.ccFreqs) + len(ts.rec.returns)

		if before.State != after.State || before.Phase != after.Phase ||
			before.Counters != after.Counters {
			t.Errorf("case %d: state changed under frozen clock: %+v -> %+v", i, before, after)
		}
		if beforeHooks != afterHooks {
			t.Errorf("case %d: hooks fired under frozen clock", i)
		}
	}
}

func TestSiteChangeScrubsLockoutSession(t *testing.T) {
	ts := newTestSM(t, nil)
	ts.parkOnCC(851012500)
	ts.sm.HandleSite(SiteEvent{WACN: 0xBEE00, SysID: 0x123})

	ts.sm.HandleEnc(EncEvent{Slot: 0, AlgID: 0x84, KeyID: 1, TG: 500})
	if got := len(ts.eventsOfType("lockout")); got != 1 {
		t.Fatalf("lockout events = %d, want 1", got)
	}

	ts.sm.HandleSite(SiteEvent{WACN: 0xBEE00, SysID: 0x456})
	ts.sm.HandleEnc(EncEvent{Slot: 0, AlgID: 0x84, KeyID: 1, TG: 500})
	if got := len(ts.eventsOfType("lockout")); got != 2 {
		t.Fatalf("lockout events = %d, want 2 after site change", got)
	}
}

func TestLoadedKeyOpensGate(t *testing.T) {
	ts := newTestSM(t, nil)
	ts.parkOnCC(851012500)
	trustIden(ts.sm, 2, 0)
	ts.sm.LoadKey(0x0123)

	ts.sm.HandleGrant(GrantEvent{Channel: 0x2001, TG: 1234, IsGroup: true, SvcBits: SvcEncrypted, Slot: -1})
	ts.sm.HandleEnc(EncEvent{Slot: 0, AlgID: 0x84, KeyID: 0x0123, TG: 1234})

	if !ts.sm.AudioAllowed(0) {
		t.Error("gate closed despite loaded key")
	}
	if got := len(ts.eventsOfType("lockout")); got != 0 {
		t.Errorf("lockout events = %d, want 0 with loaded key", got)
	}
}

func TestLCWRetuneFollowsChannelMove(t *testing.T) {
	ts := newTestSM(t, func(c *Config) { c.LCWRetune = true })
	ts.parkOnCC(851012500)
	trustIden(ts.sm, 2, 0)

	ts.sm.HandleGrant(GrantEvent{Channel: 0x2001, TG: 1234, IsGroup: true, Slot: -1})
	ts.sm.HandleSlot(SlotEvent{Kind: SlotPTT, Slot: -1})

	// Mid-call channel update for the same talkgroup moves the receiver.
	ts.sm.HandleGrant(GrantEvent{Channel: 0x2003, TG: 1234, IsGroup: true, Slot: -1})
	if len(ts.rec.voiceFreqs) != 2 {
		t.Fatalf("voice tunes = %d, want 2", len(ts.rec.voiceFreqs))
	}
	if ts.sm.Counters().Releases != 0 {
		t.Errorf("releases = %d, want 0 (channel move is not a call end)", ts.sm.Counters().Releases)
	}
}

func TestPreferCCCandidatesKeepsHunting(t *testing.T) {
	ts := newTestSM(t, func(c *Config) { c.PreferCCCandidates = true })
	ts.parkOnCC(851012500)
	ts.sm.Candidates().Add(852000000, false)
	ts.sm.Candidates().SetCooldown(852000000, ts.clock.Now().Add(time.Hour))

	ts.sm.HandleSync(SyncEvent{Kind: SyncLost})
	ts.clock.advance(5100 * time.Millisecond)
	ts.sm.Tick()
	ts.clock.advance(30 * time.Second)
	ts.sm.Tick()

	if ts.sm.State() != StateHunting {
		t.Fatalf("state = %v, want hunting (cache trusted through cooldown)", ts.sm.State())
	}
}
