package trunk

// HandleSlot processes a per-slot voice activity indication. Slot numbers
// here are voice-frame slots; SACCH-relative emitters normalize through
// VoiceSlot before this point.
func (sm *StateMachine) HandleSlot(e SlotEvent) {
	now := sm.now()
	sm.tLastMAC = now
	defer sm.publish()

	idx := sm.slotIndex(e.Slot)
	st := &sm.slots[idx]

	switch e.Kind {
	case SlotPTT, SlotActive:
		st.voiceActive = true
		st.hadVoice = true
		st.lastActive = now
		if sm.state == StateTuned && (sm.phase == PhaseArmed || sm.phase == PhaseHangtime) {
			sm.phase = PhaseFollowing
		}
	case SlotEnd, SlotIdle:
		st.voiceActive = false
		st.lastActive = now
		sm.checkQuiescent()
	}
}

// HandleTDU processes a Phase 1 terminator data unit: the single-carrier
// call is over.
func (sm *StateMachine) HandleTDU() {
	now := sm.now()
	sm.tLastMAC = now
	defer sm.publish()

	for i := range sm.slots {
		if sm.slots[i].voiceActive {
			sm.slots[i].voiceActive = false
			sm.slots[i].lastActive = now
		}
	}
	sm.checkQuiescent()
}

// checkQuiescent moves FOLLOWING to HANGTIME once every monitored slot has
// gone quiet (or releases immediately in simple mode).
func (sm *StateMachine) checkQuiescent() {
	if sm.state != StateTuned || sm.phase != PhaseFollowing {
		return
	}
	for i := 0; i < sm.monitoredSlots(); i++ {
		if sm.slots[i].voiceActive {
			return
		}
	}
	if sm.cfg.SimpleSM {
		sm.release("call_end")
		return
	}
	sm.phase = PhaseHangtime
	sm.tHangtime = sm.now()
}

// HandleEnc processes encryption parameters decoded for a slot. The gate
// result changes implicitly through the slot state; when the call cannot
// be followed in the clear the lockout notification fires once per
// talkgroup, and, with encrypted-call tuning disabled, a fully locked
// call is released early.
func (sm *StateMachine) HandleEnc(e EncEvent) {
	now := sm.now()
	sm.tLastMAC = now
	defer sm.publish()

	idx := sm.slotIndex(e.Slot)
	st := &sm.slots[idx]
	st.algID = e.AlgID
	st.keyID = e.KeyID
	if e.TG != 0 {
		st.tg = e.TG
	}

	if algIsClear(e.AlgID) {
		return
	}
	tg := st.tg
	if tg == 0 {
		tg = sm.vc.TG
	}
	if sm.keyLoaded(e.KeyID) || sm.patches.TGKeyIsClear(tg) || sm.cfg.UnmuteEnc {
		return
	}
	sm.emitLockout(tg, e.Slot, e.AlgID, e.KeyID)

	if sm.state == StateTuned && !sm.cfg.TuneEncCalls && sm.allSlotsLocked() {
		sm.release("enc_lockout")
	}
}

// allSlotsLocked reports whether every monitored slot is carrying
// non-clear traffic the gate will not release.
func (sm *StateMachine) allSlotsLocked() bool {
	for i := 0; i < sm.monitoredSlots(); i++ {
		if sm.AudioAllowed(i) {
			return false
		}
	}
	return true
}

// HandleNeighbors records control-channel frequencies announced by
// network-status PDUs and, once the site identity is known, persists the
// candidate cache.
func (sm *StateMachine) HandleNeighbors(e NeighborEvent) {
	sm.tLastMAC = sm.now()
	for _, f := range e.FreqsHz {
		sm.cands.Add(f, true)
	}
	if sm.siteKnown {
		sm.cands.Save(sm.cfg.CacheDir, sm.site.WACN, sm.site.SysID)
	}
	sm.publish()
}

// HandleIden folds an IDEN_UP channel-plan broadcast into the plan.
func (sm *StateMachine) HandleIden(e IdenEvent) {
	sm.tLastMAC = sm.now()
	sm.plan.Observe(e.Iden, e.Base, e.Spacing, e.Offset, e.AccType)
}

// HandleSite processes a site identity announcement. A change of site
// scrubs the lockout session, swaps the candidate cache to the new site's
// persisted file, and clears the affiliation tables.
func (sm *StateMachine) HandleSite(e SiteEvent) {
	site := Site{WACN: e.WACN, SysID: e.SysID, NAC: e.NAC}
	if sm.siteKnown && site == sm.site {
		return
	}
	defer sm.publish()

	if sm.siteKnown {
		sm.cands.Save(sm.cfg.CacheDir, sm.site.WACN, sm.site.SysID)
		sm.cands.Clear()
		sm.lockout.Scrub()
		sm.affs = NewAffiliationTable(512)
		sm.gaffs = NewGroupAffiliationTable(1024)
	}
	sm.site = site
	sm.siteKnown = true
	loaded := sm.cands.Load(sm.cfg.CacheDir, site.WACN, site.SysID)
	sm.log.Info().
		Str("cache_file", CacheFileName(site.WACN, site.SysID)).
		Uint32("wacn", site.WACN).
		Uint("sysid", uint(site.SysID)).
		Int("candidates_loaded", loaded).
		Msg("site identified")
}

// HandleRegistration records a unit registration MAC.
func (sm *StateMachine) HandleRegistration(rid uint32) {
	sm.affs.Register(rid, sm.now())
}

// HandleDeregistration removes a unit and its group bindings.
func (sm *StateMachine) HandleDeregistration(rid uint32) {
	sm.affs.Deregister(rid)
	sm.gaffs.DeregisterRadio(rid)
}

// HandleGroupAffiliation records a (radio, talkgroup) binding.
func (sm *StateMachine) HandleGroupAffiliation(rid, tg uint32) {
	sm.affs.Register(rid, sm.now())
	sm.gaffs.Register(rid, tg, sm.now())
}

// ReportVoiceErrors feeds the voice decoder's error percentage for a
// slot. Rates at or above the configured threshold extend the hangtime
// window, keeping the follower on a degraded but live call.
func (sm *StateMachine) ReportVoiceErrors(slot int, pct float64) {
	if sm.cfg.ErrHoldPct <= 0 || sm.cfg.ErrHold <= 0 {
		return
	}
	if pct >= sm.cfg.ErrHoldPct {
		sm.errHoldUntil = sm.now().Add(sm.cfg.ErrHold)
	}
}
