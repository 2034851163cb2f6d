package trunk

// HandleGrant processes a voice-channel grant from the control channel.
// Policy filters run before any tuning side effect; a rejected grant is
// dropped silently apart from counters and, for encryption rejections,
// the once-per-talkgroup lockout notification.
func (sm *StateMachine) HandleGrant(e GrantEvent) {
	now := sm.now()
	sm.counters.Grants++
	sm.tLastMAC = now
	defer sm.publish()

	freq := e.FreqHz
	if freq == 0 {
		freq = sm.plan.FreqHz(e.Channel)
	}
	if freq == 0 {
		sm.counters.DroppedGrants++
		sm.log.Debug().
			Uint("channel", uint(e.Channel)).
			Uint32("tg", e.TG).
			Msg("grant dropped: channel unresolved")
		return
	}

	if e.IsGroup && !sm.cfg.TuneGroupCalls {
		sm.counters.DroppedGrants++
		return
	}
	if !e.IsGroup && !sm.cfg.TunePrivateCalls {
		sm.counters.DroppedGrants++
		return
	}
	if e.SvcBits&SvcData != 0 && !sm.cfg.TuneDataCalls {
		sm.counters.DroppedGrants++
		return
	}
	if sm.groups != nil {
		if sm.groups.Blocked(e.TG) {
			sm.counters.DroppedGrants++
			return
		}
		if sm.cfg.AllowListMode && !sm.groups.Allowed(e.TG) {
			sm.counters.DroppedGrants++
			return
		}
	}
	if e.SvcBits&SvcEncrypted != 0 && !sm.cfg.TuneEncCalls &&
		!sm.patches.TGKeyIsClear(e.TG) {
		sm.counters.DroppedGrants++
		sm.emitLockout(e.TG, e.Slot, 0, 0)
		return
	}

	if e.SrcRID != 0 {
		sm.affs.Register(e.SrcRID, now)
		if e.IsGroup {
			sm.gaffs.Register(e.SrcRID, e.TG, now)
		}
	}

	switch sm.state {
	case StateOnCC:
		sm.tune(e, freq)
	case StateTuned:
		switch {
		case sm.phase == PhaseHangtime && e.TG == sm.vc.TG:
			// Same call resuming inside hangtime: no retune, just re-arm.
			sm.phase = PhaseArmed
			sm.tTune = now
			sm.vc.SrcRID = e.SrcRID
		case sm.phase == PhaseHangtime:
			sm.tune(e, freq)
		case sm.holdTG != 0 && e.TG == sm.holdTG && e.TG != sm.vc.TG:
			// Talkgroup hold pre-empts the current call.
			sm.release("tg_hold")
			sm.tune(e, freq)
		case sm.cfg.LCWRetune && e.TG == sm.vc.TG && freq != sm.vc.FreqHz:
			// Explicit channel update for the call in progress.
			sm.tune(e, freq)
		default:
			// No pre-emption mid-call.
		}
	default:
		// Grants are only actionable with control-channel context.
	}
}

func (sm *StateMachine) tune(e GrantEvent, freqHz int64) {
	now := sm.now()
	isTDMA := sm.plan.IsTDMA(e.Channel)
	sm.vc = VoiceContext{
		FreqHz:  freqHz,
		Channel: e.Channel,
		TG:      e.TG,
		SrcRID:  e.SrcRID,
		IsTDMA:  isTDMA,
		EncBit:  e.SvcBits&SvcEncrypted != 0,
	}
	sm.slots = [2]slotState{{tg: e.TG}, {}}
	if isTDMA {
		sm.slots[1].tg = e.TG
	}
	sm.state = StateTuned
	sm.phase = PhaseArmed
	sm.tTune = now
	sm.counters.Tunes++

	sm.hooks.TuneVoice(freqHz, tedSPSHint(isTDMA))
	sm.log.Info().
		Int64("freq_hz", freqHz).
		Uint32("tg", e.TG).
		Uint32("src", e.SrcRID).
		Bool("tdma", isTDMA).
		Msg("tuned to voice channel")
	sm.emit(OutEvent{
		Type:    "tune",
		TG:      e.TG,
		SrcRID:  e.SrcRID,
		FreqHz:  freqHz,
		Channel: e.Channel,
		Slot:    e.Slot,
	})
}

// tedSPSHint maps the channel's access type to the demodulator's
// timing-error-detector samples-per-symbol hint.
func tedSPSHint(tdma bool) int {
	if tdma {
		return 4
	}
	return 10
}

func (sm *StateMachine) emitLockout(tg uint32, slot int, alg uint8, key uint16) {
	// Groups the directory already marks encrypted-expected are gated
	// without the notification.
	if sm.groups != nil && sm.groups.EncryptedExpected(tg) {
		return
	}
	if !sm.lockout.Emit(tg, slot, alg, key) {
		return
	}
	sm.counters.EncLockouts++
	sm.emit(OutEvent{
		Type:  "lockout",
		TG:    tg,
		Slot:  slot,
		AlgID: alg,
		KeyID: key,
	})
}
