package trunk

import "time"

// Tick runs the timeout hierarchy. It is called at the watchdog cadence
// (1-10 Hz) from the processing goroutine and is idempotent: repeated
// calls with an unchanged clock produce no state change.
func (sm *StateMachine) Tick() {
	now := sm.now()

	switch sm.state {
	case StateOnCC:
		sm.tickOnCC(now)
	case StateTuned:
		sm.tickTuned(now)
	case StateHunting:
		sm.tickHunting(now)
	}

	// Housekeeping sweeps at one hertz regardless of tick cadence.
	if now.Sub(sm.lastSweep) >= time.Second {
		sm.lastSweep = now
		sm.affs.Sweep(now, sm.cfg.AffRetention)
		sm.gaffs.Sweep(now, sm.cfg.AffRetention)
		sm.patches.Sweep(now, sm.cfg.PatchRetention)
	}

	sm.publish()
}

func (sm *StateMachine) tickOnCC(now time.Time) {
	if sm.syncLost && now.Sub(sm.tCCSync) > sm.cfg.CCGrace {
		sm.startHunt(now)
		sm.tickHunting(now)
	}
}

func (sm *StateMachine) tickTuned(now time.Time) {
	switch sm.phase {
	case PhaseArmed:
		timeout := sm.cfg.GrantTimeout
		if sm.cfg.GrantVoiceTimeout > 0 {
			timeout = sm.cfg.GrantVoiceTimeout
		}
		if now.Sub(sm.tTune) > timeout {
			sm.release("grant_timeout")
		}
	case PhaseFollowing:
		if sm.syncLost && now.Sub(sm.tSyncLost) > sm.vcGrace() {
			sm.release("vc_lost")
			return
		}
		// Backstop for a missed END: every monitored slot silent past the
		// voice and MAC holds counts as quiescent.
		hold := sm.cfg.VoiceHold
		if sm.cfg.MACHold > hold {
			hold = sm.cfg.MACHold
		}
		if hold > 0 {
			quiet := now.Sub(sm.tLastMAC) > hold
			for i := 0; quiet && i < sm.monitoredSlots(); i++ {
				st := &sm.slots[i]
				if st.voiceActive && now.Sub(st.lastActive) <= hold {
					quiet = false
				}
			}
			if quiet {
				for i := range sm.slots {
					sm.slots[i].voiceActive = false
				}
				sm.phase = PhaseHangtime
				sm.tHangtime = now
			}
		}
	case PhaseHangtime:
		if sm.syncLost && now.Sub(sm.tSyncLost) > sm.vcGrace() {
			sm.release("vc_lost")
			return
		}
		deadline := sm.cfg.Hangtime + sm.cfg.ForceReleaseExtra
		if now.Sub(sm.tHangtime) <= deadline {
			return
		}
		if now.Sub(sm.tTune) < sm.cfg.MinFollowDwell {
			return
		}
		if now.Before(sm.errHoldUntil) {
			return
		}
		sm.release("hangtime")
	}
}

func (sm *StateMachine) vcGrace() time.Duration {
	if sm.cfg.VCGrace > 0 {
		return sm.cfg.VCGrace
	}
	return time.Second
}

func (sm *StateMachine) startHunt(now time.Time) {
	sm.state = StateHunting
	sm.tHuntTry = time.Time{}
	sm.tHuntStart = now
	sm.log.Warn().
		Int64("last_cc_hz", sm.ccFreq).
		Int("candidates", sm.cands.Len()).
		Msg("control channel lost, hunting")
	sm.emit(OutEvent{Type: "hunting", FreqHz: sm.ccFreq, Slot: -1})
}

func (sm *StateMachine) tickHunting(now time.Time) {
	backoff := sm.cfg.RetuneBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	if !sm.tHuntTry.IsZero() && now.Sub(sm.tHuntTry) <= backoff {
		return
	}

	cand, ok := sm.cands.Next(now, sm.ccFreq)
	if !ok {
		// With candidate preference on, a non-empty cache is trusted
		// through its cooldowns instead of idling out.
		if sm.cfg.PreferCCCandidates && sm.cands.Len() > 0 {
			return
		}
		// Grace doubles the CC grace: enough for one full rotation of a
		// healthy candidate list before giving up.
		if now.Sub(sm.tHuntStart) > 2*sm.cfg.CCGrace {
			sm.state = StateIdle
			sm.log.Warn().Msg("hunt exhausted, going idle")
			sm.emit(OutEvent{Type: "idle", Slot: -1})
		}
		return
	}

	sm.huntFreq = cand
	sm.tHuntTry = now
	sm.counters.HuntAttempts++
	sm.hooks.TuneCC(cand, tedSPSHint(false))
	sm.log.Info().Int64("freq_hz", cand).Msg("trying control-channel candidate")
	sm.emit(OutEvent{Type: "hunt", FreqHz: cand, Slot: -1})
}
