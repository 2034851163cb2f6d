package trunk

// release is the only way to leave StateTuned. It flushes partially
// assembled TDMA audio, restores the control channel, resets per-slot
// activity, and bumps the statistics. Failure to retune is not fatal: the
// state moves to ON_CC regardless, and a subsequent sync loss drives
// hunting.
func (sm *StateMachine) release(reason string) {
	if sm.state != StateTuned {
		return
	}
	now := sm.now()
	duration := now.Sub(sm.tTune)

	if sm.vc.IsTDMA {
		for i := range sm.slots {
			if sm.slots[i].hadVoice {
				sm.hooks.FlushVoice(i)
			}
		}
	}

	released := sm.vc
	sm.counters.Releases++
	if reason == "hangtime" {
		sm.counters.CCReturns++
	}

	sm.state = StateOnCC
	sm.phase = PhaseArmed
	sm.vc = VoiceContext{}
	sm.slots = [2]slotState{}
	sm.errHoldUntil = now

	sm.hooks.ReturnToCC(sm.ccFreq)
	sm.log.Info().
		Str("reason", reason).
		Uint32("tg", released.TG).
		Int64("freq_hz", released.FreqHz).
		Dur("duration", duration).
		Msg("released voice channel")
	sm.emit(OutEvent{
		Type:     "release",
		TG:       released.TG,
		SrcRID:   released.SrcRID,
		FreqHz:   released.FreqHz,
		Channel:  released.Channel,
		Slot:     -1,
		Reason:   reason,
		Duration: duration,
	})
	sm.publish()
}

// Cancel releases any tuned call on user action, e.g. a manual return to
// the control channel.
func (sm *StateMachine) Cancel() {
	sm.release("cancelled")
}
