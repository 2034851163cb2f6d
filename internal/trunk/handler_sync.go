package trunk

import "time"

// HandleSync processes demodulator sync indications. Sync events carry no
// payload; all timestamping happens here. Loss-driven transitions are
// deferred to the tick so that a brief dropout inside the grace windows
// never tears down state.
func (sm *StateMachine) HandleSync(e SyncEvent) {
	now := sm.now()
	defer sm.publish()

	switch e.Kind {
	case SyncCC:
		sm.syncLost = false
		sm.tCCSync = now
		switch sm.state {
		case StateIdle:
			sm.state = StateOnCC
			sm.log.Info().Int64("freq_hz", sm.ccFreq).Msg("control channel acquired")
			sm.emit(OutEvent{Type: "cc_sync", FreqHz: sm.ccFreq, Slot: -1})
		case StateHunting:
			// The candidate we last tuned is confirmed as the control channel.
			if sm.huntFreq != 0 {
				sm.ccFreq = sm.huntFreq
				sm.huntFreq = 0
			}
			sm.state = StateOnCC
			sm.tHuntTry = time.Time{}
			sm.tHuntStart = time.Time{}
			sm.log.Info().Int64("freq_hz", sm.ccFreq).Msg("control channel recovered")
			sm.emit(OutEvent{Type: "cc_sync", FreqHz: sm.ccFreq, Slot: -1})
		}
	case SyncVC:
		sm.syncLost = false
		if sm.state == StateTuned {
			sm.tLastMAC = now
		}
	case SyncLost:
		if !sm.syncLost {
			sm.syncLost = true
			sm.tSyncLost = now
		}
	}
}
