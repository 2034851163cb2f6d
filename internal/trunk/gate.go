package trunk

// AudioAllowed is the per-slot audio gate: it decides whether decoded
// audio for the slot is released to the output paths. Queried
// continuously by the audio writers and the stereo mixer; each slot is
// evaluated independently and never cross-mutes the other.
//
// The gate closes when the slot carries a non-clear algorithm, when the
// grant's encryption bit is set without a loaded key, or when the
// talkgroup fails the allow-list filter. "Unmute encrypted" and
// patch-clear membership reopen it for the encryption conditions only;
// nothing overrides the allow-list.
func (sm *StateMachine) AudioAllowed(slot int) bool {
	st := &sm.slots[sm.slotIndex(slot)]
	tg := st.tg
	if tg == 0 {
		tg = sm.vc.TG
	}

	if sm.groups != nil {
		if sm.cfg.AllowListMode && !sm.groups.Allowed(tg) {
			return false
		}
		if sm.groups.Blocked(tg) {
			return false
		}
	}

	encrypted := !algIsClear(st.algID)
	if sm.vc.EncBit && !sm.keyLoaded(st.keyID) {
		encrypted = true
	}
	if !encrypted {
		return true
	}
	if sm.keyLoaded(st.keyID) {
		return true
	}
	if sm.cfg.UnmuteEnc {
		return true
	}
	return sm.patches.TGKeyIsClear(tg)
}
