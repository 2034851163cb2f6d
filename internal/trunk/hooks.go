package trunk

// Hooks is the outbound contract to the tuner and voice subsystems. All
// hooks are fire-and-forget: implementations must not block beyond a
// bounded write timeout, and failures are invisible to the state machine
// (a failed tune is recovered by the grant timeout). Unset entries are
// replaced with no-ops, so a partially wired table is always safe to call.
type Hooks struct {
	// TuneVoice retunes the receiver to a granted voice channel. The
	// second argument hints the timing-error-detector samples-per-symbol
	// for the channel's access type.
	TuneVoice func(freqHz int64, tedSPSHint int)

	// TuneCC retunes to a candidate control channel while hunting.
	TuneCC func(freqHz int64, tedSPSHint int)

	// ReturnToCC restores the last known control-channel frequency.
	ReturnToCC func(freqHz int64)

	// FlushVoice asks the voice subsystem to flush partially assembled
	// audio for a slot. Short TDMA calls end before a full superframe
	// assembles; without the flush that audio is silently dropped.
	FlushVoice func(slot int)
}

func (h Hooks) normalized() Hooks {
	if h.TuneVoice == nil {
		h.TuneVoice = func(int64, int) {}
	}
	if h.TuneCC == nil {
		h.TuneCC = func(int64, int) {}
	}
	if h.ReturnToCC == nil {
		h.ReturnToCC = func(int64) {}
	}
	if h.FlushVoice == nil {
		h.FlushVoice = func(int) {}
	}
	return h
}
