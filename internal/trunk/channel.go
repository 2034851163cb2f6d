package trunk

// P25 channel identifiers: a 16-bit channel number carries an IDEN in the
// upper 4 bits and a channel index in the lower 12. The IDEN selects an
// entry in the site's channel plan, broadcast periodically on the control
// channel. A plan entry is only usable once it has been observed twice
// with identical parameters — single corrupted IDEN_UP PDUs otherwise
// produce wildly wrong voice frequencies.

const idenTrustThreshold = 2

// idenRecord holds one channel-plan entry as broadcast: base frequency in
// 5 Hz units, channel spacing in 125 Hz units, a transmit offset, and the
// access-type nibble (FDMA vs 2-slot TDMA).
type idenRecord struct {
	base    uint32 // 5 Hz units
	spacing uint32 // 125 Hz units
	offset  int32
	accType uint8
	seen    int
}

func (r *idenRecord) trusted() bool { return r.seen >= idenTrustThreshold }

func (r *idenRecord) slots() int {
	// Access types 0x0..0x2 are FDMA in practice; the TDMA plans in the
	// field announce types >= 0x3 with two voice slots per carrier.
	if r.accType >= 0x3 {
		return 2
	}
	return 1
}

// ChannelPlan maps the 16 possible IDENs to their plan entries.
type ChannelPlan struct {
	idens [16]idenRecord
}

// NewChannelPlan returns an empty plan; entries become usable only after
// Observe has seen them consistently.
func NewChannelPlan() *ChannelPlan {
	return &ChannelPlan{}
}

// Observe records an IDEN_UP broadcast. A re-observation with different
// parameters resets the trust counter, so a plan entry is trusted only
// after two consecutive consistent sightings.
func (p *ChannelPlan) Observe(iden uint8, base uint32, spacing uint32, offset int32, accType uint8) {
	if iden > 0xF {
		return
	}
	r := &p.idens[iden]
	if r.seen > 0 && (r.base != base || r.spacing != spacing || r.offset != offset || r.accType != accType) {
		*r = idenRecord{base: base, spacing: spacing, offset: offset, accType: accType, seen: 1}
		return
	}
	r.base = base
	r.spacing = spacing
	r.offset = offset
	r.accType = accType
	r.seen++
}

// Trusted reports whether the IDEN for the given channel number has been
// seen consistently enough to resolve frequencies.
func (p *ChannelPlan) Trusted(channel uint16) bool {
	return p.idens[channel>>12].trusted()
}

// FreqHz resolves a channel number to a frequency in Hz. Returns 0 when
// the IDEN is unknown or not yet trusted. On TDMA plans the channel index
// encodes the slot in its low bit, so the index is divided by the slot
// count before applying the spacing.
func (p *ChannelPlan) FreqHz(channel uint16) int64 {
	r := &p.idens[channel>>12]
	if !r.trusted() || r.spacing == 0 {
		return 0
	}
	idx := int64(channel & 0x0FFF)
	idx /= int64(r.slots())
	return int64(r.base)*5 + idx*int64(r.spacing)*125
}

// IsTDMA reports whether the channel's plan entry is a two-slot TDMA plan.
// Untrusted IDENs report false.
func (p *ChannelPlan) IsTDMA(channel uint16) bool {
	r := &p.idens[channel>>12]
	return r.trusted() && r.slots() == 2
}

// Slot resolves the voice slot encoded in a TDMA channel number (-1 for
// FDMA channels).
func (p *ChannelPlan) Slot(channel uint16) int {
	r := &p.idens[channel>>12]
	if !r.trusted() || r.slots() == 1 {
		return -1
	}
	return int(channel & 1)
}

// VoiceSlot maps a Phase 2 SACCH slot index to the voice-frame slot it
// describes. SACCH signalling for one slot rides in the opposite timeslot,
// so the index inverts; FDMA events (slot < 0) pass through unchanged.
// Every MAC emission point must route slot numbers through here exactly
// once before they reach the state machine.
func VoiceSlot(sacchSlot int) int {
	if sacchSlot < 0 {
		return sacchSlot
	}
	return sacchSlot ^ 1
}
