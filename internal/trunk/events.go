package trunk

// Inbound event contract from the demodulator and MAC decoders. Slot
// numbers are voice-frame slots: 0/1 for TDMA, -1 for Phase 1 FDMA.
// Emitters working from SACCH-relative slots must normalize through
// VoiceSlot before constructing these.

// GrantEvent is a voice-channel grant parsed from a TSBK or MAC PDU.
// FreqHz is 0 when the emitter could not resolve the channel itself; the
// state machine then consults its own channel plan.
type GrantEvent struct {
	Channel uint16
	FreqHz  int64
	TG      uint32
	SrcRID  uint32
	DstRID  uint32
	SvcBits uint8
	IsGroup bool
	Slot    int
}

// Service-option bits carried in grants and voice headers.
const (
	SvcEmergency = 0x80
	SvcEncrypted = 0x40
	SvcDuplex    = 0x20
	SvcData      = 0x10
)

// SlotEventKind enumerates per-slot voice activity indications.
type SlotEventKind uint8

const (
	SlotPTT SlotEventKind = iota
	SlotActive
	SlotEnd
	SlotIdle
)

func (k SlotEventKind) String() string {
	switch k {
	case SlotPTT:
		return "ptt"
	case SlotActive:
		return "active"
	case SlotEnd:
		return "end"
	default:
		return "idle"
	}
}

// SlotEvent is a per-slot voice activity indication.
type SlotEvent struct {
	Kind SlotEventKind
	Slot int
}

// SyncKind enumerates demodulator sync indications.
type SyncKind uint8

const (
	SyncCC SyncKind = iota
	SyncVC
	SyncLost
)

func (k SyncKind) String() string {
	switch k {
	case SyncCC:
		return "cc_sync"
	case SyncVC:
		return "vc_sync"
	default:
		return "sync_lost"
	}
}

// SyncEvent carries no payload; timestamping is the state machine's job.
type SyncEvent struct {
	Kind SyncKind
}

// EncEvent carries encryption parameters decoded from a voice header or
// MAC PDU for one slot.
type EncEvent struct {
	Slot  int
	AlgID uint8
	KeyID uint16
	TG    uint32
}

// NeighborEvent lists control-channel frequencies announced by
// network-status and adjacent-site PDUs.
type NeighborEvent struct {
	FreqsHz []int64
}

// IdenEvent is an IDEN_UP channel-plan broadcast.
type IdenEvent struct {
	Iden    uint8
	Base    uint32 // 5 Hz units
	Spacing uint32 // 125 Hz units
	Offset  int32
	AccType uint8
}

// SiteEvent announces the site identity decoded from the control channel.
type SiteEvent struct {
	WACN  uint32
	SysID uint16
	NAC   uint16
}

// algIsClear reports whether an algorithm ID denotes unencrypted voice.
// 0x80 is the P25 "clear" sentinel; 0x00 is seen from radios that never
// set the field.
func algIsClear(alg uint8) bool {
	return alg == 0x00 || alg == 0x80
}
