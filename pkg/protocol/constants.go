package protocol

// Packet type identifiers (ASCII command prefixes)
const (
	PacketTypeDMRD    = "DMRD"
	PacketTypeRPTL    = "RPTL"
	PacketTypeRPTK    = "RPTK"
	PacketTypeRPTC    = "RPTC"
	PacketTypeRPTO    = "RPTO"
	PacketTypeRPTCL   = "RPTCL"
	PacketTypeRPTACK  = "RPTACK"
	PacketTypeRPTPING = "RPTPING"
	PacketTypeMSTPONG = "MSTPONG"
	PacketTypeMSTNAK  = "MSTNAK"
	PacketTypeMSTCL   = "MSTCL"
)

// ClassifyPrefix returns the recognized command prefix at the start of data,
// or "" if none match. RPTP only requires its four-byte prefix to
// disambiguate from RPTC/RPTCL/RPTK/RPTL; DMRD is the bare data carrier.
func ClassifyPrefix(data []byte) string {
	switch {
	case len(data) >= 4 && string(data[0:4]) == PacketTypeDMRD:
		return PacketTypeDMRD
	case len(data) >= 4 && string(data[0:4]) == "RPTP":
		return PacketTypeRPTPING
	case len(data) >= 7 && string(data[0:7]) == PacketTypeMSTPONG:
		return PacketTypeMSTPONG
	case len(data) >= 6 && string(data[0:6]) == PacketTypeMSTNAK:
		return PacketTypeMSTNAK
	case len(data) >= 6 && string(data[0:6]) == PacketTypeRPTACK:
		return PacketTypeRPTACK
	case len(data) >= 5 && string(data[0:5]) == PacketTypeRPTCL:
		return PacketTypeRPTCL
	case len(data) >= 5 && string(data[0:5]) == PacketTypeMSTCL:
		return PacketTypeMSTCL
	case len(data) >= 4 && string(data[0:4]) == PacketTypeRPTL:
		return PacketTypeRPTL
	case len(data) >= 4 && string(data[0:4]) == PacketTypeRPTK:
		return PacketTypeRPTK
	case len(data) >= 4 && string(data[0:4]) == PacketTypeRPTC:
		return PacketTypeRPTC
	case len(data) >= 4 && string(data[0:4]) == PacketTypeRPTO:
		return PacketTypeRPTO
	default:
		return ""
	}
}

// Packet size constants (in bytes)
const (
	DMRDPacketSize    = 53 // command(4) + seq(1) + src(3) + dst(3) + rptid(4) + control(1) + streamid(4) + payload(33)
	RPTLPacketSize    = 8  // "RPTL" + id[4]
	RPTKPacketSize    = 40 // "RPTK" + id[4] + sha256(salt|passphrase)[32]
	RPTCPacketSize    = 302
	RPTOMinPacketSize = 8 // "RPTO" + id[4], options string is variable-length beyond this
	RPTCLPacketSize   = 9 // "RPTCL" + id[4]
	RPTACKPacketSize  = 10
	RPTPINGPacketSize = 11
	MSTPONGPacketSize = 11
	MSTNAKPacketSize  = 10 // "MSTNAK" + id[4]
	MSTCLPacketSize   = 13 // "MSTCL" + id[4] + salt[4]
)

// Control byte (DMRD byte 15) bit masks.
const (
	SlotTimeslotMask  = 0x80 // bit 7: 0 = slot 1, 1 = slot 2
	SlotCallTypeMask  = 0x40 // bit 6: 0 = private, 1 = group
	SlotFrameTypeMask = 0x30 // bits 4-5: frame type
	SlotDataTypeMask  = 0x0F // bits 0-3: data-type / voice-sequence
)

// Frame types (control byte bits 4-5).
const (
	FrameTypeVoice     = 0x00
	FrameTypeVoiceSync = 0x01
	FrameTypeDataSync  = 0x02
)

// TerminatorDataType is the dtype_vseq value that, combined with
// FrameTypeDataSync, marks a voice terminator per the control byte layout.
const TerminatorDataType = 0x02

// DMRD packet field offsets.
const (
	DMRDOffsetSignature = 0
	DMRDOffsetSeq       = 4
	DMRDOffsetSrcID     = 5
	DMRDOffsetDstID     = 8
	DMRDOffsetRptID     = 11
	DMRDOffsetControl   = 15
	DMRDOffsetStreamID  = 16
	DMRDOffsetPayload   = 20
)

// Authentication sequence constants.
const (
	SaltLength      = 4
	ChallengeLength = 32
)

// Timeslot values.
const (
	Timeslot1 = 1
	Timeslot2 = 2
)

// Call type values.
const (
	CallTypeGroup   = 0
	CallTypePrivate = 1
)

// IsTerminator reports whether the given frame type and data-type/voice-sequence
// nibble mark a voice call terminator, per the wire control-byte layout.
func IsTerminator(frameType, dataType byte) bool {
	return frameType == FrameTypeDataSync && dataType == TerminatorDataType
}
