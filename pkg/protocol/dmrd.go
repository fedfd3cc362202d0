package protocol

import (
	"encoding/binary"
	"fmt"
)

// DMRDPacket is a DMR voice/data frame carried between a repeater and the
// server, or between the server and an outbound link.
type DMRDPacket struct {
	Sequence      byte
	SourceID      uint32 // 24-bit rf_src
	DestinationID uint32 // 24-bit dst_id (talkgroup or subscriber)
	RepeaterID    uint32
	Timeslot      int // Timeslot1 or Timeslot2
	CallType      int // CallTypeGroup or CallTypePrivate
	FrameType     byte
	DataType      byte // dtype_vseq, control byte bits 0-3
	StreamID      uint32
	Payload       []byte // 33 bytes
}

// Parse decodes a 53-byte DMRD datagram.
func (p *DMRDPacket) Parse(data []byte) error {
	if len(data) != DMRDPacketSize {
		return fmt.Errorf("invalid DMRD packet size: %d (expected %d)", len(data), DMRDPacketSize)
	}
	if string(data[0:4]) != PacketTypeDMRD {
		return fmt.Errorf("invalid DMRD signature: %q", string(data[0:4]))
	}

	p.Sequence = data[DMRDOffsetSeq]

	p.SourceID = uint32(data[DMRDOffsetSrcID])<<16 |
		uint32(data[DMRDOffsetSrcID+1])<<8 |
		uint32(data[DMRDOffsetSrcID+2])

	p.DestinationID = uint32(data[DMRDOffsetDstID])<<16 |
		uint32(data[DMRDOffsetDstID+1])<<8 |
		uint32(data[DMRDOffsetDstID+2])

	p.RepeaterID = binary.BigEndian.Uint32(data[DMRDOffsetRptID : DMRDOffsetRptID+4])

	control := data[DMRDOffsetControl]
	if control&SlotTimeslotMask != 0 {
		p.Timeslot = Timeslot2
	} else {
		p.Timeslot = Timeslot1
	}
	if control&SlotCallTypeMask != 0 {
		p.CallType = CallTypeGroup
	} else {
		p.CallType = CallTypePrivate
	}
	p.FrameType = (control & SlotFrameTypeMask) >> 4
	p.DataType = control & SlotDataTypeMask

	p.StreamID = binary.BigEndian.Uint32(data[DMRDOffsetStreamID : DMRDOffsetStreamID+4])

	p.Payload = make([]byte, 33)
	copy(p.Payload, data[DMRDOffsetPayload:DMRDOffsetPayload+33])

	return nil
}

// Encode serializes the packet back to its 53-byte wire form.
func (p *DMRDPacket) Encode() ([]byte, error) {
	data := make([]byte, DMRDPacketSize)
	copy(data[0:4], PacketTypeDMRD)

	data[DMRDOffsetSeq] = p.Sequence

	data[DMRDOffsetSrcID] = byte(p.SourceID >> 16)
	data[DMRDOffsetSrcID+1] = byte(p.SourceID >> 8)
	data[DMRDOffsetSrcID+2] = byte(p.SourceID)

	data[DMRDOffsetDstID] = byte(p.DestinationID >> 16)
	data[DMRDOffsetDstID+1] = byte(p.DestinationID >> 8)
	data[DMRDOffsetDstID+2] = byte(p.DestinationID)

	binary.BigEndian.PutUint32(data[DMRDOffsetRptID:DMRDOffsetRptID+4], p.RepeaterID)

	var control byte
	if p.Timeslot == Timeslot2 {
		control |= SlotTimeslotMask
	}
	if p.CallType == CallTypeGroup {
		control |= SlotCallTypeMask
	}
	control |= (p.FrameType << 4) & SlotFrameTypeMask
	control |= p.DataType & SlotDataTypeMask
	data[DMRDOffsetControl] = control

	binary.BigEndian.PutUint32(data[DMRDOffsetStreamID:DMRDOffsetStreamID+4], p.StreamID)

	if len(p.Payload) >= 33 {
		copy(data[DMRDOffsetPayload:DMRDOffsetPayload+33], p.Payload[:33])
	} else {
		copy(data[DMRDOffsetPayload:], p.Payload)
	}

	return data, nil
}

// IsTerminator reports whether this packet is a voice call terminator.
func (p *DMRDPacket) IsTerminator() bool {
	return IsTerminator(p.FrameType, p.DataType)
}

// RewriteRepeaterID returns a copy of the raw encoded packet with bytes 11-14
// (the repeater_id field) rewritten to targetID; every other field —
// sequence, stream_id, rf_src, dst_id, control byte, payload — is preserved
// byte-for-byte, as required for forwarding.
func RewriteRepeaterID(data []byte, targetID uint32) []byte {
	out := make([]byte, len(data))
	copy(out, data)
	binary.BigEndian.PutUint32(out[DMRDOffsetRptID:DMRDOffsetRptID+4], targetID)
	return out
}

// ParseDMRD parses a DMRD packet from raw bytes.
func ParseDMRD(data []byte) (*DMRDPacket, error) {
	p := &DMRDPacket{}
	err := p.Parse(data)
	return p, err
}
