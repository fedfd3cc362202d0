package protocol

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// RPTLPacket is the initial login request from a repeater.
type RPTLPacket struct {
	RepeaterID uint32
}

func (p *RPTLPacket) Parse(data []byte) error {
	if len(data) != RPTLPacketSize {
		return fmt.Errorf("invalid RPTL packet size: %d (expected %d)", len(data), RPTLPacketSize)
	}
	if string(data[0:4]) != PacketTypeRPTL {
		return fmt.Errorf("invalid RPTL signature: %q", string(data[0:4]))
	}
	p.RepeaterID = binary.BigEndian.Uint32(data[4:8])
	return nil
}

func (p *RPTLPacket) Encode() ([]byte, error) {
	data := make([]byte, RPTLPacketSize)
	copy(data[0:4], PacketTypeRPTL)
	binary.BigEndian.PutUint32(data[4:8], p.RepeaterID)
	return data, nil
}

// MSTCLPacket is the server's login challenge: repeater ID plus a 4-byte
// random salt the repeater must fold into its RPTK hash.
type MSTCLPacket struct {
	RepeaterID uint32
	Salt       []byte // 4 bytes
}

func (p *MSTCLPacket) Parse(data []byte) error {
	if len(data) != MSTCLPacketSize {
		return fmt.Errorf("invalid MSTCL packet size: %d (expected %d)", len(data), MSTCLPacketSize)
	}
	if string(data[0:5]) != PacketTypeMSTCL {
		return fmt.Errorf("invalid MSTCL signature: %q", string(data[0:5]))
	}
	p.RepeaterID = binary.BigEndian.Uint32(data[5:9])
	p.Salt = make([]byte, SaltLength)
	copy(p.Salt, data[9:13])
	return nil
}

func (p *MSTCLPacket) Encode() ([]byte, error) {
	data := make([]byte, MSTCLPacketSize)
	copy(data[0:5], PacketTypeMSTCL)
	binary.BigEndian.PutUint32(data[5:9], p.RepeaterID)
	if len(p.Salt) >= SaltLength {
		copy(data[9:13], p.Salt[:SaltLength])
	} else {
		copy(data[9:], p.Salt)
	}
	return data, nil
}

// RPTKPacket carries the repeater's response to the login challenge:
// sha256(salt || passphrase).
type RPTKPacket struct {
	RepeaterID uint32
	Hash       []byte // 32 bytes
}

func (p *RPTKPacket) Parse(data []byte) error {
	if len(data) != RPTKPacketSize {
		return fmt.Errorf("invalid RPTK packet size: %d (expected %d)", len(data), RPTKPacketSize)
	}
	if string(data[0:4]) != PacketTypeRPTK {
		return fmt.Errorf("invalid RPTK signature: %q", string(data[0:4]))
	}
	p.RepeaterID = binary.BigEndian.Uint32(data[4:8])
	p.Hash = make([]byte, ChallengeLength)
	copy(p.Hash, data[8:8+ChallengeLength])
	return nil
}

func (p *RPTKPacket) Encode() ([]byte, error) {
	data := make([]byte, RPTKPacketSize)
	copy(data[0:4], PacketTypeRPTK)
	binary.BigEndian.PutUint32(data[4:8], p.RepeaterID)
	if len(p.Hash) >= ChallengeLength {
		copy(data[8:8+ChallengeLength], p.Hash[:ChallengeLength])
	} else {
		copy(data[8:], p.Hash)
	}
	return data, nil
}

// RPTCPacket is the 302-byte fixed configuration packet a repeater sends
// once authenticated.
type RPTCPacket struct {
	RepeaterID  uint32
	Callsign    string
	RXFreq      string
	TXFreq      string
	TXPower     string
	ColorCode   string
	Latitude    string
	Longitude   string
	Height      string
	Location    string
	Description string
	Slots       string
	URL         string
	SoftwareID  string
	PackageID   string
}

func (p *RPTCPacket) Parse(data []byte) error {
	if len(data) != RPTCPacketSize {
		return fmt.Errorf("invalid RPTC packet size: %d (expected %d)", len(data), RPTCPacketSize)
	}
	if string(data[0:4]) != PacketTypeRPTC {
		return fmt.Errorf("invalid RPTC signature: %q", string(data[0:4]))
	}

	p.RepeaterID = binary.BigEndian.Uint32(data[4:8])
	p.Callsign = strings.TrimSpace(string(data[8:16]))
	p.RXFreq = strings.TrimSpace(string(data[16:25]))
	p.TXFreq = strings.TrimSpace(string(data[25:34]))
	p.TXPower = strings.TrimSpace(string(data[34:36]))
	p.ColorCode = strings.TrimSpace(string(data[36:38]))
	p.Latitude = strings.TrimSpace(string(data[38:46]))
	p.Longitude = strings.TrimSpace(string(data[46:55]))
	p.Height = strings.TrimSpace(string(data[55:58]))
	p.Location = strings.TrimSpace(string(data[58:78]))
	p.Description = strings.TrimSpace(string(data[78:97]))
	p.Slots = strings.TrimSpace(string(data[97:98]))
	p.URL = strings.TrimSpace(string(data[98:222]))
	p.SoftwareID = strings.TrimSpace(string(data[222:262]))
	p.PackageID = strings.TrimSpace(string(data[262:302]))
	return nil
}

func (p *RPTCPacket) Encode() ([]byte, error) {
	data := make([]byte, RPTCPacketSize)
	copy(data[0:4], PacketTypeRPTC)
	binary.BigEndian.PutUint32(data[4:8], p.RepeaterID)

	copyField := func(dst []byte, src string) {
		for i := range dst {
			if i < len(src) {
				dst[i] = src[i]
			} else {
				dst[i] = ' '
			}
		}
	}

	copyField(data[8:16], p.Callsign)
	copyField(data[16:25], p.RXFreq)
	copyField(data[25:34], p.TXFreq)
	copyField(data[34:36], p.TXPower)
	copyField(data[36:38], p.ColorCode)
	copyField(data[38:46], p.Latitude)
	copyField(data[46:55], p.Longitude)
	copyField(data[55:58], p.Height)
	copyField(data[58:78], p.Location)
	copyField(data[78:97], p.Description)
	copyField(data[97:98], p.Slots)
	copyField(data[98:222], p.URL)
	copyField(data[222:262], p.SoftwareID)
	copyField(data[262:302], p.PackageID)

	return data, nil
}

// RPTACKPacket is the server's generic acknowledgement.
type RPTACKPacket struct {
	RepeaterID uint32
}

func (p *RPTACKPacket) Parse(data []byte) error {
	if len(data) != RPTACKPacketSize {
		return fmt.Errorf("invalid RPTACK packet size: %d (expected %d)", len(data), RPTACKPacketSize)
	}
	if string(data[0:6]) != PacketTypeRPTACK {
		return fmt.Errorf("invalid RPTACK signature: %q", string(data[0:6]))
	}
	p.RepeaterID = binary.BigEndian.Uint32(data[6:10])
	return nil
}

func (p *RPTACKPacket) Encode() ([]byte, error) {
	data := make([]byte, RPTACKPacketSize)
	copy(data[0:6], PacketTypeRPTACK)
	binary.BigEndian.PutUint32(data[6:10], p.RepeaterID)
	return data, nil
}

// MSTNAKPacket is the server's negative acknowledgement: reject, and the
// repeater should consider any in-progress login abandoned.
type MSTNAKPacket struct {
	RepeaterID uint32
}

func (p *MSTNAKPacket) Parse(data []byte) error {
	if len(data) != MSTNAKPacketSize {
		return fmt.Errorf("invalid MSTNAK packet size: %d (expected %d)", len(data), MSTNAKPacketSize)
	}
	if string(data[0:6]) != PacketTypeMSTNAK {
		return fmt.Errorf("invalid MSTNAK signature: %q", string(data[0:6]))
	}
	p.RepeaterID = binary.BigEndian.Uint32(data[6:10])
	return nil
}

func (p *MSTNAKPacket) Encode() ([]byte, error) {
	data := make([]byte, MSTNAKPacketSize)
	copy(data[0:6], PacketTypeMSTNAK)
	binary.BigEndian.PutUint32(data[6:10], p.RepeaterID)
	return data, nil
}

// RPTCLPacket is a graceful close, sent by either side ("RPTCL" | id[4]).
type RPTCLPacket struct {
	RepeaterID uint32
}

func (p *RPTCLPacket) Parse(data []byte) error {
	if len(data) != RPTCLPacketSize {
		return fmt.Errorf("invalid RPTCL packet size: %d (expected %d)", len(data), RPTCLPacketSize)
	}
	if string(data[0:5]) != PacketTypeRPTCL {
		return fmt.Errorf("invalid RPTCL signature: %q", string(data[0:5]))
	}
	p.RepeaterID = binary.BigEndian.Uint32(data[5:9])
	return nil
}

func (p *RPTCLPacket) Encode() ([]byte, error) {
	data := make([]byte, RPTCLPacketSize)
	copy(data[0:5], PacketTypeRPTCL)
	binary.BigEndian.PutUint32(data[5:9], p.RepeaterID)
	return data, nil
}

// RPTPINGPacket is a repeater keepalive.
type RPTPINGPacket struct {
	RepeaterID uint32
}

func (p *RPTPINGPacket) Parse(data []byte) error {
	if len(data) != RPTPINGPacketSize {
		return fmt.Errorf("invalid RPTPING packet size: %d (expected %d)", len(data), RPTPINGPacketSize)
	}
	if string(data[0:7]) != PacketTypeRPTPING {
		return fmt.Errorf("invalid RPTPING signature: %q", string(data[0:7]))
	}
	p.RepeaterID = binary.BigEndian.Uint32(data[7:11])
	return nil
}

func (p *RPTPINGPacket) Encode() ([]byte, error) {
	data := make([]byte, RPTPINGPacketSize)
	copy(data[0:7], PacketTypeRPTPING)
	binary.BigEndian.PutUint32(data[7:11], p.RepeaterID)
	return data, nil
}

// MSTPONGPacket is the server's keepalive reply.
type MSTPONGPacket struct {
	RepeaterID uint32
}

func (p *MSTPONGPacket) Parse(data []byte) error {
	if len(data) != MSTPONGPacketSize {
		return fmt.Errorf("invalid MSTPONG packet size: %d (expected %d)", len(data), MSTPONGPacketSize)
	}
	if string(data[0:7]) != PacketTypeMSTPONG {
		return fmt.Errorf("invalid MSTPONG signature: %q", string(data[0:7]))
	}
	p.RepeaterID = binary.BigEndian.Uint32(data[7:11])
	return nil
}

func (p *MSTPONGPacket) Encode() ([]byte, error) {
	data := make([]byte, MSTPONGPacketSize)
	copy(data[0:7], PacketTypeMSTPONG)
	binary.BigEndian.PutUint32(data[7:11], p.RepeaterID)
	return data, nil
}

// Helper parse functions, mirroring the style of ParseDMRD.

func ParseRPTL(data []byte) (*RPTLPacket, error) {
	p := &RPTLPacket{}
	return p, p.Parse(data)
}

func ParseMSTCL(data []byte) (*MSTCLPacket, error) {
	p := &MSTCLPacket{}
	return p, p.Parse(data)
}

func ParseRPTK(data []byte) (*RPTKPacket, error) {
	p := &RPTKPacket{}
	return p, p.Parse(data)
}

func ParseRPTC(data []byte) (*RPTCPacket, error) {
	p := &RPTCPacket{}
	return p, p.Parse(data)
}

func ParseRPTACK(data []byte) (*RPTACKPacket, error) {
	p := &RPTACKPacket{}
	return p, p.Parse(data)
}

func ParseMSTNAK(data []byte) (*MSTNAKPacket, error) {
	p := &MSTNAKPacket{}
	return p, p.Parse(data)
}

func ParseRPTCL(data []byte) (*RPTCLPacket, error) {
	p := &RPTCLPacket{}
	return p, p.Parse(data)
}

func ParseRPTPING(data []byte) (*RPTPINGPacket, error) {
	p := &RPTPINGPacket{}
	return p, p.Parse(data)
}

func ParseMSTPONG(data []byte) (*MSTPONGPacket, error) {
	p := &MSTPONGPacket{}
	return p, p.Parse(data)
}
