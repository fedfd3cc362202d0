package protocol

import (
	"bytes"
	"testing"
)

func TestRPTLPacket_RoundTrip(t *testing.T) {
	original := &RPTLPacket{RepeaterID: 312000}

	data, err := original.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(data) != RPTLPacketSize {
		t.Errorf("expected size %d, got %d", RPTLPacketSize, len(data))
	}

	parsed, err := ParseRPTL(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if parsed.RepeaterID != original.RepeaterID {
		t.Errorf("RepeaterID mismatch: got %d, want %d", parsed.RepeaterID, original.RepeaterID)
	}
}

func TestMSTCLPacket_CarriesSalt(t *testing.T) {
	original := &MSTCLPacket{RepeaterID: 312000, Salt: []byte{0x11, 0x22, 0x33, 0x44}}

	data, err := original.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(data) != MSTCLPacketSize {
		t.Errorf("expected size %d, got %d", MSTCLPacketSize, len(data))
	}
	if !bytes.Equal(data[0:5], []byte("MSTCL")) {
		t.Error("invalid signature")
	}

	parsed, err := ParseMSTCL(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if parsed.RepeaterID != original.RepeaterID {
		t.Errorf("RepeaterID mismatch: got %d, want %d", parsed.RepeaterID, original.RepeaterID)
	}
	if !bytes.Equal(parsed.Salt, original.Salt) {
		t.Errorf("Salt mismatch: got %v, want %v", parsed.Salt, original.Salt)
	}
}

func TestRPTKPacket_RoundTrip(t *testing.T) {
	hash := ComputeAuthHash([]byte{0xAA, 0xBB, 0xCC, 0xDD}, "secret")
	original := &RPTKPacket{RepeaterID: 312000, Hash: hash}

	data, err := original.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(data) != RPTKPacketSize {
		t.Errorf("expected size %d, got %d", RPTKPacketSize, len(data))
	}

	parsed, err := ParseRPTK(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !bytes.Equal(parsed.Hash, original.Hash) {
		t.Error("hash mismatch after round trip")
	}
}

func TestVerifyAuthHash(t *testing.T) {
	salt := []byte{0x01, 0x02, 0x03, 0x04}
	good := ComputeAuthHash(salt, "secret")

	if !VerifyAuthHash(salt, "secret", good) {
		t.Error("expected valid hash to verify")
	}
	if VerifyAuthHash(salt, "wrong", good) {
		t.Error("expected hash for wrong passphrase to fail")
	}
}

func TestRPTCPacket_RoundTrip(t *testing.T) {
	original := &RPTCPacket{
		RepeaterID:  312000,
		Callsign:    "W1ABC",
		RXFreq:      "449000000",
		TXFreq:      "444000000",
		TXPower:     "25",
		ColorCode:   "1",
		Latitude:    "42.3601",
		Longitude:   "-71.0589",
		Height:      "75",
		Location:    "Boston, MA",
		Description: "Test Repeater",
		Slots:       "3",
		URL:         "https://example.com",
		SoftwareID:  "hblink4",
		PackageID:   "hblink4",
	}

	data, err := original.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(data) != RPTCPacketSize {
		t.Errorf("expected size %d, got %d", RPTCPacketSize, len(data))
	}

	parsed, err := ParseRPTC(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if parsed.Callsign != original.Callsign {
		t.Errorf("Callsign mismatch: got %q, want %q", parsed.Callsign, original.Callsign)
	}
	if parsed.RXFreq != original.RXFreq || parsed.TXFreq != original.TXFreq {
		t.Errorf("frequency mismatch: got rx=%q tx=%q", parsed.RXFreq, parsed.TXFreq)
	}
	if parsed.URL != original.URL {
		t.Errorf("URL mismatch: got %q, want %q", parsed.URL, original.URL)
	}
}

func TestRPTACKPacket_RoundTrip(t *testing.T) {
	original := &RPTACKPacket{RepeaterID: 312000}
	data, err := original.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !bytes.Equal(data[0:6], []byte("RPTACK")) {
		t.Error("invalid signature")
	}
	parsed, err := ParseRPTACK(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if parsed.RepeaterID != original.RepeaterID {
		t.Errorf("RepeaterID mismatch: got %d, want %d", parsed.RepeaterID, original.RepeaterID)
	}
}

func TestMSTNAKPacket_RoundTrip(t *testing.T) {
	original := &MSTNAKPacket{RepeaterID: 312000}
	data, err := original.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !bytes.Equal(data[0:6], []byte("MSTNAK")) {
		t.Error("invalid signature")
	}
	parsed, err := ParseMSTNAK(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if parsed.RepeaterID != original.RepeaterID {
		t.Errorf("RepeaterID mismatch: got %d, want %d", parsed.RepeaterID, original.RepeaterID)
	}
}

func TestRPTCLPacket_RoundTrip(t *testing.T) {
	original := &RPTCLPacket{RepeaterID: 312000}
	data, err := original.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !bytes.Equal(data[0:5], []byte("RPTCL")) {
		t.Error("invalid signature")
	}
	parsed, err := ParseRPTCL(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if parsed.RepeaterID != original.RepeaterID {
		t.Errorf("RepeaterID mismatch: got %d, want %d", parsed.RepeaterID, original.RepeaterID)
	}
}

func TestRPTPINGPacket_RoundTrip(t *testing.T) {
	original := &RPTPINGPacket{RepeaterID: 312000}
	data, err := original.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	parsed, err := ParseRPTPING(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if parsed.RepeaterID != original.RepeaterID {
		t.Errorf("RepeaterID mismatch: got %d, want %d", parsed.RepeaterID, original.RepeaterID)
	}
}

func TestMSTPONGPacket_RoundTrip(t *testing.T) {
	original := &MSTPONGPacket{RepeaterID: 312000}
	data, err := original.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	parsed, err := ParseMSTPONG(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if parsed.RepeaterID != original.RepeaterID {
		t.Errorf("RepeaterID mismatch: got %d, want %d", parsed.RepeaterID, original.RepeaterID)
	}
}

func TestAuthPackets_InvalidSize(t *testing.T) {
	tooSmall := []byte{0, 1, 2}
	parsers := []func([]byte) error{
		func(d []byte) error { return (&RPTLPacket{}).Parse(d) },
		func(d []byte) error { return (&MSTCLPacket{}).Parse(d) },
		func(d []byte) error { return (&RPTKPacket{}).Parse(d) },
		func(d []byte) error { return (&RPTCPacket{}).Parse(d) },
		func(d []byte) error { return (&RPTACKPacket{}).Parse(d) },
		func(d []byte) error { return (&MSTNAKPacket{}).Parse(d) },
		func(d []byte) error { return (&RPTCLPacket{}).Parse(d) },
		func(d []byte) error { return (&RPTPINGPacket{}).Parse(d) },
		func(d []byte) error { return (&MSTPONGPacket{}).Parse(d) },
	}
	for i, parse := range parsers {
		if err := parse(tooSmall); err == nil {
			t.Errorf("parser %d: expected error for undersized packet", i)
		}
	}
}
