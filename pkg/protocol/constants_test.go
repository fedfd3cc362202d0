package protocol

import "testing"

func TestClassifyPrefix(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"DMRD", append([]byte("DMRD"), make([]byte, 49)...), PacketTypeDMRD},
		{"RPTL", []byte("RPTL" + "xxxx"), PacketTypeRPTL},
		{"RPTK", []byte("RPTK" + "xxxx"), PacketTypeRPTK},
		{"RPTC", []byte("RPTC" + "xxxx"), PacketTypeRPTC},
		{"RPTO", []byte("RPTO" + "xxxx"), PacketTypeRPTO},
		{"RPTPING disambiguates on RPTP", []byte("RPTPINGxxxx"), PacketTypeRPTPING},
		{"RPTCL disambiguates before RPTC", []byte("RPTCLxxxx"), PacketTypeRPTCL},
		{"MSTCL", []byte("MSTCLxxxx"), PacketTypeMSTCL},
		{"MSTPONG", []byte("MSTPONGxxxx"), PacketTypeMSTPONG},
		{"MSTNAK", []byte("MSTNAKxxxx"), PacketTypeMSTNAK},
		{"RPTACK", []byte("RPTACKxxxx"), PacketTypeRPTACK},
		{"unknown", []byte("ZZZZxxxx"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyPrefix(tt.data); got != tt.want {
				t.Errorf("ClassifyPrefix(%q) = %q, want %q", tt.data, got, tt.want)
			}
		})
	}
}

func TestIsTerminator(t *testing.T) {
	if !IsTerminator(FrameTypeDataSync, TerminatorDataType) {
		t.Error("expected frame_type=2, dtype_vseq=2 to be a terminator")
	}
	if IsTerminator(FrameTypeDataSync, 0x01) {
		t.Error("expected frame_type=2, dtype_vseq=1 not to be a terminator")
	}
	if IsTerminator(FrameTypeVoice, TerminatorDataType) {
		t.Error("expected frame_type=0 not to be a terminator regardless of dtype_vseq")
	}
}

func TestCallTypeBitConvention(t *testing.T) {
	// Spec control-byte layout: bit 6 = call type, 0 = private, 1 = group.
	private := byte(0x00)
	group := byte(0x40)

	if private&SlotCallTypeMask != 0 {
		t.Error("expected private call to have bit 6 clear")
	}
	if group&SlotCallTypeMask == 0 {
		t.Error("expected group call to have bit 6 set")
	}
}

func TestTimeslotBitConvention(t *testing.T) {
	ts1 := byte(0x00)
	ts2 := byte(0x80)

	if ts1&SlotTimeslotMask != 0 {
		t.Error("expected TS1 to have bit 7 clear")
	}
	if ts2&SlotTimeslotMask == 0 {
		t.Error("expected TS2 to have bit 7 set")
	}
}

func TestPacketSizesPositive(t *testing.T) {
	sizes := map[string]int{
		"DMRD":    DMRDPacketSize,
		"RPTL":    RPTLPacketSize,
		"RPTK":    RPTKPacketSize,
		"RPTC":    RPTCPacketSize,
		"RPTCL":   RPTCLPacketSize,
		"RPTACK":  RPTACKPacketSize,
		"RPTPING": RPTPINGPacketSize,
		"MSTPONG": MSTPONGPacketSize,
		"MSTNAK":  MSTNAKPacketSize,
		"MSTCL":   MSTCLPacketSize,
	}
	for name, size := range sizes {
		if size <= 0 {
			t.Errorf("expected positive packet size for %s", name)
		}
	}
}
