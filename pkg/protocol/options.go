package protocol

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// TalkgroupSet is a per-slot talkgroup policy. AllowAll is a sentinel kept
// distinct from an explicit, possibly-empty ID set: an unspecified policy
// means allow-all, while an explicit empty list means deny-all.
type TalkgroupSet struct {
	AllowAll bool
	IDs      map[uint32]bool
}

// DenyAll is the empty, non-allow-all policy: no talkgroups pass.
func DenyAll() TalkgroupSet {
	return TalkgroupSet{IDs: map[uint32]bool{}}
}

// AllowAllSet is the allow-all sentinel policy.
func AllowAllSet() TalkgroupSet {
	return TalkgroupSet{AllowAll: true}
}

// NewTalkgroupSet builds an explicit policy from a list of IDs.
func NewTalkgroupSet(ids ...uint32) TalkgroupSet {
	s := TalkgroupSet{IDs: make(map[uint32]bool, len(ids))}
	for _, id := range ids {
		s.IDs[id] = true
	}
	return s
}

// Permits reports whether tgid is allowed by this policy.
func (s TalkgroupSet) Permits(tgid uint32) bool {
	if s.AllowAll {
		return true
	}
	return s.IDs[tgid]
}

// Intersect computes the resulting policy when a repeater-requested set (via
// RPTO) is combined with the server-configured policy, which is always the
// ceiling: the configured policy can only be narrowed, never widened.
func (s TalkgroupSet) Intersect(configured TalkgroupSet) TalkgroupSet {
	if configured.AllowAll {
		return s
	}
	if s.AllowAll {
		return configured
	}
	out := TalkgroupSet{IDs: make(map[uint32]bool)}
	for id := range s.IDs {
		if configured.IDs[id] {
			out.IDs[id] = true
		}
	}
	return out
}

// RepeaterOptions is the parsed payload of an RPTO command: per-slot
// requested talkgroup sets, before intersection with configured policy.
type RepeaterOptions struct {
	RepeaterID uint32
	TS1        TalkgroupSet
	TS2        TalkgroupSet
}

// ParseRPTOPayload parses the "TS1=<csv>;TS2=<csv>" options string per §6.
// "*" is the allow-all wildcard; an empty value or a missing TSn clause is
// deny-all.
func ParseRPTOPayload(input string) (ts1, ts2 TalkgroupSet, err error) {
	ts1, ts2 = DenyAll(), DenyAll()

	if input == "" {
		return ts1, ts2, nil
	}

	for _, clause := range strings.Split(input, ";") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		parts := strings.SplitN(clause, "=", 2)
		if len(parts) != 2 {
			return TalkgroupSet{}, TalkgroupSet{}, fmt.Errorf("malformed RPTO clause: %q", clause)
		}
		key := strings.ToUpper(strings.TrimSpace(parts[0]))
		value := strings.TrimSpace(parts[1])

		set, err := parseTalkgroupClause(value)
		if err != nil {
			return TalkgroupSet{}, TalkgroupSet{}, fmt.Errorf("invalid %s value: %w", key, err)
		}

		switch key {
		case "TS1":
			ts1 = set
		case "TS2":
			ts2 = set
		default:
			return TalkgroupSet{}, TalkgroupSet{}, fmt.Errorf("unrecognized RPTO key: %q", key)
		}
	}

	return ts1, ts2, nil
}

func parseTalkgroupClause(value string) (TalkgroupSet, error) {
	if value == "*" {
		return AllowAllSet(), nil
	}
	if value == "" {
		return DenyAll(), nil
	}
	set := DenyAll()
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tgid, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return TalkgroupSet{}, fmt.Errorf("invalid talkgroup id %q: %w", part, err)
		}
		set.IDs[uint32(tgid)] = true
	}
	return set, nil
}

// RPTOPacket is "RPTO" | id[4] | ascii(options-string); the options string
// is variable length so it carries no fixed size constant.
type RPTOPacket struct {
	RepeaterID uint32
	Options    string
}

func (p *RPTOPacket) Parse(data []byte) error {
	if len(data) < RPTOMinPacketSize {
		return fmt.Errorf("invalid RPTO packet size: %d (minimum %d)", len(data), RPTOMinPacketSize)
	}
	if string(data[0:4]) != PacketTypeRPTO {
		return fmt.Errorf("invalid RPTO signature: %q", string(data[0:4]))
	}
	p.RepeaterID = binary.BigEndian.Uint32(data[4:8])
	p.Options = string(data[8:])
	return nil
}

func (p *RPTOPacket) Encode() ([]byte, error) {
	data := make([]byte, 8+len(p.Options))
	copy(data[0:4], PacketTypeRPTO)
	binary.BigEndian.PutUint32(data[4:8], p.RepeaterID)
	copy(data[8:], p.Options)
	return data, nil
}

func ParseRPTO(data []byte) (*RPTOPacket, error) {
	p := &RPTOPacket{}
	return p, p.Parse(data)
}
