package hl7v2

import "strings"

// DecodedMessage is the lenient parse of an HL7v2 message: the message type
// from MSH-9 and every segment's raw field list keyed by segment name.
type DecodedMessage struct {
	Type     string
	Segments map[string][]string
}

// Decode splits raw HL7v2 text into segments and fields. It never fails:
// unparseable input simply yields an empty type and whatever segments could
// be read. Missing fields degrade to empty strings via Field.
func Decode(raw string) *DecodedMessage {
	msg := &DecodedMessage{Segments: make(map[string][]string)}

	for _, seg := range strings.Split(strings.TrimSpace(raw), "\r") {
		if strings.TrimSpace(seg) == "" {
			continue
		}
		fields := strings.Split(seg, "|")
		name := fields[0]
		if name == "MSH" && len(fields) > 8 {
			msg.Type = fields[8]
		}
		msg.Segments[name] = fields
	}

	return msg
}

// Field returns field index idx of the named segment, or "" when the segment
// or field is absent. Index 0 is the segment name itself.
func (m *DecodedMessage) Field(segment string, idx int) string {
	fields, ok := m.Segments[segment]
	if !ok || idx < 0 || idx >= len(fields) {
		return ""
	}
	return fields[idx]
}

// ControlIDOf extracts MSH-10 (the message control ID) from raw HL7 text by
// pipe-splitting the MSH segment only. Returns "" when no control ID can be
// located; the ledger stores such messages without one, and the MLLP server
// substitutes a placeholder in the wire ACK.
func ControlIDOf(raw string) string {
	for _, seg := range strings.Split(raw, "\r") {
		if strings.HasPrefix(seg, "MSH") {
			fields := strings.Split(seg, "|")
			if len(fields) > 9 {
				return fields[9]
			}
			return ""
		}
	}
	return ""
}

// decodeLatin1 interprets bytes as ISO-8859-1 text. HL7 byte streams are not
// guaranteed to be valid UTF-8, so each byte maps to its own code point.
func decodeLatin1(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}
