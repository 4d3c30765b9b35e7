package hl7v2

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message type identifiers as carried in MSH-9.
const (
	TypeAdmit     = "ADT^A01"
	TypeDischarge = "ADT^A03"
	TypeOrder     = "ORM^O01"
	TypeResult    = "ORU^R01"
	TypeAck       = "ACK"
)

// ACKCode is the MSA-1 acknowledgment code.
type ACKCode string

const (
	ACKAccept ACKCode = "AA"
	ACKError  ACKCode = "AE"
	ACKReject ACKCode = "AR"
)

// Built is an encoded outbound message: the MSH-9 type, the generated MSH-10
// control ID, and the raw CR-delimited text.
type Built struct {
	Type      string
	ControlID string
	Raw       string
}

// Builder encodes outbound HL7v2 messages for a fixed sending/receiving
// facility pair. Methods are pure aside from control-ID generation and the
// current-time default.
type Builder struct {
	SendingFacility   string
	ReceivingFacility string
}

// AdmitParams carries the fields of an ADT^A01 admission notification.
type AdmitParams struct {
	PatientID   string // MRN
	PatientName string // LAST^FIRST
	BirthDate   string // YYYYMMDD, may be empty
	Sex         string // single letter, may be empty
	EncounterID string
	At          time.Time // admission instant; zero means now (UTC)
}

// AdmitNotify builds an ADT^A01 message.
func (b Builder) AdmitNotify(p AdmitParams) (Built, error) {
	if p.PatientID == "" {
		return Built{}, fmt.Errorf("hl7v2: admit notify: patient id is required")
	}
	if p.PatientName == "" {
		return Built{}, fmt.Errorf("hl7v2: admit notify: patient name is required")
	}
	if p.EncounterID == "" {
		return Built{}, fmt.Errorf("hl7v2: admit notify: encounter id is required")
	}

	ts := formatTS(p.At)
	controlID := NewControlID()
	raw := encode([]string{
		b.msh(TypeAdmit, ts, controlID),
		fmt.Sprintf("EVN|A01|%s", ts),
		fmt.Sprintf("PID|1||%s|||%s||%s|%s", p.PatientID, p.PatientName, p.BirthDate, p.Sex),
		fmt.Sprintf("PV1|1|I|||||||||||||||||%s", p.EncounterID),
	})
	return Built{Type: TypeAdmit, ControlID: controlID, Raw: raw}, nil
}

// DischargeParams carries the fields of an ADT^A03 discharge notification.
type DischargeParams struct {
	PatientID   string
	EncounterID string
	At          time.Time // discharge instant; zero means now (UTC)
}

// DischargeNotify builds an ADT^A03 message.
func (b Builder) DischargeNotify(p DischargeParams) (Built, error) {
	if p.PatientID == "" {
		return Built{}, fmt.Errorf("hl7v2: discharge notify: patient id is required")
	}
	if p.EncounterID == "" {
		return Built{}, fmt.Errorf("hl7v2: discharge notify: encounter id is required")
	}

	ts := formatTS(p.At)
	controlID := NewControlID()
	raw := encode([]string{
		b.msh(TypeDischarge, ts, controlID),
		fmt.Sprintf("EVN|A03|%s", ts),
		fmt.Sprintf("PID|1||%s", p.PatientID),
		fmt.Sprintf("PV1|1|I|||||||||||||||||%s", p.EncounterID),
	})
	return Built{Type: TypeDischarge, ControlID: controlID, Raw: raw}, nil
}

// OrderParams carries the fields of an ORM^O01 new-order message.
type OrderParams struct {
	PatientID            string
	PatientName          string
	AccessionNumber      string
	Modality             string
	ProcedureDescription string
	Priority             string    // priority word (ROUTINE/URGENT/STAT); first letter is sent
	At                   time.Time // order instant; zero means now (UTC)
}

// OrderNotify builds an ORM^O01 message with ORC order control "NW".
func (b Builder) OrderNotify(p OrderParams) (Built, error) {
	if p.PatientID == "" {
		return Built{}, fmt.Errorf("hl7v2: order notify: patient id is required")
	}
	if p.PatientName == "" {
		return Built{}, fmt.Errorf("hl7v2: order notify: patient name is required")
	}
	if p.AccessionNumber == "" {
		return Built{}, fmt.Errorf("hl7v2: order notify: accession number is required")
	}
	if p.Modality == "" {
		return Built{}, fmt.Errorf("hl7v2: order notify: modality is required")
	}
	if p.ProcedureDescription == "" {
		return Built{}, fmt.Errorf("hl7v2: order notify: procedure description is required")
	}

	priority := "R"
	if p.Priority != "" {
		priority = strings.ToUpper(p.Priority[:1])
	}

	ts := formatTS(p.At)
	controlID := NewControlID()
	raw := encode([]string{
		b.msh(TypeOrder, ts, controlID),
		fmt.Sprintf("PID|1||%s|||%s", p.PatientID, p.PatientName),
		fmt.Sprintf("ORC|NW|%s||||||%s", p.AccessionNumber, priority),
		fmt.Sprintf("OBR|1|%s||%s|||%s|||||||||||||||%s",
			p.AccessionNumber, p.ProcedureDescription, ts, p.Modality),
	})
	return Built{Type: TypeOrder, ControlID: controlID, Raw: raw}, nil
}

// ResultParams carries the fields of an ORU^R01 observation-result message.
type ResultParams struct {
	PatientID       string
	PatientName     string
	AccessionNumber string
	ReportText      string
	At              time.Time // report instant; zero means now (UTC)
}

// ResultNotify builds an ORU^R01 message carrying the report as an OBX free
// text value with pipes and newlines escaped.
func (b Builder) ResultNotify(p ResultParams) (Built, error) {
	if p.PatientID == "" {
		return Built{}, fmt.Errorf("hl7v2: result notify: patient id is required")
	}
	if p.PatientName == "" {
		return Built{}, fmt.Errorf("hl7v2: result notify: patient name is required")
	}
	if p.AccessionNumber == "" {
		return Built{}, fmt.Errorf("hl7v2: result notify: accession number is required")
	}

	ts := formatTS(p.At)
	controlID := NewControlID()
	raw := encode([]string{
		b.msh(TypeResult, ts, controlID),
		fmt.Sprintf("PID|1||%s|||%s", p.PatientID, p.PatientName),
		fmt.Sprintf("OBR|1|%s|||||||%s", p.AccessionNumber, ts),
		fmt.Sprintf("OBX|1|TX|REPORT||%s||||||F", escapeReport(p.ReportText)),
	})
	return Built{Type: TypeResult, ControlID: controlID, Raw: raw}, nil
}

// BuildACK builds the two-segment acknowledgment reply for the given original
// control ID. The shape matches what downstream integration engines expect:
//
//	MSH|^~\&|<send>||<recv>||<ts>||ACK|ACK<ts>|P|2.5
//	MSA|<code>|<controlID>
func (b Builder) BuildACK(code ACKCode, controlID string, at time.Time) string {
	ts := formatTS(at)
	return encode([]string{
		fmt.Sprintf("MSH|^~\\&|%s||%s||%s||ACK|ACK%s|P|2.5",
			b.SendingFacility, b.ReceivingFacility, ts, ts),
		fmt.Sprintf("MSA|%s|%s", code, controlID),
	})
}

// msh builds the common MSH header segment.
func (b Builder) msh(msgType, ts, controlID string) string {
	return fmt.Sprintf("MSH|^~\\&|%s||%s||%s||%s|%s|P|2.5",
		b.SendingFacility, b.ReceivingFacility, ts, msgType, controlID)
}

// encode joins segments with carriage returns, including a trailing one.
func encode(segments []string) string {
	return strings.Join(segments, "\r") + "\r"
}

// NewControlID generates a fresh MSH-10 value: 10 uppercase hex characters.
func NewControlID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(hex[:10])
}

// formatTS renders an HL7 TS value (YYYYMMDDHHMMSS). The zero time means the
// current UTC instant.
func formatTS(t time.Time) string {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return t.Format("20060102150405")
}

// escapeReport escapes field separators and line breaks in free text so the
// report survives pipe-delimited encoding.
func escapeReport(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", "\\X0D\\")
	return s
}
