package hl7v2

import (
	"strings"
	"testing"
	"time"
)

var testBuilder = Builder{SendingFacility: "HIS_RIS", ReceivingFacility: "PACS"}

func TestAdmitNotify_RoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	built, err := testBuilder.AdmitNotify(AdmitParams{
		PatientID:   "MRN12345678",
		PatientName: "DOE^JOHN",
		BirthDate:   "19800115",
		Sex:         "M",
		EncounterID: "ENC001",
		At:          at,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if built.Type != TypeAdmit {
		t.Errorf("type = %q, want %q", built.Type, TypeAdmit)
	}
	if !strings.HasSuffix(built.Raw, "\r") {
		t.Error("raw message must end with a carriage return")
	}

	decoded := Decode(built.Raw)
	if decoded.Type != TypeAdmit {
		t.Errorf("decoded type = %q, want %q", decoded.Type, TypeAdmit)
	}
	if got := decoded.Field("MSH", 9); got != built.ControlID {
		t.Errorf("MSH-10 = %q, want %q", got, built.ControlID)
	}
	if got := decoded.Field("MSH", 6); got != "20260301093000" {
		t.Errorf("MSH-7 = %q, want 20260301093000", got)
	}
	if got := decoded.Field("PID", 3); got != "MRN12345678" {
		t.Errorf("PID-3 = %q", got)
	}
	if got := decoded.Field("PID", 6); got != "DOE^JOHN" {
		t.Errorf("PID-5 = %q", got)
	}
	if got := decoded.Field("EVN", 1); got != "A01" {
		t.Errorf("EVN-1 = %q", got)
	}
}

func TestAdmitNotify_MissingRequired(t *testing.T) {
	cases := []AdmitParams{
		{PatientName: "DOE^JOHN", EncounterID: "E1"},
		{PatientID: "MRN1", EncounterID: "E1"},
		{PatientID: "MRN1", PatientName: "DOE^JOHN"},
	}
	for i, p := range cases {
		if _, err := testBuilder.AdmitNotify(p); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}

func TestDischargeNotify(t *testing.T) {
	built, err := testBuilder.DischargeNotify(DischargeParams{PatientID: "MRN1", EncounterID: "E1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	decoded := Decode(built.Raw)
	if decoded.Type != TypeDischarge {
		t.Errorf("type = %q, want %q", decoded.Type, TypeDischarge)
	}
	if got := decoded.Field("EVN", 1); got != "A03" {
		t.Errorf("EVN-1 = %q", got)
	}
}

func TestOrderNotify_Priority(t *testing.T) {
	base := OrderParams{
		PatientID:            "MRN1",
		PatientName:          "DOE^JANE",
		AccessionNumber:      "ACC001",
		Modality:             "CT",
		ProcedureDescription: "CT HEAD WITHOUT CONTRAST",
	}

	for _, tc := range []struct {
		priority string
		want     string
	}{
		{"", "R"},
		{"STAT", "S"},
		{"urgent", "U"},
	} {
		p := base
		p.Priority = tc.priority
		built, err := testBuilder.OrderNotify(p)
		if err != nil {
			t.Fatalf("priority %q: %v", tc.priority, err)
		}
		decoded := Decode(built.Raw)
		if got := decoded.Field("ORC", 7); got != tc.want {
			t.Errorf("priority %q: ORC-7 = %q, want %q", tc.priority, got, tc.want)
		}
		if got := decoded.Field("ORC", 2); got != "ACC001" {
			t.Errorf("ORC-2 = %q", got)
		}
	}
}

func TestResultNotify_EscapesReportText(t *testing.T) {
	built, err := testBuilder.ResultNotify(ResultParams{
		PatientID:       "MRN1",
		PatientName:     "DOE^JOHN",
		AccessionNumber: "ACC002",
		ReportText:      "No acute findings | stable.\nImpression: normal.",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(built.Raw, `No acute findings \| stable.\X0D\Impression: normal.`) {
		t.Errorf("report text not escaped: %q", built.Raw)
	}
	if strings.Contains(built.Raw, "\n") {
		t.Error("newline must not survive into the encoded message")
	}
}

func TestBuildACK_Shape(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ack := testBuilder.BuildACK(ACKAccept, "ABC123", at)
	want := "MSH|^~\\&|HIS_RIS||PACS||20260301120000||ACK|ACK20260301120000|P|2.5\rMSA|AA|ABC123\r"
	if ack != want {
		t.Errorf("ack = %q\nwant %q", ack, want)
	}
}

func TestBuildACK_Codes(t *testing.T) {
	for _, code := range []ACKCode{ACKAccept, ACKError, ACKReject} {
		ack := testBuilder.BuildACK(code, "X1", time.Now())
		if !strings.Contains(ack, "MSA|"+string(code)+"|X1") {
			t.Errorf("code %s missing from %q", code, ack)
		}
	}
}

func TestNewControlID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewControlID()
		if len(id) != 10 {
			t.Fatalf("control id length = %d, want 10", len(id))
		}
		if id != strings.ToUpper(id) {
			t.Errorf("control id not uppercase: %q", id)
		}
		if seen[id] {
			t.Errorf("duplicate control id: %q", id)
		}
		seen[id] = true
	}
}
