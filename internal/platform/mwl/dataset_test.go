package mwl

import (
	"strings"
	"testing"
	"time"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

func testInput() Input {
	return Input{
		AccessionNumber:      "ACC20260301001",
		PatientID:            "MRN12345678",
		PatientName:          "DOE^JOHN",
		PatientBirthDate:     "19800115",
		PatientSex:           "M",
		Modality:             "CT",
		ScheduledAt:          time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		ProcedureDescription: "CT HEAD WITHOUT CONTRAST",
		ProcedureCode:        "CTH001",
		ReferringPhysician:   "SMITH^JANE",
		InstitutionAETitle:   "HIS_RIS_SCP",
	}
}

func elementString(t *testing.T, ds dicom.Dataset, tg tag.Tag) string {
	t.Helper()
	el, err := ds.FindElementByTagNested(tg)
	if err != nil {
		t.Fatalf("element %v not found: %v", tg, err)
	}
	vals, ok := el.Value.GetValue().([]string)
	if !ok || len(vals) == 0 {
		t.Fatalf("element %v has no string value", tg)
	}
	return vals[0]
}

func TestBuildDataset_PatientAndProcedure(t *testing.T) {
	ds, err := BuildDataset(testInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := elementString(t, ds, tag.PatientName); got != "DOE^JOHN" {
		t.Errorf("PatientName = %q", got)
	}
	if got := elementString(t, ds, tag.PatientID); got != "MRN12345678" {
		t.Errorf("PatientID = %q", got)
	}
	if got := elementString(t, ds, tag.PatientBirthDate); got != "19800115" {
		t.Errorf("PatientBirthDate = %q", got)
	}
	if got := elementString(t, ds, tag.PatientSex); got != "M" {
		t.Errorf("PatientSex = %q", got)
	}
	if got := elementString(t, ds, tag.AccessionNumber); got != "ACC20260301001" {
		t.Errorf("AccessionNumber = %q", got)
	}
	if got := elementString(t, ds, tag.RequestedProcedureDescription); got != "CT HEAD WITHOUT CONTRAST" {
		t.Errorf("RequestedProcedureDescription = %q", got)
	}
	if got := elementString(t, ds, tag.ReferringPhysicianName); got != "SMITH^JANE" {
		t.Errorf("ReferringPhysicianName = %q", got)
	}
	// The requested procedure ID defaults to the accession number.
	if got := elementString(t, ds, tag.RequestedProcedureID); got != "ACC20260301001" {
		t.Errorf("RequestedProcedureID = %q", got)
	}
}

func TestBuildDataset_ScheduledStep(t *testing.T) {
	ds, err := BuildDataset(testInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := elementString(t, ds, tag.Modality); got != "CT" {
		t.Errorf("Modality = %q", got)
	}
	if got := elementString(t, ds, tag.ScheduledProcedureStepStartDate); got != "20260301" {
		t.Errorf("start date = %q", got)
	}
	if got := elementString(t, ds, tag.ScheduledProcedureStepStartTime); got != "090000" {
		t.Errorf("start time = %q", got)
	}
	if got := elementString(t, ds, tag.ScheduledProcedureStepStatus); got != "SCHEDULED" {
		t.Errorf("step status = %q", got)
	}
	if got := elementString(t, ds, tag.ScheduledStationAETitle); got != "HIS_RIS_SCP" {
		t.Errorf("station AE = %q", got)
	}
	if got := elementString(t, ds, tag.ScheduledProcedureStepID); got != "CTH001" {
		t.Errorf("step id = %q", got)
	}
}

func TestBuildDataset_UIDs(t *testing.T) {
	ds, err := BuildDataset(testInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := elementString(t, ds, tag.MediaStorageSOPClassUID); got != ModalityWorklistSOPClassUID {
		t.Errorf("MediaStorageSOPClassUID = %q", got)
	}
	if got := elementString(t, ds, tag.TransferSyntaxUID); got != ExplicitVRLittleEndianUID {
		t.Errorf("TransferSyntaxUID = %q", got)
	}
	study := elementString(t, ds, tag.StudyInstanceUID)
	if !strings.HasPrefix(study, "2.25.") {
		t.Errorf("StudyInstanceUID = %q, want 2.25. prefix", study)
	}

	other, _ := BuildDataset(testInput())
	if elementString(t, other, tag.StudyInstanceUID) == study {
		t.Error("study UIDs must be unique per build")
	}
}

func TestBuildDataset_MissingRequired(t *testing.T) {
	for _, mutate := range []func(*Input){
		func(in *Input) { in.AccessionNumber = "" },
		func(in *Input) { in.PatientID = "" },
		func(in *Input) { in.Modality = "" },
	} {
		in := testInput()
		mutate(&in)
		if _, err := BuildDataset(in); err == nil {
			t.Error("expected error for missing required field")
		}
	}
}

func TestNewUID(t *testing.T) {
	a, b := NewUID(), NewUID()
	if !strings.HasPrefix(a, "2.25.") {
		t.Errorf("uid = %q", a)
	}
	if len(a) > 64 {
		t.Errorf("uid too long: %d chars", len(a))
	}
	if a == b {
		t.Error("uids must be unique")
	}
}
