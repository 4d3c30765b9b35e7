// Package mwl builds and stores DICOM Modality Worklist datasets. Imaging
// devices query these as .wl files through a worklist SCP (Orthanc in the
// reference deployment); this package only produces and removes the files.
package mwl

import (
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

const (
	// ModalityWorklistSOPClassUID identifies the Modality Worklist
	// Information Model - FIND SOP class.
	ModalityWorklistSOPClassUID = "1.2.840.10008.5.1.4.31"

	// ExplicitVRLittleEndianUID is the transfer syntax the .wl files are
	// written with.
	ExplicitVRLittleEndianUID = "1.2.840.10008.1.2.1"

	scheduledStepStatus = "SCHEDULED"
)

// Input carries the patient and order fields a worklist dataset is built
// from. PatientName must already be in DICOM PN form (LAST^FIRST).
type Input struct {
	AccessionNumber      string
	PatientID            string // MRN
	PatientName          string
	PatientBirthDate     string // YYYYMMDD, may be empty
	PatientSex           string // single letter, may be empty
	Modality             string
	ScheduledAt          time.Time
	ProcedureDescription string
	ProcedureCode        string // optional; becomes the scheduled step ID
	RequestedProcedureID string // defaults to the accession number
	ReferringPhysician   string // optional
	StationAETitle       string // defaults to the institution AE title
	StationName          string // optional
	InstitutionAETitle   string
}

// BuildDataset constructs a complete MWL dataset, file meta included, ready
// to be written as an Explicit VR Little Endian .wl file. Pure aside from
// UID generation.
func BuildDataset(in Input) (dicom.Dataset, error) {
	if in.AccessionNumber == "" {
		return dicom.Dataset{}, fmt.Errorf("mwl: accession number is required")
	}
	if in.PatientID == "" {
		return dicom.Dataset{}, fmt.Errorf("mwl: patient id is required")
	}
	if in.Modality == "" {
		return dicom.Dataset{}, fmt.Errorf("mwl: modality is required")
	}

	sopInstanceUID := NewUID()
	stationAE := in.StationAETitle
	if stationAE == "" {
		stationAE = in.InstitutionAETitle
	}
	requestedProcID := in.RequestedProcedureID
	if requestedProcID == "" {
		requestedProcID = in.AccessionNumber
	}

	var elems []*dicom.Element
	add := func(t tag.Tag, value string) error {
		el, err := dicom.NewElement(t, []string{value})
		if err != nil {
			return fmt.Errorf("mwl: element %v: %w", t, err)
		}
		elems = append(elems, el)
		return nil
	}
	addOpt := func(t tag.Tag, value string) error {
		if value == "" {
			return nil
		}
		return add(t, value)
	}

	// File meta, then the dataset proper in ascending tag order.
	if err := add(tag.MediaStorageSOPClassUID, ModalityWorklistSOPClassUID); err != nil {
		return dicom.Dataset{}, err
	}
	if err := add(tag.MediaStorageSOPInstanceUID, sopInstanceUID); err != nil {
		return dicom.Dataset{}, err
	}
	if err := add(tag.TransferSyntaxUID, ExplicitVRLittleEndianUID); err != nil {
		return dicom.Dataset{}, err
	}
	if err := add(tag.SOPClassUID, ModalityWorklistSOPClassUID); err != nil {
		return dicom.Dataset{}, err
	}
	if err := add(tag.SOPInstanceUID, sopInstanceUID); err != nil {
		return dicom.Dataset{}, err
	}
	if err := add(tag.AccessionNumber, in.AccessionNumber); err != nil {
		return dicom.Dataset{}, err
	}
	if err := addOpt(tag.ReferringPhysicianName, in.ReferringPhysician); err != nil {
		return dicom.Dataset{}, err
	}
	if err := add(tag.PatientName, in.PatientName); err != nil {
		return dicom.Dataset{}, err
	}
	if err := add(tag.PatientID, in.PatientID); err != nil {
		return dicom.Dataset{}, err
	}
	if err := addOpt(tag.PatientBirthDate, in.PatientBirthDate); err != nil {
		return dicom.Dataset{}, err
	}
	if err := addOpt(tag.PatientSex, in.PatientSex); err != nil {
		return dicom.Dataset{}, err
	}
	if err := add(tag.StudyInstanceUID, NewUID()); err != nil {
		return dicom.Dataset{}, err
	}
	if err := add(tag.RequestedProcedureDescription, in.ProcedureDescription); err != nil {
		return dicom.Dataset{}, err
	}

	step, err := buildScheduledStep(in, stationAE)
	if err != nil {
		return dicom.Dataset{}, err
	}
	seq, err := dicom.NewElement(tag.ScheduledProcedureStepSequence, [][]*dicom.Element{step})
	if err != nil {
		return dicom.Dataset{}, fmt.Errorf("mwl: scheduled procedure step sequence: %w", err)
	}
	elems = append(elems, seq)

	if err := add(tag.RequestedProcedureID, requestedProcID); err != nil {
		return dicom.Dataset{}, err
	}

	return dicom.Dataset{Elements: elems}, nil
}

// buildScheduledStep builds the single item of the scheduled procedure step
// sequence.
func buildScheduledStep(in Input, stationAE string) ([]*dicom.Element, error) {
	var items []*dicom.Element
	add := func(t tag.Tag, value string) error {
		if value == "" {
			return nil
		}
		el, err := dicom.NewElement(t, []string{value})
		if err != nil {
			return fmt.Errorf("mwl: step element %v: %w", t, err)
		}
		items = append(items, el)
		return nil
	}

	if err := add(tag.Modality, in.Modality); err != nil {
		return nil, err
	}
	if err := add(tag.ScheduledStationAETitle, stationAE); err != nil {
		return nil, err
	}
	if err := add(tag.ScheduledProcedureStepStartDate, in.ScheduledAt.Format("20060102")); err != nil {
		return nil, err
	}
	if err := add(tag.ScheduledProcedureStepStartTime, in.ScheduledAt.Format("150405")); err != nil {
		return nil, err
	}
	if err := add(tag.ScheduledProcedureStepDescription, in.ProcedureDescription); err != nil {
		return nil, err
	}
	if err := add(tag.ScheduledProcedureStepID, in.ProcedureCode); err != nil {
		return nil, err
	}
	if err := add(tag.ScheduledStationName, in.StationName); err != nil {
		return nil, err
	}
	if err := add(tag.ScheduledProcedureStepStatus, scheduledStepStatus); err != nil {
		return nil, err
	}

	return items, nil
}

// NewUID generates a UUID-derived DICOM UID in the standard 2.25.<decimal>
// form.
func NewUID() string {
	u := uuid.New()
	var n big.Int
	n.SetBytes(u[:])
	return "2.25." + n.String()
}
