package worklist

import (
	"time"

	"github.com/google/uuid"
)

// Status is a worklist entry's lifecycle state.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Entry maps to the dicom_worklist_entries table. Exactly one entry exists
// per order; its backing .wl file exists only while the entry is active.
type Entry struct {
	ID                      uuid.UUID `db:"id" json:"id"`
	OrderID                 string    `db:"order_id" json:"order_id"`
	AccessionNumber         string    `db:"accession_number" json:"accession_number"`
	PatientID               string    `db:"patient_id" json:"patient_id"`
	PatientName             string    `db:"patient_name" json:"patient_name"`
	PatientBirthDate        string    `db:"patient_birth_date" json:"patient_birth_date"`
	PatientSex              string    `db:"patient_sex" json:"patient_sex"`
	Modality                string    `db:"modality" json:"modality"`
	ScheduledAt             time.Time `db:"scheduled_at" json:"scheduled_at"`
	ProcedureDescription    string    `db:"procedure_description" json:"procedure_description"`
	ProcedureCode           *string   `db:"procedure_code" json:"procedure_code,omitempty"`
	RequestedProcedureID    string    `db:"requested_procedure_id" json:"requested_procedure_id"`
	ReferringPhysician      *string   `db:"referring_physician" json:"referring_physician,omitempty"`
	ScheduledStationAETitle string    `db:"scheduled_station_ae_title" json:"scheduled_station_ae_title"`
	ScheduledStationName    *string   `db:"scheduled_station_name" json:"scheduled_station_name,omitempty"`
	Status                  Status    `db:"status" json:"status"`
	FilePath                *string   `db:"file_path" json:"file_path,omitempty"`
	CreatedAt               time.Time `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time `db:"updated_at" json:"updated_at"`
}

// Terminal reports whether the entry reached a final state.
func (e *Entry) Terminal() bool {
	return e.Status == StatusCompleted || e.Status == StatusCancelled
}
