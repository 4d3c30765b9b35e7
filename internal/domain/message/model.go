package message

import (
	"time"

	"github.com/google/uuid"
)

// Direction says which way a message crossed the interface boundary.
type Direction string

const (
	DirectionInbound  Direction = "INBOUND"
	DirectionOutbound Direction = "OUTBOUND"
)

// Status is a ledger entry's delivery state.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusSent     Status = "SENT"
	StatusReceived Status = "RECEIVED"
	StatusAcked    Status = "ACKED"
	StatusError    Status = "ERROR"
	StatusRejected Status = "REJECTED"
)

// Message maps to the hl7_messages table. Rows are never deleted; the table
// is the audit trail for every message that crossed the interface.
// ControlID is empty when the sender omitted MSH-10; uniqueness and duplicate
// suppression apply to non-empty control IDs only.
type Message struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	MessageType       string     `db:"message_type" json:"message_type"`
	ControlID         string     `db:"message_control_id" json:"message_control_id"`
	Direction         Direction  `db:"direction" json:"direction"`
	SendingFacility   string     `db:"sending_facility" json:"sending_facility"`
	ReceivingFacility string     `db:"receiving_facility" json:"receiving_facility"`
	Payload           string     `db:"payload" json:"payload"`
	Status            Status     `db:"status" json:"status"`
	RetryCount        int        `db:"retry_count" json:"retry_count"`
	ErrorMessage      *string    `db:"error_message" json:"error_message,omitempty"`
	PatientID         *string    `db:"patient_id" json:"patient_id,omitempty"`
	OrderID           *string    `db:"order_id" json:"order_id,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	ProcessedAt       *time.Time `db:"processed_at" json:"processed_at,omitempty"`
}

// Retryable reports whether the supervisor may pick this message up again.
func (m *Message) Retryable(maxRetries int) bool {
	return m.Direction == DirectionOutbound && m.Status == StatusError && m.RetryCount < maxRetries
}

// Terminal reports whether no further state transitions are expected.
func (m *Message) Terminal(maxRetries int) bool {
	switch m.Status {
	case StatusAcked, StatusRejected:
		return true
	case StatusError:
		return m.RetryCount >= maxRetries
	default:
		return false
	}
}
