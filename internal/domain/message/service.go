package message

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dimed/hisris/internal/platform/hl7v2"
)

// Service owns the message ledger. Outbound operations build an HL7 message
// and record it; inbound frames handed off by the MLLP server are recorded
// and, for acknowledgments, correlated back to the outbound original.
type Service struct {
	repo       Repository
	builder    hl7v2.Builder
	maxRetries int
	retryBatch int
	logger     zerolog.Logger
}

func NewService(repo Repository, builder hl7v2.Builder, maxRetries, retryBatch int, logger zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		builder:    builder,
		maxRetries: maxRetries,
		retryBatch: retryBatch,
		logger:     logger.With().Str("component", "hl7_ledger").Logger(),
	}
}

// SendAdmission builds and records an ADT^A01 admission notification.
func (s *Service) SendAdmission(ctx context.Context, p hl7v2.AdmitParams) (*Message, error) {
	built, err := s.builder.AdmitNotify(p)
	if err != nil {
		return nil, err
	}
	return s.recordOutbound(ctx, built, &p.PatientID, nil)
}

// SendDischarge builds and records an ADT^A03 discharge notification.
func (s *Service) SendDischarge(ctx context.Context, p hl7v2.DischargeParams) (*Message, error) {
	built, err := s.builder.DischargeNotify(p)
	if err != nil {
		return nil, err
	}
	return s.recordOutbound(ctx, built, &p.PatientID, nil)
}

// SendOrderPlaced builds and records an ORM^O01 new-order message.
func (s *Service) SendOrderPlaced(ctx context.Context, p hl7v2.OrderParams) (*Message, error) {
	built, err := s.builder.OrderNotify(p)
	if err != nil {
		return nil, err
	}
	return s.recordOutbound(ctx, built, &p.PatientID, &p.AccessionNumber)
}

// SendResultSigned builds and records an ORU^R01 result message.
func (s *Service) SendResultSigned(ctx context.Context, p hl7v2.ResultParams) (*Message, error) {
	built, err := s.builder.ResultNotify(p)
	if err != nil {
		return nil, err
	}
	return s.recordOutbound(ctx, built, &p.PatientID, &p.AccessionNumber)
}

// recordOutbound stores an outbound message already in "sent". The row is a
// local delivery record, not proof of remote receipt; that arrives later as
// an inbound ACK.
func (s *Service) recordOutbound(ctx context.Context, built hl7v2.Built, patientID, orderID *string) (*Message, error) {
	m := &Message{
		MessageType:       built.Type,
		ControlID:         built.ControlID,
		Direction:         DirectionOutbound,
		SendingFacility:   s.builder.SendingFacility,
		ReceivingFacility: s.builder.ReceivingFacility,
		Payload:           built.Raw,
		Status:            StatusSent,
		PatientID:         patientID,
		OrderID:           orderID,
	}
	created, err := s.repo.Create(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("record outbound %s: %w", built.Type, err)
	}
	if !created {
		// Control IDs are freshly generated, so this should not happen.
		s.logger.Warn().Str("control_id", built.ControlID).Msg("outbound control id collision, keeping existing row")
		return s.repo.GetByControlID(ctx, built.ControlID)
	}
	s.logger.Info().
		Str("message_type", built.Type).
		Str("control_id", built.ControlID).
		Msg("outbound message recorded")
	return m, nil
}

// HandleInbound records a dequeued inbound frame. Unparseable payloads are
// stored with type UNKNOWN rather than dropped. Duplicate non-empty control
// IDs are a no-op; frames without MSH-10 are always stored. Acknowledgments
// additionally resolve the outbound original.
func (s *Service) HandleInbound(ctx context.Context, frame hl7v2.InboundFrame) error {
	decoded := hl7v2.Decode(frame.Raw)
	msgType := decoded.Type
	if msgType == "" {
		msgType = "UNKNOWN"
	}

	m := &Message{
		MessageType:       msgType,
		ControlID:         frame.ControlID,
		Direction:         DirectionInbound,
		SendingFacility:   decoded.Field("MSH", 2),
		ReceivingFacility: decoded.Field("MSH", 4),
		Payload:           frame.Raw,
		Status:            StatusReceived,
	}
	if pid := decoded.Field("PID", 3); pid != "" {
		m.PatientID = &pid
	}

	created, err := s.repo.Create(ctx, m)
	if err != nil {
		return fmt.Errorf("record inbound %s: %w", frame.ControlID, err)
	}
	if !created {
		s.logger.Debug().Str("control_id", frame.ControlID).Msg("duplicate inbound message ignored")
		return nil
	}

	s.logger.Info().
		Str("message_type", msgType).
		Str("control_id", frame.ControlID).
		Msg("inbound message recorded")

	if msgType == hl7v2.TypeAck {
		s.resolveAck(ctx, decoded)
	}
	return nil
}

// resolveAck transitions the acknowledged outbound message. Failures are
// logged only; the inbound row is already stored for audit.
func (s *Service) resolveAck(ctx context.Context, decoded *hl7v2.DecodedMessage) {
	code := decoded.Field("MSA", 1)
	origID := decoded.Field("MSA", 2)
	if origID == "" {
		s.logger.Warn().Msg("ack without original control id")
		return
	}

	var err error
	switch hl7v2.ACKCode(code) {
	case hl7v2.ACKAccept:
		err = s.MarkAcked(ctx, origID)
	default:
		reason := fmt.Sprintf("remote acknowledgment %s", code)
		err = s.repo.UpdateStatusByControlID(ctx, origID, StatusError, &reason)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("control_id", origID).Msg("failed to resolve ack")
		return
	}
	s.logger.Info().Str("control_id", origID).Str("ack_code", code).Msg("outbound message acknowledged")
}

// RetryFailed is the reliability sweep. It relabels up to one batch of
// errored outbound messages as sent, bumping their retry counts. Messages at
// the retry limit stay in "error" and surface through ListDeadLetters.
func (s *Service) RetryFailed(ctx context.Context) (int, error) {
	batch, err := s.repo.ListRetryable(ctx, s.maxRetries, s.retryBatch)
	if err != nil {
		return 0, fmt.Errorf("list retryable: %w", err)
	}

	retried := 0
	for _, m := range batch {
		if err := s.repo.MarkRetried(ctx, m.ID); err != nil {
			s.logger.Error().Err(err).Str("control_id", m.ControlID).Msg("retry update failed")
			continue
		}
		retried++
		s.logger.Info().
			Str("control_id", m.ControlID).
			Int("retry_count", m.RetryCount+1).
			Msg("message requeued for delivery")
	}
	return retried, nil
}

// MarkAcked records the remote system's acceptance of an outbound message.
func (s *Service) MarkAcked(ctx context.Context, controlID string) error {
	return s.repo.UpdateStatusByControlID(ctx, controlID, StatusAcked, nil)
}

// MarkError records a delivery failure reported by a collaborator.
func (s *Service) MarkError(ctx context.Context, controlID, reason string) error {
	return s.repo.UpdateStatusByControlID(ctx, controlID, StatusError, &reason)
}

// MarkRejected permanently rejects a message; the state is terminal.
func (s *Service) MarkRejected(ctx context.Context, controlID, reason string) error {
	return s.repo.UpdateStatusByControlID(ctx, controlID, StatusRejected, &reason)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Message, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByControlID(ctx context.Context, controlID string) (*Message, error) {
	return s.repo.GetByControlID(ctx, controlID)
}

func (s *Service) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Message, int, error) {
	return s.repo.Search(ctx, params, limit, offset)
}

// DeadLetters lists outbound messages that exhausted their retries.
func (s *Service) DeadLetters(ctx context.Context, limit, offset int) ([]*Message, int, error) {
	return s.repo.ListDeadLetters(ctx, s.maxRetries, limit, offset)
}
