package worklist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/dimed/hisris/internal/platform/mwl"
)

// Service drives the worklist entry lifecycle: one active entry with a
// backing .wl file per placed order, torn down when the order completes or
// cancels, purged after a retention window.
type Service struct {
	repo          Repository
	store         *mwl.Store
	institutionAE string
	retentionDays int
	logger        zerolog.Logger
}

func NewService(repo Repository, store *mwl.Store, institutionAE string, retentionDays int, logger zerolog.Logger) *Service {
	return &Service{
		repo:          repo,
		store:         store,
		institutionAE: institutionAE,
		retentionDays: retentionDays,
		logger:        logger.With().Str("component", "worklist").Logger(),
	}
}

// CreateParams carries the patient and order fields an entry is built from.
// Names arrive as plain first/last and are formatted to DICOM PN here.
type CreateParams struct {
	OrderID              string
	AccessionNumber      string
	PatientID            string // MRN
	PatientLastName      string
	PatientFirstName     string
	PatientBirthDate     string // YYYYMMDD, may be empty
	PatientSex           string // single letter, may be empty
	Modality             string
	ScheduledAt          time.Time
	ProcedureDescription string
	ProcedureCode        string
	ReferringPhysician   string
	StationName          string
}

// Create builds the worklist entry for a placed order and writes its .wl
// file. Calling it again for the same order returns the existing entry. A
// file write failure is logged and leaves the entry without a file path; the
// order operation itself must not fail over it.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Entry, error) {
	if p.OrderID == "" {
		return nil, fmt.Errorf("order id is required")
	}
	if p.AccessionNumber == "" {
		return nil, fmt.Errorf("accession number is required")
	}
	if p.PatientID == "" {
		return nil, fmt.Errorf("patient id is required")
	}
	if p.Modality == "" {
		return nil, fmt.Errorf("modality is required")
	}

	existing, err := s.repo.GetByOrderID(ctx, p.OrderID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	e := &Entry{
		OrderID:                 p.OrderID,
		AccessionNumber:         p.AccessionNumber,
		PatientID:               p.PatientID,
		PatientName:             FormatPatientName(p.PatientLastName, p.PatientFirstName),
		PatientBirthDate:        p.PatientBirthDate,
		PatientSex:              strings.ToUpper(p.PatientSex),
		Modality:                strings.ToUpper(p.Modality),
		ScheduledAt:             p.ScheduledAt,
		ProcedureDescription:    p.ProcedureDescription,
		RequestedProcedureID:    p.AccessionNumber,
		ScheduledStationAETitle: s.institutionAE,
		Status:                  StatusActive,
	}
	if p.ProcedureCode != "" {
		e.ProcedureCode = &p.ProcedureCode
	}
	if p.ReferringPhysician != "" {
		e.ReferringPhysician = &p.ReferringPhysician
	}
	if p.StationName != "" {
		e.ScheduledStationName = &p.StationName
	}

	if err := s.repo.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("create worklist entry: %w", err)
	}

	path := s.writeFile(e)
	if path != "" {
		e.FilePath = &path
		if err := s.repo.SetFilePath(ctx, e.ID, e.FilePath); err != nil {
			s.logger.Error().Err(err).Str("accession_number", e.AccessionNumber).Msg("failed to record worklist file path")
		}
	}

	s.logger.Info().
		Str("order_id", e.OrderID).
		Str("accession_number", e.AccessionNumber).
		Str("modality", e.Modality).
		Msg("worklist entry created")
	return e, nil
}

// writeFile builds and persists the .wl dataset from the stored entry.
// Failures are logged only; the database entry stands regardless.
func (s *Service) writeFile(e *Entry) string {
	in := mwl.Input{
		AccessionNumber:      e.AccessionNumber,
		PatientID:            e.PatientID,
		PatientName:          e.PatientName,
		PatientBirthDate:     e.PatientBirthDate,
		PatientSex:           e.PatientSex,
		Modality:             e.Modality,
		ScheduledAt:          e.ScheduledAt,
		ProcedureDescription: e.ProcedureDescription,
		RequestedProcedureID: e.RequestedProcedureID,
		StationAETitle:       e.ScheduledStationAETitle,
		InstitutionAETitle:   s.institutionAE,
	}
	if e.ProcedureCode != nil {
		in.ProcedureCode = *e.ProcedureCode
	}
	if e.ReferringPhysician != nil {
		in.ReferringPhysician = *e.ReferringPhysician
	}
	if e.ScheduledStationName != nil {
		in.StationName = *e.ScheduledStationName
	}

	ds, err := mwl.BuildDataset(in)
	if err != nil {
		s.logger.Error().Err(err).Str("accession_number", e.AccessionNumber).Msg("worklist dataset build failed")
		return ""
	}
	path, err := s.store.Write(ds, e.AccessionNumber)
	if err != nil {
		s.logger.Error().Err(err).Str("accession_number", e.AccessionNumber).Msg("worklist file write failed")
		return ""
	}
	return path
}

// Complete marks an order's entry completed and removes its file. Repeating
// the call is a no-op.
func (s *Service) Complete(ctx context.Context, orderID string) error {
	return s.finish(ctx, orderID, StatusCompleted)
}

// Cancel marks an order's entry cancelled and removes its file. Repeating
// the call is a no-op.
func (s *Service) Cancel(ctx context.Context, orderID string) error {
	return s.finish(ctx, orderID, StatusCancelled)
}

func (s *Service) finish(ctx context.Context, orderID string, status Status) error {
	e, err := s.repo.GetByOrderID(ctx, orderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("no worklist entry for order %s", orderID)
	}
	if err != nil {
		return err
	}
	if e.Terminal() {
		return nil
	}

	finished, err := s.repo.Finish(ctx, e.ID, status)
	if err != nil {
		return fmt.Errorf("update worklist entry: %w", err)
	}
	if !finished {
		// Another caller closed the entry first.
		return nil
	}
	s.store.Delete(e.AccessionNumber)

	s.logger.Info().
		Str("order_id", orderID).
		Str("accession_number", e.AccessionNumber).
		Str("status", string(status)).
		Msg("worklist entry closed")
	return nil
}

// Active lists active entries, optionally filtered by modality, soonest
// first.
func (s *Service) Active(ctx context.Context, modality string, limit, offset int) ([]*Entry, int, error) {
	return s.repo.ListActive(ctx, strings.ToUpper(modality), limit, offset)
}

// Get returns an order's entry.
func (s *Service) Get(ctx context.Context, orderID string) (*Entry, error) {
	return s.repo.GetByOrderID(ctx, orderID)
}

// CleanupExpired is the retention sweep. It purges terminal entries past the
// retention window and removes any lingering files. Returns the number of
// entries purged.
func (s *Service) CleanupExpired(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)
	expired, err := s.repo.ListExpired(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list expired entries: %w", err)
	}

	purged := 0
	for _, e := range expired {
		s.store.Delete(e.AccessionNumber)
		if err := s.repo.Delete(ctx, e.ID); err != nil {
			s.logger.Error().Err(err).Str("accession_number", e.AccessionNumber).Msg("failed to purge worklist entry")
			continue
		}
		purged++
	}
	if purged > 0 {
		s.logger.Info().Int("purged", purged).Msg("expired worklist entries removed")
	}
	return purged, nil
}

// FormatPatientName renders a DICOM PN value as LAST^FIRST, upper-cased.
func FormatPatientName(last, first string) string {
	return strings.ToUpper(strings.TrimSpace(last)) + "^" + strings.ToUpper(strings.TrimSpace(first))
}
