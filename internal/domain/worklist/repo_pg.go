package worklist

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dimed/hisris/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const entryCols = `id, order_id, accession_number, patient_id, patient_name,
	patient_birth_date, patient_sex, modality, scheduled_at,
	procedure_description, procedure_code, requested_procedure_id,
	referring_physician, scheduled_station_ae_title, scheduled_station_name,
	status, file_path, created_at, updated_at`

func (r *repoPG) scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.OrderID, &e.AccessionNumber, &e.PatientID,
		&e.PatientName, &e.PatientBirthDate, &e.PatientSex, &e.Modality,
		&e.ScheduledAt, &e.ProcedureDescription, &e.ProcedureCode,
		&e.RequestedProcedureID, &e.ReferringPhysician,
		&e.ScheduledStationAETitle, &e.ScheduledStationName,
		&e.Status, &e.FilePath, &e.CreatedAt, &e.UpdatedAt)
	return &e, err
}

func (r *repoPG) Create(ctx context.Context, e *Entry) error {
	e.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO dicom_worklist_entries (id, order_id, accession_number,
			patient_id, patient_name, patient_birth_date, patient_sex,
			modality, scheduled_at, procedure_description, procedure_code,
			requested_procedure_id, referring_physician,
			scheduled_station_ae_title, scheduled_station_name,
			status, file_path)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		e.ID, e.OrderID, e.AccessionNumber, e.PatientID, e.PatientName,
		e.PatientBirthDate, e.PatientSex, e.Modality, e.ScheduledAt,
		e.ProcedureDescription, e.ProcedureCode, e.RequestedProcedureID,
		e.ReferringPhysician, e.ScheduledStationAETitle,
		e.ScheduledStationName, e.Status, e.FilePath)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return r.scanEntry(r.conn(ctx).QueryRow(ctx, `SELECT `+entryCols+` FROM dicom_worklist_entries WHERE id = $1`, id))
}

func (r *repoPG) GetByOrderID(ctx context.Context, orderID string) (*Entry, error) {
	return r.scanEntry(r.conn(ctx).QueryRow(ctx, `SELECT `+entryCols+` FROM dicom_worklist_entries WHERE order_id = $1`, orderID))
}

func (r *repoPG) GetByAccession(ctx context.Context, accessionNumber string) (*Entry, error) {
	return r.scanEntry(r.conn(ctx).QueryRow(ctx, `SELECT `+entryCols+` FROM dicom_worklist_entries WHERE accession_number = $1`, accessionNumber))
}

func (r *repoPG) SetFilePath(ctx context.Context, id uuid.UUID, path *string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE dicom_worklist_entries SET file_path=$2, updated_at=NOW()
		WHERE id = $1`, id, path)
	return err
}

// Finish locks the row, re-checks the state and applies the terminal
// transition in one transaction, so concurrent Complete and Cancel calls
// cannot both observe the entry as active.
func (r *repoPG) Finish(ctx context.Context, id uuid.UUID, status Status) (bool, error) {
	finished := false
	err := db.InTx(ctx, r.pool, func(ctx context.Context) error {
		var current Status
		if err := r.conn(ctx).QueryRow(ctx,
			`SELECT status FROM dicom_worklist_entries WHERE id = $1 FOR UPDATE`,
			id).Scan(&current); err != nil {
			return err
		}
		if current == StatusCompleted || current == StatusCancelled {
			return nil
		}
		if _, err := r.conn(ctx).Exec(ctx, `
			UPDATE dicom_worklist_entries SET status=$2, file_path=NULL, updated_at=NOW()
			WHERE id = $1`, id, status); err != nil {
			return err
		}
		finished = true
		return nil
	})
	return finished, err
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE dicom_worklist_entries SET status=$2, updated_at=NOW()
		WHERE id = $1`, id, status)
	return err
}

func (r *repoPG) ListActive(ctx context.Context, modality string, limit, offset int) ([]*Entry, int, error) {
	query := `SELECT ` + entryCols + ` FROM dicom_worklist_entries WHERE status = $1`
	countQuery := `SELECT COUNT(*) FROM dicom_worklist_entries WHERE status = $1`
	args := []interface{}{StatusActive}
	idx := 2

	if modality != "" {
		query += fmt.Sprintf(` AND modality = $%d`, idx)
		countQuery += fmt.Sprintf(` AND modality = $%d`, idx)
		args = append(args, modality)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY scheduled_at ASC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Entry
	for rows.Next() {
		e, err := r.scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, nil
}

func (r *repoPG) ListExpired(ctx context.Context, cutoff time.Time) ([]*Entry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+entryCols+` FROM dicom_worklist_entries
		WHERE status IN ($1, $2) AND updated_at < $3`,
		StatusCompleted, StatusCancelled, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Entry
	for rows.Next() {
		e, err := r.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM dicom_worklist_entries WHERE id = $1`, id)
	return err
}
