package message

import (
	"context"
	"fmt"

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

const msgCols = `id, message_type, COALESCE(message_control_id, ''), direction,
	sending_facility, receiving_facility, payload, status, retry_count,
	error_message, patient_id, order_id, created_at, processed_at`

func (r *repoPG) scanMsg(row pgx.Row) (*Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.MessageType, &m.ControlID, &m.Direction,
		&m.SendingFacility, &m.ReceivingFacility, &m.Payload, &m.Status,
		&m.RetryCount, &m.ErrorMessage, &m.PatientID, &m.OrderID,
		&m.CreatedAt, &m.ProcessedAt)
	return &m, err
}

func (r *repoPG) Create(ctx context.Context, m *Message) (bool, error) {
	m.ID = uuid.New()
	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO hl7_messages (id, message_type, message_control_id, direction,
			sending_facility, receiving_facility, payload, status, retry_count,
			error_message, patient_id, order_id)
		VALUES ($1,$2,NULLIF($3,''),$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (message_control_id) WHERE message_control_id IS NOT NULL DO NOTHING`,
		m.ID, m.MessageType, m.ControlID, m.Direction,
		m.SendingFacility, m.ReceivingFacility, m.Payload, m.Status,
		m.RetryCount, m.ErrorMessage, m.PatientID, m.OrderID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Message, error) {
	return r.scanMsg(r.conn(ctx).QueryRow(ctx, `SELECT `+msgCols+` FROM hl7_messages WHERE id = $1`, id))
}

func (r *repoPG) GetByControlID(ctx context.Context, controlID string) (*Message, error) {
	return r.scanMsg(r.conn(ctx).QueryRow(ctx, `SELECT `+msgCols+` FROM hl7_messages WHERE message_control_id = $1`, controlID))
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, errMsg *string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE hl7_messages SET status=$2, error_message=$3, processed_at=NOW()
		WHERE id = $1`, id, status, errMsg)
	return err
}

func (r *repoPG) UpdateStatusByControlID(ctx context.Context, controlID string, status Status, errMsg *string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE hl7_messages SET status=$2, error_message=$3, processed_at=NOW()
		WHERE message_control_id = $1`, controlID, status, errMsg)
	return err
}

func (r *repoPG) MarkRetried(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE hl7_messages SET status=$2, retry_count = retry_count + 1, processed_at=NOW()
		WHERE id = $1`, id, StatusSent)
	return err
}

func (r *repoPG) ListRetryable(ctx context.Context, maxRetries, limit int) ([]*Message, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+msgCols+` FROM hl7_messages
		WHERE direction = $1 AND status = $2 AND retry_count < $3
		ORDER BY created_at ASC LIMIT $4`,
		DirectionOutbound, StatusError, maxRetries, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Message
	for rows.Next() {
		m, err := r.scanMsg(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, nil
}

func (r *repoPG) ListDeadLetters(ctx context.Context, maxRetries, limit, offset int) ([]*Message, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM hl7_messages
		WHERE direction = $1 AND status = $2 AND retry_count >= $3`,
		DirectionOutbound, StatusError, maxRetries).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+msgCols+` FROM hl7_messages
		WHERE direction = $1 AND status = $2 AND retry_count >= $3
		ORDER BY created_at DESC LIMIT $4 OFFSET $5`,
		DirectionOutbound, StatusError, maxRetries, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Message
	for rows.Next() {
		m, err := r.scanMsg(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, nil
}

func (r *repoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Message, int, error) {
	query := `SELECT ` + msgCols + ` FROM hl7_messages WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM hl7_messages WHERE 1=1`
	var args []interface{}
	idx := 1

	if p, ok := params["status"]; ok {
		query += fmt.Sprintf(` AND status = $%d`, idx)
		countQuery += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["direction"]; ok {
		query += fmt.Sprintf(` AND direction = $%d`, idx)
		countQuery += fmt.Sprintf(` AND direction = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["message_type"]; ok {
		query += fmt.Sprintf(` AND message_type = $%d`, idx)
		countQuery += fmt.Sprintf(` AND message_type = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["patient_id"]; ok {
		query += fmt.Sprintf(` AND patient_id = $%d`, idx)
		countQuery += fmt.Sprintf(` AND patient_id = $%d`, idx)
		args = append(args, p)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Message
	for rows.Next() {
		m, err := r.scanMsg(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, nil
}
