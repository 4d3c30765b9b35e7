package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/dimed/hisris/internal/domain/message"
)

func newMessage(controlID string, direction message.Direction, status message.Status) *message.Message {
	return &message.Message{
		MessageType:       "ORU^R01",
		ControlID:         controlID,
		Direction:         direction,
		SendingFacility:   "HIS_RIS",
		ReceivingFacility: "PACS",
		Payload:           "MSH|^~\\&|HIS_RIS||PACS||20260301093000||ORU^R01|" + controlID + "|P|2.5\r",
		Status:            status,
	}
}

func TestMessageRepo_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	truncateTables(t, ctx)
	repo := message.NewRepoPG(globalDB.Pool)

	m := newMessage("ITCTRL001", message.DirectionOutbound, message.StatusSent)
	created, err := repo.Create(ctx, m)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created {
		t.Error("expected first insert to report created")
	}

	got, err := repo.GetByControlID(ctx, "ITCTRL001")
	if err != nil {
		t.Fatalf("get by control id: %v", err)
	}
	if got.ID != m.ID {
		t.Errorf("got id %s, want %s", got.ID, m.ID)
	}
	if got.Status != message.StatusSent {
		t.Errorf("status = %s, want SENT", got.Status)
	}
	if got.CreatedAt.IsZero() {
		t.Error("expected created_at to be set by the database")
	}
}

func TestMessageRepo_DuplicateControlID(t *testing.T) {
	ctx := context.Background()
	truncateTables(t, ctx)
	repo := message.NewRepoPG(globalDB.Pool)

	first := newMessage("ITCTRL002", message.DirectionInbound, message.StatusReceived)
	if created, err := repo.Create(ctx, first); err != nil || !created {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}

	dup := newMessage("ITCTRL002", message.DirectionInbound, message.StatusReceived)
	created, err := repo.Create(ctx, dup)
	if err != nil {
		t.Fatalf("duplicate create: %v", err)
	}
	if created {
		t.Error("expected duplicate control id to be a no-op")
	}

	got, err := repo.GetByControlID(ctx, "ITCTRL002")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != first.ID {
		t.Error("duplicate insert must not replace the original row")
	}
}

func TestMessageRepo_MissingControlIDNeverDeduplicated(t *testing.T) {
	ctx := context.Background()
	truncateTables(t, ctx)
	repo := message.NewRepoPG(globalDB.Pool)

	for i, payload := range []string{"garbage one", "garbage two"} {
		m := newMessage("", message.DirectionInbound, message.StatusReceived)
		m.MessageType = "UNKNOWN"
		m.Payload = payload
		created, err := repo.Create(ctx, m)
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if !created {
			t.Errorf("frame %d without control id must not conflict", i)
		}
	}

	var total int
	if err := globalDB.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM hl7_messages WHERE message_control_id IS NULL`).Scan(&total); err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Errorf("stored %d rows for 2 distinct unparseable frames", total)
	}
}

func TestMessageRepo_RetryLifecycle(t *testing.T) {
	ctx := context.Background()
	truncateTables(t, ctx)
	repo := message.NewRepoPG(globalDB.Pool)

	m := newMessage("ITCTRL003", message.DirectionOutbound, message.StatusSent)
	if _, err := repo.Create(ctx, m); err != nil {
		t.Fatal(err)
	}

	reason := "connection refused"
	if err := repo.UpdateStatus(ctx, m.ID, message.StatusError, &reason); err != nil {
		t.Fatalf("mark error: %v", err)
	}

	retryable, err := repo.ListRetryable(ctx, 3, 10)
	if err != nil {
		t.Fatalf("list retryable: %v", err)
	}
	if len(retryable) != 1 {
		t.Fatalf("retryable = %d, want 1", len(retryable))
	}

	if err := repo.MarkRetried(ctx, m.ID); err != nil {
		t.Fatalf("mark retried: %v", err)
	}
	got, err := repo.GetByID(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != message.StatusSent {
		t.Errorf("status = %s, want SENT after retry", got.Status)
	}
	if got.RetryCount != 1 {
		t.Errorf("retry_count = %d, want 1", got.RetryCount)
	}
	if got.ProcessedAt == nil {
		t.Error("expected processed_at to be set after retry")
	}
}

func TestMessageRepo_DeadLetters(t *testing.T) {
	ctx := context.Background()
	truncateTables(t, ctx)
	repo := message.NewRepoPG(globalDB.Pool)

	exhausted := newMessage("ITCTRL004", message.DirectionOutbound, message.StatusError)
	exhausted.RetryCount = 3
	if _, err := repo.Create(ctx, exhausted); err != nil {
		t.Fatal(err)
	}
	pending := newMessage("ITCTRL005", message.DirectionOutbound, message.StatusError)
	pending.RetryCount = 1
	if _, err := repo.Create(ctx, pending); err != nil {
		t.Fatal(err)
	}

	items, total, err := repo.ListDeadLetters(ctx, 3, 10, 0)
	if err != nil {
		t.Fatalf("list dead letters: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("dead letters = %d/%d, want 1/1", len(items), total)
	}
	if items[0].ControlID != "ITCTRL004" {
		t.Errorf("dead letter control id = %s, want ITCTRL004", items[0].ControlID)
	}
}

func TestMessageRepo_Search(t *testing.T) {
	ctx := context.Background()
	truncateTables(t, ctx)
	repo := message.NewRepoPG(globalDB.Pool)

	out := newMessage("ITCTRL006", message.DirectionOutbound, message.StatusSent)
	mrn := "MRN777"
	out.PatientID = &mrn
	if _, err := repo.Create(ctx, out); err != nil {
		t.Fatal(err)
	}
	in := newMessage("ITCTRL007", message.DirectionInbound, message.StatusReceived)
	if _, err := repo.Create(ctx, in); err != nil {
		t.Fatal(err)
	}

	items, total, err := repo.Search(ctx, map[string]string{
		"direction":  "OUTBOUND",
		"patient_id": "MRN777",
	}, 20, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("search results = %d/%d, want 1/1", len(items), total)
	}
	if items[0].ControlID != "ITCTRL006" {
		t.Errorf("control id = %s, want ITCTRL006", items[0].ControlID)
	}
}

func TestMessageRepo_GetMissing(t *testing.T) {
	ctx := context.Background()
	truncateTables(t, ctx)
	repo := message.NewRepoPG(globalDB.Pool)

	_, err := repo.GetByControlID(ctx, "NOSUCH")
	if !errors.Is(err, pgx.ErrNoRows) {
		t.Errorf("expected pgx.ErrNoRows, got %v", err)
	}
}
