package query_test

import (
	"context"
	"testing"

	"MarginCore/internal/persistence"
	"MarginCore/internal/position"
	"MarginCore/internal/query"
	"MarginCore/internal/testutil"
)

func writeClosedRows(t *testing.T, writer *persistence.ClosedPositionWriter, positions []*position.ClosedPosition) {
	t.Helper()
	rows := make([]persistence.ClosedPositionRow, 0, len(positions))
	for _, p := range positions {
		row, err := persistence.NewClosedPositionRow(p)
		if err != nil {
			t.Fatalf("NewClosedPositionRow: %v", err)
		}
		rows = append(rows, row)
	}
	if err := writer.WriteBatch(context.Background(), rows); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
}

func TestWalletHistory(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	writer := persistence.NewClosedPositionWriter(db)
	positions := []*position.ClosedPosition{
		testutil.NewClosedPosition(t, "wallet-1", "trader-1"),
		testutil.NewClosedPosition(t, "wallet-1", "trader-1"),
		testutil.NewClosedPosition(t, "wallet-2", "trader-2"),
	}
	writeClosedRows(t, writer, positions)

	svc := query.NewService(db)
	ctx := context.Background()

	records, err := svc.WalletHistory(ctx, "wallet-1", 10, 0)
	if err != nil {
		t.Fatalf("WalletHistory: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	for _, r := range records {
		if r.WalletID != "wallet-1" {
			t.Errorf("wallet id = %q, want wallet-1", r.WalletID)
		}
	}
	// Newest first.
	if len(records) == 2 && records[0].CloseDate < records[1].CloseDate {
		t.Error("records must be ordered by close date descending")
	}

	if records, err := svc.WalletHistory(ctx, "wallet-9", 10, 0); err != nil || len(records) != 0 {
		t.Errorf("unknown wallet = (%d records, %v), want empty", len(records), err)
	}
}

func TestTraderHistory(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	writer := persistence.NewClosedPositionWriter(db)
	writeClosedRows(t, writer, []*position.ClosedPosition{
		testutil.NewClosedPosition(t, "wallet-1", "trader-1"),
		testutil.NewClosedPosition(t, "wallet-2", "trader-1"),
	})

	svc := query.NewService(db)
	records, err := svc.TraderHistory(context.Background(), "trader-1", 10, 0)
	if err != nil {
		t.Fatalf("TraderHistory: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("records = %d, want 2 across wallets", len(records))
	}
}

func TestClosedPositionLookup(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	writer := persistence.NewClosedPositionWriter(db)
	closed := testutil.NewClosedPosition(t, "wallet-1", "trader-1")
	writeClosedRows(t, writer, []*position.ClosedPosition{closed})

	svc := query.NewService(db)
	record, err := svc.ClosedPosition(context.Background(), closed.ID.String())
	if err != nil {
		t.Fatalf("ClosedPosition: %v", err)
	}
	if record == nil {
		t.Fatal("record = nil, want stored position")
	}
	if record.ID != closed.ID.String() {
		t.Errorf("id = %q, want %q", record.ID, closed.ID.String())
	}

	missing, err := svc.ClosedPosition(context.Background(), "00000000-0000-0000-0000-000000000000")
	if err != nil {
		t.Fatalf("ClosedPosition missing: %v", err)
	}
	if missing != nil {
		t.Errorf("missing record = %v, want nil", missing)
	}
}
