package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"provisionpos/backend/internal/domain"
)

func TestUndoLatestSaleRestocksInventory(t *testing.T) {
	databaseURL := os.Getenv("PROVISIONPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set PROVISIONPOS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prod-undo-it-%d", stamp)
	saleID := fmt.Sprintf("sale-undo-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM bottle_accounts WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, unit_price_cents, quantity, is_bottled)
		VALUES ($1, $2, 10000, 10, true)
	`, productID, fmt.Sprintf("Undo IT Water %d", stamp)); err != nil {
		t.Fatalf("insert product: %v", err)
	}

	now := time.Now().UTC()
	created, err := s.CreateSale(ctx, domain.Sale{
		ID: saleID,
		Items: []domain.SaleLine{
			{ProductID: productID, Qty: 3, BottleTaken: true},
		},
		SoldBy:        "integration",
		PaymentMethod: "cash",
		CreatedAt:     now,
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if created.TotalCents != 30000 {
		t.Fatalf("expected total 30000, got %d", created.TotalCents)
	}

	var qty int
	if err := s.db.QueryRowContext(ctx, `SELECT quantity FROM products WHERE id = $1`, productID).Scan(&qty); err != nil {
		t.Fatalf("query stock: %v", err)
	}
	if qty != 7 {
		t.Fatalf("expected stock 7 after sale, got %d", qty)
	}

	cutoff := now.Add(-5 * time.Minute)
	reverted, err := s.UndoLatestSale(ctx, cutoff)
	if err != nil {
		t.Fatalf("undo latest sale: %v", err)
	}
	if reverted.ID != saleID {
		t.Fatalf("expected reverted sale %s, got %s", saleID, reverted.ID)
	}

	if err := s.db.QueryRowContext(ctx, `SELECT quantity FROM products WHERE id = $1`, productID).Scan(&qty); err != nil {
		t.Fatalf("query stock after undo: %v", err)
	}
	if qty != 10 {
		t.Fatalf("expected stock 10 after undo restock, got %d", qty)
	}

	var taken int
	if err := s.db.QueryRowContext(ctx, `
		SELECT bottles_taken FROM bottle_accounts WHERE product_id = $1
	`, productID).Scan(&taken); err != nil {
		t.Fatalf("query bottle account: %v", err)
	}
	if taken != 0 {
		t.Fatalf("expected bottles_taken reverted to 0, got %d", taken)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sales WHERE id = $1`, saleID).Scan(&count); err != nil {
		t.Fatalf("query sale count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected undone sale to be deleted")
	}
}
