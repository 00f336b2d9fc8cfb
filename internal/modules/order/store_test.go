// README: PostgreSQL-backed store tests (order numbering, version guard, atomic credit).
package order

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"foodline/internal/apperr"
	"foodline/internal/config"
	"foodline/internal/modules/directory"
	"foodline/internal/modules/pricing"
)

func TestStoreConcurrentCreatesAreSequential(t *testing.T) {
	ctx := context.Background()
	svc, db := setupDBService(t)

	const n = 10
	var wg sync.WaitGroup
	numbers := make(chan int64, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			o, err := svc.Create(ctx, client1, CreateCommand{
				StoreID:         "s1",
				Items:           []CartItem{{ProductID: "p1", Quantity: 6}},
				DeliveryAddress: "1 Main St",
			})
			if err != nil {
				t.Errorf("create: %v", err)
				return
			}
			numbers <- o.OrderNumber
		}()
	}
	close(start)
	wg.Wait()
	close(numbers)

	var got []int64
	for num := range numbers {
		got = append(got, num)
	}
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	for i, num := range got {
		if num != int64(i+1) {
			t.Fatalf("expected numbers 1..%d, got %v", n, got)
		}
	}

	var rows int
	if err := db.QueryRow(ctx, `SELECT COUNT(*) FROM order_status_history`).Scan(&rows); err != nil {
		t.Fatalf("count history: %v", err)
	}
	if rows != n {
		t.Fatalf("expected one initial history row per order, got %d", rows)
	}
}

func TestStoreBelowMinimumNotPersisted(t *testing.T) {
	ctx := context.Background()
	svc, db := setupDBService(t)

	_, err := svc.Create(ctx, client1, CreateCommand{
		StoreID:         "s1",
		Items:           []CartItem{{ProductID: "p1", Quantity: 3}},
		DeliveryAddress: "1 Main St",
	})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	var count int
	if err := db.QueryRow(ctx, `SELECT COUNT(*) FROM orders`).Scan(&count); err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no orders persisted, got %d", count)
	}
}

func TestStoreLifecycleRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, db := setupDBService(t)

	o, err := svc.Create(ctx, client1, CreateCommand{
		StoreID:         "s1",
		Items:           []CartItem{{ProductID: "p1", Quantity: 3}, {ProductID: "p2", Quantity: 1}},
		DeliveryAddress: "1 Main St",
		PaymentMethod:   PaymentCard,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, s := range []step{
		{owner1, StatusAccepted}, {owner1, StatusPreparing}, {owner1, StatusReady},
		{driver1, StatusPickedUp}, {driver1, StatusOnWay}, {driver1, StatusDelivered},
	} {
		if _, err := svc.UpdateStatus(ctx, s.actor, o.ID, s.to, "step "+string(s.to)); err != nil {
			t.Fatalf("move to %s: %v", s.to, err)
		}
	}

	got, err := svc.Get(ctx, client1, o.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusDelivered || got.lastStatus() != StatusDelivered || len(got.History) != 7 {
		t.Fatalf("unexpected persisted lifecycle: status=%s history=%d", got.Status, len(got.History))
	}
	if got.StatusVersion != 6 || got.StoreOwnerID != "owner1" || got.PaymentMethod != PaymentCard {
		t.Fatalf("unexpected header %+v", got)
	}
	if len(got.Items) != 2 || got.Items[1].Name != "Tiramisu" {
		t.Fatalf("unexpected items %+v", got.Items)
	}
	if got.DriverEarnings == nil || !got.DriverEarnings.Equal(dec("27.8")) || got.AssignedAt == nil {
		t.Fatalf("expected implicit assignment persisted")
	}

	var deliveries int
	var earnings decimal.Decimal
	if err := db.QueryRow(ctx, `SELECT total_deliveries, total_earnings FROM users WHERE id = 'd1'`).Scan(&deliveries, &earnings); err != nil {
		t.Fatalf("load driver: %v", err)
	}
	if deliveries != 1 || !earnings.Equal(dec("27.8")) {
		t.Fatalf("expected one credited delivery, got %d / %s", deliveries, earnings)
	}
}

func TestStoreUpdateVersionGuard(t *testing.T) {
	ctx := context.Background()
	svc, db := setupDBService(t)
	store := NewStore(db)

	o, err := svc.Create(ctx, client1, CreateCommand{
		StoreID:         "s1",
		Items:           []CartItem{{ProductID: "p2", Quantity: 2}},
		DeliveryAddress: "1 Main St",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	stale, _ := store.Get(ctx, o.ID)
	if _, err := svc.UpdateStatus(ctx, owner1, o.ID, StatusAccepted, ""); err != nil {
		t.Fatalf("accept: %v", err)
	}

	stale.Status = StatusCancelled
	if err := store.Update(ctx, stale, 0, &HistoryEntry{Status: StatusCancelled}, nil); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	stale.ID = "missing"
	if err := store.Update(ctx, stale, 0, nil, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	got, _ := store.Get(ctx, o.ID)
	if got.Status != StatusAccepted || len(got.History) != 2 {
		t.Fatalf("stale write leaked: status=%s history=%d", got.Status, len(got.History))
	}
}

func TestStoreCreditRollsBackWithStatus(t *testing.T) {
	ctx := context.Background()
	svc, db := setupDBService(t)
	store := NewStore(db)

	o, err := svc.Create(ctx, client1, CreateCommand{
		StoreID:         "s1",
		Items:           []CartItem{{ProductID: "p2", Quantity: 2}},
		DeliveryAddress: "1 Main St",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	o.Status = StatusAccepted
	credit := &DriverCredit{DriverID: "ghost", Deliveries: 1, Earnings: dec("10")}
	if err := store.Update(ctx, o, 0, &HistoryEntry{Status: StatusAccepted}, credit); err == nil {
		t.Fatalf("expected failure crediting an unknown driver")
	}
	got, _ := store.Get(ctx, o.ID)
	if got.Status != StatusPending || got.StatusVersion != 0 || len(got.History) != 1 {
		t.Fatalf("status write must roll back with the failed credit")
	}
}

func TestStoreListAvailable(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupDBService(t)

	o, err := svc.Create(ctx, client1, CreateCommand{
		StoreID:         "s1",
		Items:           []CartItem{{ProductID: "p2", Quantity: 2}},
		DeliveryAddress: "1 Main St",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, to := range []Status{StatusAccepted, StatusPreparing, StatusReady} {
		if _, err := svc.UpdateStatus(ctx, owner1, o.ID, to, ""); err != nil {
			t.Fatalf("move to %s: %v", to, err)
		}
	}
	avail, err := svc.ListAvailable(ctx, driver1)
	if err != nil || len(avail) != 1 || avail[0].ID != o.ID {
		t.Fatalf("expected the ready order on the job board, got %v (%v)", avail, err)
	}
	if _, err := svc.AssignDriver(ctx, driver1, o.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	avail, _ = svc.ListAvailable(ctx, driver1)
	if len(avail) != 0 {
		t.Fatalf("claimed order should leave the job board")
	}
}

func setupDBService(t *testing.T) (*Service, *pgxpool.Pool) {
	t.Helper()
	db := setupTestDB(t)
	return setupDBServiceOn(t, db)
}

func setupDBServiceOn(t *testing.T, db *pgxpool.Pool) (*Service, *pgxpool.Pool) {
	t.Helper()
	return NewService(Deps{
		Repo:      NewStore(db),
		Directory: directory.NewStore(db),
		Pricing:   pricing.NewService(config.DefaultPricing()),
		Log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}), db
}

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("FOODLINE_TEST_DSN")
	if dsn == "" {
		t.Skip("FOODLINE_TEST_DSN not set; skipping DB-backed tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := applyMigration(ctx, db); err != nil {
		t.Fatalf("apply migration: %v", err)
	}
	if _, err := db.Exec(ctx, "TRUNCATE TABLE order_status_history, order_items, orders, products, stores, users"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	seed := []string{
		`INSERT INTO users (id, role, approved, available) VALUES
			('c1', 'client', FALSE, FALSE),
			('owner1', 'store_owner', FALSE, FALSE),
			('d1', 'driver', TRUE, TRUE),
			('d2', 'driver', TRUE, TRUE),
			('admin1', 'admin', FALSE, FALSE)`,
		`INSERT INTO stores (id, owner_id, name, is_open, min_order, delivery_fee) VALUES
			('s1', 'owner1', 'Pasta Place', TRUE, 50, 4)`,
		`INSERT INTO products (id, store_id, name, price, available) VALUES
			('p1', 's1', 'Carbonara', 10, TRUE),
			('p2', 's1', 'Tiramisu', 25, TRUE)`,
	}
	for _, stmt := range seed {
		if _, err := db.Exec(ctx, stmt); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return db
}

func applyMigration(ctx context.Context, db *pgxpool.Pool) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	paths, err := filepath.Glob(filepath.Join(root, "migrations", "*.sql"))
	if err != nil {
		return err
	}
	sort.Strings(paths)
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		for _, stmt := range splitSQL(stripSQLComments(string(content))) {
			if _, err := db.Exec(ctx, stmt); err != nil {
				return err
			}
		}
	}
	return nil
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 6; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}

func stripSQLComments(input string) string {
	var b strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(input))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		b.WriteString(scanner.Text())
		b.WriteString("\n")
	}
	return b.String()
}

func splitSQL(input string) []string {
	parts := strings.Split(input, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if stmt := strings.TrimSpace(p); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
