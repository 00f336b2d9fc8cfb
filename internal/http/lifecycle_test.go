// README: End-to-end lifecycle test over HTTP against Postgres (skipped without FOODLINE_TEST_DSN).
package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"foodline/internal/config"
	"foodline/internal/infra"
	"foodline/internal/modules/directory"
	"foodline/internal/modules/notification"
	"foodline/internal/modules/order"
	"foodline/internal/modules/pricing"
)

const testSecret = "lifecycle-secret"

func TestOrderLifecycleOverHTTP(t *testing.T) {
	dsn := os.Getenv("FOODLINE_TEST_DSN")
	if dsn == "" {
		t.Skip("FOODLINE_TEST_DSN not set; skipping end-to-end test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	db, err := infra.NewDB(ctx, dsn, 4)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(db.Close)
	if err := migrateAndSeed(ctx, db); err != nil {
		t.Fatalf("prepare db: %v", err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	dirStore := directory.NewStore(db)
	registry := notification.NewRegistry()
	outbox := notification.NewOutbox(notification.NewDispatcher(registry, dirStore, log), 64, 1, log)
	outbox.Start(ctx)
	t.Cleanup(func() {
		outbox.Close()
		registry.Close()
	})

	svc := order.NewService(order.Deps{
		Repo:      order.NewStore(db),
		Directory: dirStore,
		Pricing:   pricing.NewService(config.DefaultPricing()),
		Notifier:  outbox,
		Log:       log,
	})
	verifier, err := infra.NewJWTVerifier(testSecret)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	gin.SetMode(gin.TestMode)
	srv := httptest.NewServer(NewServer(ServerDeps{
		Order:          svc,
		Availability:   directory.NewService(dirStore, log),
		Registry:       registry,
		Verifier:       verifier,
		Log:            log,
		CORSOrigins:    []string{"*"},
		RequestTimeout: 5 * time.Second,
		RateLimitRPS:   100,
		RateLimitBurst: 100,
	}).Routes())
	defer srv.Close()

	client := &http.Client{Timeout: 10 * time.Second}
	call := func(uid, role, method, path string, body any) (int, map[string]any) {
		t.Helper()
		token, err := infra.SignJWT(testSecret, uid, role, jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		})
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		var buf bytes.Buffer
		if body != nil {
			_ = json.NewEncoder(&buf).Encode(body)
		}
		req, _ := http.NewRequestWithContext(ctx, method, srv.URL+path, &buf)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", method, path, err)
		}
		defer resp.Body.Close()
		var out map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&out)
		return resp.StatusCode, out
	}

	code, body := call("c1", "client", http.MethodPost, "/api/orders", map[string]any{
		"storeId":         "s1",
		"items":           []map[string]any{{"productId": "p1", "quantity": 2}},
		"deliveryAddress": "1 Main St",
	})
	if code != http.StatusBadRequest || body["minOrder"] == nil {
		t.Fatalf("below minimum: expected 400 with minOrder, got %d %v", code, body)
	}

	code, body = call("c1", "client", http.MethodPost, "/api/orders", map[string]any{
		"storeId":         "s1",
		"items":           []map[string]any{{"productId": "p1", "quantity": 2}, {"productId": "p2", "quantity": 2}},
		"deliveryAddress": "1 Main St",
	})
	if code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d %v", code, body)
	}
	id, _ := body["id"].(string)
	if body["orderNumber"] != float64(1) || body["status"] != "pending" {
		t.Fatalf("unexpected created order %v", body)
	}

	path := "/api/orders/" + id + "/status"
	if code, body = call("d1", "driver", http.MethodPatch, path, map[string]any{"status": "accepted"}); code != http.StatusForbidden {
		t.Fatalf("driver on pending: expected 403, got %d %v", code, body)
	}
	for _, to := range []string{"accepted", "preparing", "ready"} {
		if code, body = call("owner1", "store_owner", http.MethodPatch, path, map[string]any{"status": to}); code != http.StatusOK {
			t.Fatalf("owner -> %s: got %d %v", to, code, body)
		}
	}

	code, body = call("d1", "driver", http.MethodGet, "/api/drivers/orders", nil)
	if list, _ := body["orders"].([]any); code != http.StatusOK || len(list) != 1 {
		t.Fatalf("job board: got %d %v", code, body)
	}
	if code, body = call("d1", "driver", http.MethodPost, "/api/drivers/orders/"+id+"/assign", nil); code != http.StatusOK {
		t.Fatalf("assign: got %d %v", code, body)
	}
	if code, _ = call("d2", "driver", http.MethodPost, "/api/drivers/orders/"+id+"/assign", nil); code != http.StatusConflict {
		t.Fatalf("second claim: expected 409, got %d", code)
	}
	for _, to := range []string{"picked_up", "on_way", "delivered"} {
		if code, body = call("d1", "driver", http.MethodPatch, path, map[string]any{"status": to}); code != http.StatusOK {
			t.Fatalf("driver -> %s: got %d %v", to, code, body)
		}
	}
	if code, body = call("d1", "driver", http.MethodPatch, path, map[string]any{"status": "cancelled"}); code != http.StatusForbidden {
		t.Fatalf("terminal order: expected 403, got %d %v", code, body)
	}

	code, body = call("c1", "client", http.MethodGet, path, nil)
	if code != http.StatusOK || body["status"] != "delivered" {
		t.Fatalf("status: got %d %v", code, body)
	}

	var deliveries int
	var earnings string
	if err := db.QueryRow(ctx, "SELECT total_deliveries, total_earnings::text FROM users WHERE id = 'd1'").Scan(&deliveries, &earnings); err != nil {
		t.Fatalf("query driver: %v", err)
	}
	// 4 x 0.7 + 5 x 5
	if deliveries != 1 || earnings != "27.80" {
		t.Fatalf("expected 1 delivery and 27.80 earned, got %d and %s", deliveries, earnings)
	}
}

func migrateAndSeed(ctx context.Context, db *pgxpool.Pool) error {
	root, err := moduleRoot()
	if err != nil {
		return err
	}
	paths, err := filepath.Glob(filepath.Join(root, "migrations", "*.sql"))
	if err != nil {
		return err
	}
	sort.Strings(paths)
	var stmts []string
	for _, p := range paths {
		content, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		stmts = append(stmts, statements(string(content))...)
	}
	stmts = append(stmts,
		"TRUNCATE TABLE order_status_history, order_items, orders, products, stores, users",
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
	)
	for _, s := range stmts {
		if _, err := db.Exec(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func moduleRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}

// statements drops comment lines and splits on ';'.
func statements(sql string) []string {
	var b strings.Builder
	sc := bufio.NewScanner(strings.NewReader(sql))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" && !strings.HasPrefix(line, "--") {
			b.WriteString(sc.Text())
			b.WriteString("\n")
		}
	}
	var out []string
	for _, p := range strings.Split(b.String(), ";") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
