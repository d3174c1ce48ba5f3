package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"swapmatch/internal/config"
	"swapmatch/internal/database"
	"swapmatch/internal/domain"
	"swapmatch/internal/transport"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const testSecret = "server-test-secret"

// sqliteService satisfies database.Service over a migrated sqlite file
type sqliteService struct {
	db *sqlx.DB
}

func (s *sqliteService) DB() *sqlx.DB { return s.db }

func (s *sqliteService) Health(ctx context.Context) map[string]string {
	if err := s.db.PingContext(ctx); err != nil {
		return map[string]string{"status": "down", "error": err.Error()}
	}
	return map[string]string{"status": "up"}
}

func (s *sqliteService) Close() error { return s.db.Close() }

func newTestDB(t *testing.T) database.Service {
	t.Helper()
	db, err := sqlx.Open("sqlite", filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if err := database.RunMigrations(db.DB, database.DialectSQLite, "../../migrations", zap.NewNop()); err != nil {
		t.Fatal(err)
	}
	return &sqliteService{db: db}
}

func testConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{Port: "0", Env: "test", RequestTimeout: 5},
		JWT:      config.JWTConfig{Secret: testSecret},
		CORS:     config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
		Matching: config.MatchingConfig{DefaultTopK: 5, ActiveOnly: true},
	}
}

func token(t *testing.T, userID, username string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  userID,
		"username": username,
		"exp":      time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func call(t *testing.T, h http.Handler, method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	srv := NewServer(testConfig(), zap.NewNop(), newTestDB(t), nil, nil)

	w := call(t, srv.Handler, "GET", "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v", body["status"])
	}
	if _, ok := body["redis"]; ok {
		t.Error("redis should not be reported when not configured")
	}
}

func TestListAndMatchFlow(t *testing.T) {
	srv := NewServer(testConfig(), zap.NewNop(), newTestDB(t), nil, nil)
	h := srv.Handler

	alice, bob := uuid.NewString(), uuid.NewString()

	guitar := map[string]interface{}{
		"name":        "Acoustic guitar",
		"category":    "Handmade",
		"condition":   "Like New",
		"description": "Acoustic guitar with solid spruce top",
		"price":       250,
		"for_trade":   true,
	}
	w := call(t, h, "POST", "/api/items", token(t, alice, "alice"), guitar)
	if w.Code != http.StatusCreated {
		t.Fatalf("create guitar: %d %s", w.Code, w.Body.String())
	}
	var created domain.Item
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if created.ID == "" || created.TradeValue <= 0 {
		t.Fatalf("expected id and estimated trade value, got %+v", created)
	}

	for _, item := range []map[string]interface{}{
		{"name": "Electric guitar", "category": "Electronics", "condition": "Good", "description": "Electric guitar with amp", "price": 280, "for_trade": true},
		{"name": "Toaster", "category": "Home Goods", "condition": "Good", "description": "Two slice toaster", "price": 20, "for_trade": false},
	} {
		if w := call(t, h, "POST", "/api/items", token(t, bob, "bob"), item); w.Code != http.StatusCreated {
			t.Fatalf("create %s: %d %s", item["name"], w.Code, w.Body.String())
		}
	}

	w = call(t, h, "GET", "/api/items/"+created.ID+"/matches", token(t, alice, "alice"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("matches: %d %s", w.Code, w.Body.String())
	}
	var resp transport.MatchesResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Matches) != 1 || resp.Matches[0].Candidate.Name != "Electric guitar" {
		t.Fatalf("expected only the tradable guitar, got %+v", resp.Matches)
	}

	w = call(t, h, "GET", "/api/items/"+uuid.NewString()+"/matches", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown item: expected 404, got %d", w.Code)
	}

	w = call(t, h, "GET", "/metrics", "", nil)
	if !strings.Contains(w.Body.String(), `swapmatch_operations_total{operation="find_matches",outcome="success"} 1`) {
		t.Errorf("find_matches success not counted:\n%s", w.Body.String())
	}
}

func TestMutualMatchFlow(t *testing.T) {
	srv := NewServer(testConfig(), zap.NewNop(), newTestDB(t), nil, nil)
	h := srv.Handler

	alice, bob := uuid.NewString(), uuid.NewString()
	aliceToken, bobToken := token(t, alice, "alice"), token(t, bob, "bob")

	steps := []struct {
		bearer string
		path   string
		body   interface{}
	}{
		{aliceToken, "/api/items", map[string]interface{}{"name": "Film camera", "category": "Electronics", "condition": "Good", "description": "35mm film camera", "price": 120, "for_trade": true}},
		{bobToken, "/api/items", map[string]interface{}{"name": "Road bike", "category": "Other", "condition": "Good", "description": "Aluminium road bike", "price": 150, "for_trade": true}},
		{aliceToken, "/api/me/wishlist", map[string]interface{}{"item_name": "bike"}},
		{bobToken, "/api/me/wishlist", map[string]interface{}{"item_name": "camera"}},
	}
	for _, s := range steps {
		if w := call(t, h, "POST", s.path, s.bearer, s.body); w.Code != http.StatusCreated {
			t.Fatalf("POST %s: %d %s", s.path, w.Code, w.Body.String())
		}
	}

	w := call(t, h, "GET", "/api/users/"+alice+"/mutual-matches/"+bob, aliceToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("mutual: %d %s", w.Code, w.Body.String())
	}
	var mutual transport.MutualMatchesResponse
	if err := json.NewDecoder(w.Body).Decode(&mutual); err != nil {
		t.Fatal(err)
	}
	if len(mutual.Matches) != 1 || mutual.Matches[0].MatchScore != 0.5 {
		t.Fatalf("expected one heuristic match, got %+v", mutual.Matches)
	}

	w = call(t, h, "GET", "/api/me/trade-matches", bobToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("trade matches: %d %s", w.Code, w.Body.String())
	}
	var trades transport.MutualMatchesResponse
	if err := json.NewDecoder(w.Body).Decode(&trades); err != nil {
		t.Fatal(err)
	}
	if len(trades.Matches) != 1 || trades.Matches[0].UserBID != alice {
		t.Fatalf("expected bob to match alice, got %+v", trades.Matches)
	}

	w = call(t, h, "DELETE", "/api/me/wishlist/0", aliceToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("remove wishlist: %d %s", w.Code, w.Body.String())
	}
	w = call(t, h, "GET", "/api/users/"+alice+"/mutual-matches/"+bob, aliceToken, nil)
	var after transport.MutualMatchesResponse
	if err := json.NewDecoder(w.Body).Decode(&after); err != nil {
		t.Fatal(err)
	}
	if len(after.Matches) != 0 {
		t.Errorf("expected no matches after emptying the wishlist, got %+v", after.Matches)
	}
}

func TestRateLimitWithRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()

	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, Requests: 3, Window: 60}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	srv := NewServer(cfg, zap.NewNop(), newTestDB(t), client, nil)
	defer srv.Close()

	// health shares the caller's bucket
	w := call(t, srv.Handler, "GET", "/health", "", nil)
	if !strings.Contains(w.Body.String(), `"redis":{"status":"up"}`) {
		t.Errorf("redis health missing: %s", w.Body.String())
	}

	body := map[string]interface{}{"price1": 10, "price2": 11}
	for i := 0; i < 2; i++ {
		if w := call(t, srv.Handler, "POST", "/api/fairness", "", body); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
	}
	if w := call(t, srv.Handler, "POST", "/api/fairness", "", body); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
}
