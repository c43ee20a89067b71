package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/papertrade/internal/model"
	"github.com/rickgao/papertrade/internal/storage"
	"github.com/rickgao/papertrade/internal/version"
)

// TestNewClient tests client construction with various options.
func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("http://localhost:5000/")

		if c.baseURL != "http://localhost:5000" {
			t.Errorf("baseURL = %q, want %q", c.baseURL, "http://localhost:5000")
		}
		if c.Token() != "" {
			t.Errorf("Token() = %q, want empty", c.Token())
		}
		if c.httpClient.Timeout != 30*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 30*time.Second)
		}
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
	})

	t.Run("with timeout option", func(t *testing.T) {
		c := NewClient("http://localhost:5000", WithTimeout(5*time.Second))
		if c.httpClient.Timeout != 5*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 5*time.Second)
		}
	})

	t.Run("with logger option", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		c := NewClient("http://localhost:5000", WithLogger(logger))
		if c.logger != logger {
			t.Error("logger not set correctly")
		}
	})

	t.Run("nil logger keeps default", func(t *testing.T) {
		c := NewClient("http://localhost:5000", WithLogger(nil))
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
	})

	t.Run("with custom HTTP client", func(t *testing.T) {
		customClient := &http.Client{Timeout: 10 * time.Second}
		c := NewClient("http://localhost:5000", WithHTTPClient(customClient))
		if c.httpClient != customClient {
			t.Error("custom HTTP client not set")
		}
	})

	t.Run("with token option", func(t *testing.T) {
		c := NewClient("http://localhost:5000", WithToken("abc"))
		if c.Token() != "abc" {
			t.Errorf("Token() = %q, want %q", c.Token(), "abc")
		}
	})
}

// TestAPIError tests the APIError type.
func TestAPIError(t *testing.T) {
	t.Run("Error is the server message", func(t *testing.T) {
		err := &APIError{StatusCode: 400, Message: "Insufficient balance"}
		if err.Error() != "Insufficient balance" {
			t.Errorf("Error() = %q, want %q", err.Error(), "Insufficient balance")
		}
	})

	t.Run("taxonomy sentinels", func(t *testing.T) {
		tests := []struct {
			code         int
			unauthorized bool
			unavailable  bool
		}{
			{0, false, true},
			{400, false, false},
			{401, true, false},
			{403, true, false},
			{404, false, false},
			{500, false, false},
		}

		for _, tt := range tests {
			err := &APIError{StatusCode: tt.code, Message: "x"}
			if got := errors.Is(err, ErrUnauthorized); got != tt.unauthorized {
				t.Errorf("errors.Is(%d, ErrUnauthorized) = %v, want %v", tt.code, got, tt.unauthorized)
			}
			if got := errors.Is(err, ErrTransportUnavailable); got != tt.unavailable {
				t.Errorf("errors.Is(%d, ErrTransportUnavailable) = %v, want %v", tt.code, got, tt.unavailable)
			}
		}
	})

	t.Run("wraps transport cause", func(t *testing.T) {
		err := &APIError{Message: GenericErrorMessage, Err: context.Canceled}
		if !errors.Is(err, context.Canceled) {
			t.Error("expected errors.Is(err, context.Canceled)")
		}
	})
}

// TestDo tests the request/response behavior shared by all endpoints.
func TestDo(t *testing.T) {
	t.Run("sets headers", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Accept") != "application/json" {
				t.Errorf("Accept header = %q, want %q", r.Header.Get("Accept"), "application/json")
			}
			if r.Header.Get("Content-Type") != "application/json" {
				t.Errorf("Content-Type header = %q, want %q", r.Header.Get("Content-Type"), "application/json")
			}
			if r.Header.Get("Authorization") != "Bearer abc" {
				t.Errorf("Authorization header = %q, want %q", r.Header.Get("Authorization"), "Bearer abc")
			}
			if r.Header.Get("User-Agent") != version.UserAgent() {
				t.Errorf("User-Agent header = %q, want %q", r.Header.Get("User-Agent"), version.UserAgent())
			}
			if r.Header.Get("X-Request-ID") == "" {
				t.Error("X-Request-ID header should be set")
			}
			w.Write([]byte(`{"status":"ok"}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, WithToken("abc"))
		var out struct {
			Status string `json:"status"`
		}
		if err := c.Do(context.Background(), http.MethodPost, "/x", map[string]int{"a": 1}, &out); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.Status != "ok" {
			t.Errorf("Status = %q, want %q", out.Status, "ok")
		}
	})

	t.Run("no token and no body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "" {
				t.Errorf("Authorization header should be empty, got %q", r.Header.Get("Authorization"))
			}
			if r.Header.Get("Content-Type") != "" {
				t.Errorf("Content-Type header should be empty, got %q", r.Header.Get("Content-Type"))
			}
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		c := NewClient(server.URL)
		if err := c.Do(context.Background(), http.MethodGet, "/x", nil, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("server message becomes error text", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message":"invalid token"}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, WithToken("stale"))
		err := c.Do(context.Background(), http.MethodGet, "/me", nil, nil)
		if err == nil {
			t.Fatal("expected error")
		}
		apiErr, ok := err.(*APIError)
		if !ok {
			t.Fatalf("expected *APIError, got %T", err)
		}
		if apiErr.StatusCode != 401 {
			t.Errorf("StatusCode = %d, want 401", apiErr.StatusCode)
		}
		if err.Error() != "invalid token" {
			t.Errorf("Error() = %q, want %q", err.Error(), "invalid token")
		}
		if !errors.Is(err, ErrUnauthorized) {
			t.Error("expected errors.Is(err, ErrUnauthorized)")
		}
	})

	t.Run("body without message", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"boom"}`))
		}))
		defer server.Close()

		c := NewClient(server.URL)
		err := c.Do(context.Background(), http.MethodGet, "/x", nil, nil)
		if err == nil || err.Error() != "request failed with status 500" {
			t.Errorf("error = %v, want %q", err, "request failed with status 500")
		}
	})

	t.Run("unparseable error body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`<html>bad gateway</html>`))
		}))
		defer server.Close()

		c := NewClient(server.URL)
		err := c.Do(context.Background(), http.MethodGet, "/x", nil, nil)
		if err == nil || err.Error() != GenericErrorMessage {
			t.Errorf("error = %v, want %q", err, GenericErrorMessage)
		}
		apiErr, ok := err.(*APIError)
		if !ok {
			t.Fatalf("expected *APIError, got %T", err)
		}
		if string(apiErr.Body) != `<html>bad gateway</html>` {
			t.Errorf("Body = %q", apiErr.Body)
		}
	})

	t.Run("unreachable host", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		c := NewClient(url)
		err := c.Do(context.Background(), http.MethodGet, "/x", nil, nil)
		if err == nil {
			t.Fatal("expected error")
		}
		if err.Error() != GenericErrorMessage {
			t.Errorf("Error() = %q, want %q", err.Error(), GenericErrorMessage)
		}
		if !errors.Is(err, ErrTransportUnavailable) {
			t.Error("expected errors.Is(err, ErrTransportUnavailable)")
		}
	})

	t.Run("does not retry", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"message":"busy"}`))
		}))
		defer server.Close()

		c := NewClient(server.URL)
		_ = c.Do(context.Background(), http.MethodGet, "/x", nil, nil)
		if attempts.Load() != 1 {
			t.Errorf("attempts = %d, want 1", attempts.Load())
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(time.Second)
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(50 * time.Millisecond)
			cancel()
		}()

		c := NewClient(server.URL)
		err := c.Do(ctx, http.MethodGet, "/x", nil, nil)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	})

	t.Run("decode failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`[1,2,3]`))
		}))
		defer server.Close()

		c := NewClient(server.URL)
		var out model.User
		err := c.Do(context.Background(), http.MethodGet, "/me", nil, &out)
		if err == nil || !strings.Contains(err.Error(), "decode response") {
			t.Errorf("error = %v, want decode response error", err)
		}
	})

	t.Run("empty success body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		c := NewClient(server.URL)
		p, err := c.GetPrice(context.Background(), "BTC")
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("error = %v, want io.ErrUnexpectedEOF", err)
		}
		if p != nil {
			t.Errorf("price = %+v, want nil", p)
		}

		if err := c.Do(context.Background(), http.MethodPost, "/x", nil, nil); err != nil {
			t.Errorf("Do without result: %v", err)
		}
	})
}

func TestTokenPersistence(t *testing.T) {
	ctx := context.Background()

	t.Run("set persists and empty clears", func(t *testing.T) {
		store := storage.NewMemoryStore()
		c := NewClient("http://localhost:5000", WithTokenStore(store))

		if err := c.SetToken(ctx, "abc"); err != nil {
			t.Fatalf("SetToken: %v", err)
		}
		got, err := store.Get(ctx, TokenKey)
		if err != nil || got != "abc" {
			t.Errorf("stored token = %q, %v; want %q", got, err, "abc")
		}

		if err := c.SetToken(ctx, ""); err != nil {
			t.Fatalf("SetToken(\"\"): %v", err)
		}
		if _, err := store.Get(ctx, TokenKey); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Get after clear error = %v, want ErrNotFound", err)
		}
		if c.Token() != "" {
			t.Errorf("Token() = %q, want empty", c.Token())
		}
	})

	t.Run("load installs persisted token", func(t *testing.T) {
		store := storage.NewMemoryStore()
		store.Set(ctx, TokenKey, "persisted")
		c := NewClient("http://localhost:5000", WithTokenStore(store))

		token, err := c.LoadToken(ctx)
		if err != nil {
			t.Fatalf("LoadToken: %v", err)
		}
		if token != "persisted" || c.Token() != "persisted" {
			t.Errorf("token = %q, Token() = %q; want %q", token, c.Token(), "persisted")
		}
	})

	t.Run("load with nothing persisted", func(t *testing.T) {
		c := NewClient("http://localhost:5000", WithTokenStore(storage.NewMemoryStore()))
		token, err := c.LoadToken(ctx)
		if err != nil || token != "" {
			t.Errorf("LoadToken = %q, %v; want empty, nil", token, err)
		}
	})
}

func TestAuthEndpoints(t *testing.T) {
	t.Run("login does not install token", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != "/login" {
				t.Errorf("request = %s %s, want POST /login", r.Method, r.URL.Path)
			}
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			if body["email"] != "a@b.c" || body["password"] != "pw" {
				t.Errorf("body = %v", body)
			}
			w.Write([]byte(`{"token":"abc","message":"ok"}`))
		}))
		defer server.Close()

		c := NewClient(server.URL)
		token, err := c.Login(context.Background(), "a@b.c", "pw")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if token != "abc" {
			t.Errorf("token = %q, want %q", token, "abc")
		}
		if c.Token() != "" {
			t.Errorf("Token() = %q, want empty", c.Token())
		}
	})

	t.Run("login without token in response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"message":"ok"}`))
		}))
		defer server.Close()

		c := NewClient(server.URL)
		if _, err := c.Login(context.Background(), "a@b.c", "pw"); !errors.Is(err, ErrMissingToken) {
			t.Errorf("error = %v, want ErrMissingToken", err)
		}
	})

	t.Run("me with explicit token", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer fresh" {
				t.Errorf("Authorization header = %q, want %q", r.Header.Get("Authorization"), "Bearer fresh")
			}
			w.Write([]byte(`{"id":7,"email":"a@b.c","first_name":"Ada","balance":10000}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, WithToken("old"))
		user, err := c.MeWithToken(context.Background(), "fresh")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.ID != 7 || user.FirstName != "Ada" {
			t.Errorf("user = %+v", user)
		}
		if user.Balance == nil || !user.Balance.Equal(decimal.NewFromInt(10000)) {
			t.Errorf("Balance = %v, want 10000", user.Balance)
		}
	})

	t.Run("update profile sends only set fields", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPut {
				t.Errorf("Method = %s, want PUT", r.Method)
			}
			data, _ := io.ReadAll(r.Body)
			if string(data) != `{"bio":"hodl"}` {
				t.Errorf("body = %s, want %s", data, `{"bio":"hodl"}`)
			}
			w.Write([]byte(`{"message":"Profile updated"}`))
		}))
		defer server.Close()

		bio := "hodl"
		c := NewClient(server.URL, WithToken("abc"))
		msg, err := c.UpdateProfile(context.Background(), model.ProfileUpdate{Bio: &bio})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if msg != "Profile updated" {
			t.Errorf("message = %q", msg)
		}
	})
}

func TestPriceEndpoints(t *testing.T) {
	t.Run("get price", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/price" || r.URL.Query().Get("symbol") != "BTC" {
				t.Errorf("request = %s, want /price?symbol=BTC", r.URL)
			}
			w.Write([]byte(`{"price":45000,"change_24h":1.2}`))
		}))
		defer server.Close()

		c := NewClient(server.URL)
		price, err := c.GetPrice(context.Background(), "btc")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if price.Symbol != "BTC" {
			t.Errorf("Symbol = %q, want BTC", price.Symbol)
		}
		if !price.Price.Equal(decimal.NewFromInt(45000)) {
			t.Errorf("Price = %s, want 45000", price.Price)
		}
		if !price.Change24h.Equal(decimal.RequireFromString("1.2")) {
			t.Errorf("Change24h = %s, want 1.2", price.Change24h)
		}
	})

	t.Run("get price without symbol", func(t *testing.T) {
		c := NewClient("http://localhost:5000")
		if _, err := c.GetPrice(context.Background(), ""); !errors.Is(err, ErrMissingSymbol) {
			t.Errorf("error = %v, want ErrMissingSymbol", err)
		}
	})

	t.Run("bulk prices", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("symbols") != "BTC,ETH" {
				t.Errorf("symbols = %q, want BTC,ETH", r.URL.Query().Get("symbols"))
			}
			w.Write([]byte(`[{"symbol":"BTC","price":45000},{"symbol":"ETH","price":3000}]`))
		}))
		defer server.Close()

		c := NewClient(server.URL)
		prices, err := c.GetBulkPrices(context.Background(), []string{"btc", "eth"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(prices) != 2 || prices[1].Symbol != "ETH" {
			t.Errorf("prices = %+v", prices)
		}
	})

	t.Run("coin history range", func(t *testing.T) {
		start := time.Unix(1700000000, 0)
		end := time.Unix(1700086400, 0)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if q.Get("start") != "1700000000" || q.Get("end") != "1700086400" || q.Get("symbol") != "ETH" {
				t.Errorf("query = %s", r.URL.RawQuery)
			}
			w.Write([]byte(`{"history":[{"timestamp":1700000000,"price":3000}]}`))
		}))
		defer server.Close()

		c := NewClient(server.URL)
		points, err := c.GetCoinHistory(context.Background(), "eth", start, end)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(points) != 1 || points[0].Timestamp != 1700000000 {
			t.Errorf("points = %+v", points)
		}
	})
}

func TestTradingEndpoints(t *testing.T) {
	t.Run("buy sends numeric quantity", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/buy" {
				t.Errorf("Path = %s, want /buy", r.URL.Path)
			}
			data, _ := io.ReadAll(r.Body)
			want := `{"user_id":7,"symbol":"BTC","quantity":0.5}`
			if string(data) != want {
				t.Errorf("body = %s, want %s", data, want)
			}
			w.Write([]byte(`{"message":"Bought 0.5 BTC","price":45000}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, WithToken("abc"))
		result, err := c.Buy(context.Background(), OrderRequest{
			UserID:   7,
			Symbol:   "btc",
			Quantity: decimal.RequireFromString("0.5"),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Message != "Bought 0.5 BTC" {
			t.Errorf("Message = %q", result.Message)
		}
	})

	t.Run("sell rejected by server", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"message":"Insufficient holdings"}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, WithToken("abc"))
		_, err := c.Sell(context.Background(), OrderRequest{UserID: 7, Symbol: "BTC", Quantity: decimal.NewFromInt(1)})
		if err == nil || err.Error() != "Insufficient holdings" {
			t.Errorf("error = %v, want %q", err, "Insufficient holdings")
		}
	})

	t.Run("non-positive quantity", func(t *testing.T) {
		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
		}))
		defer server.Close()

		c := NewClient(server.URL)
		_, err := c.Buy(context.Background(), OrderRequest{UserID: 7, Symbol: "BTC", Quantity: decimal.Zero})
		if !errors.Is(err, ErrInvalidQuantity) {
			t.Errorf("error = %v, want ErrInvalidQuantity", err)
		}
		if hits.Load() != 0 {
			t.Errorf("server hits = %d, want 0", hits.Load())
		}
	})

	t.Run("orders and active trades", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("user_id") != "7" {
				t.Errorf("user_id = %q, want 7", r.URL.Query().Get("user_id"))
			}
			switch r.URL.Path {
			case "/orders":
				w.Write([]byte(`[{"id":"o1","symbol":"BTC","side":"buy","amount":0.5,"price":45000,"type":"market","status":"filled","createdAt":"2024-01-01T00:00:00Z"}]`))
			case "/active-trades":
				w.Write([]byte(`{"active_trades":3}`))
			default:
				t.Errorf("unexpected path %s", r.URL.Path)
			}
		}))
		defer server.Close()

		c := NewClient(server.URL)
		orders, err := c.GetOrders(context.Background(), 7)
		if err != nil {
			t.Fatalf("GetOrders: %v", err)
		}
		if len(orders) != 1 || orders[0].Side != model.SideBuy || orders[0].Status != "filled" {
			t.Errorf("orders = %+v", orders)
		}

		n, err := c.GetActiveTrades(context.Background(), 7)
		if err != nil {
			t.Fatalf("GetActiveTrades: %v", err)
		}
		if n != 3 {
			t.Errorf("active trades = %d, want 3", n)
		}
	})

	t.Run("pnl report", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"holdings_pnl":[{"symbol":"BTC","pnl":120.5}],"total_pnl":120.5}`))
		}))
		defer server.Close()

		c := NewClient(server.URL)
		report, err := c.GetPnL(context.Background(), 7)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(report.Holdings) != 1 || !report.TotalPnL.Equal(decimal.RequireFromString("120.5")) {
			t.Errorf("report = %+v", report)
		}
	})
}
