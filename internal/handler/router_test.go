package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"wallet-custody-service/internal/middleware"
)

func newTestRouter(t *testing.T, limiter *middleware.MapLimiter) (http.Handler, *testEnv) {
	t.Helper()
	return newTestRouterWithOptions(t, RouterOptions{Limiter: limiter})
}

func newTestRouterWithOptions(t *testing.T, opts RouterOptions) (http.Handler, *testEnv) {
	t.Helper()
	env := setupHandlers(t)
	opts.Verifier = env.authSvc
	return NewRouter(env.authH, env.walletH, opts), env
}

// loginFrom は指定の接続元アドレスとX-Forwarded-Forでログインを試みる。
func loginFrom(h http.Handler, remoteAddr, forwardedFor string) *httptest.ResponseRecorder {
	body := strings.NewReader(`{"username":"alice","password":"secret123"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", body)
	req.RemoteAddr = remoteAddr
	req.Header.Set("X-Forwarded-For", forwardedFor)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func registerUser(t *testing.T, h http.Handler, username string) AuthResponse {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/v1/auth/register", "", CredentialsRequest{Username: username, Password: "secret123"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("want status %d, got %d (body: %s)", http.StatusCreated, rec.Code, rec.Body.String())
	}
	var resp AuthResponse
	decodeBody(t, rec, &resp)
	return resp
}

func TestRouter_Health(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := doJSON(t, router, http.MethodGet, "/health", "", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("want status %d, got %d", http.StatusOK, rec.Code)
	}
	var resp HealthResponse
	decodeBody(t, rec, &resp)
	if resp.Status != "OK" {
		t.Errorf("want status OK, got %s", resp.Status)
	}
}

func TestRouter_Metrics(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := doJSON(t, router, http.MethodGet, "/metrics", "", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("want status %d, got %d", http.StatusOK, rec.Code)
	}
}

func TestRouter_WalletsRequireAuth(t *testing.T) {
	router, env := newTestRouter(t, nil)

	rec := doJSON(t, router, http.MethodPost, "/v1/wallets", "", nil)
	assertError(t, rec, http.StatusUnauthorized, "UNAUTHENTICATED")

	rec = doJSON(t, router, http.MethodPost, "/v1/wallets", "not-a-token", nil)
	assertError(t, rec, http.StatusUnauthorized, "INVALID_TOKEN")

	if env.chain.generated != 0 {
		t.Errorf("want no key generation, got %d", env.chain.generated)
	}
}

func TestRouter_EndToEnd(t *testing.T) {
	router, env := newTestRouter(t, nil)
	alice := registerUser(t, router, "alice")
	bob := registerUser(t, router, "bob")

	rec := doJSON(t, router, http.MethodGet, "/v1/me", alice.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("want status %d, got %d", http.StatusOK, rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/wallets", alice.Token, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("want status %d, got %d (body: %s)", http.StatusCreated, rec.Code, rec.Body.String())
	}
	var wallet WalletResponse
	decodeBody(t, rec, &wallet)

	rec = doJSON(t, router, http.MethodGet, "/v1/wallets/"+wallet.ID+"/balance", alice.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("want status %d, got %d", http.StatusOK, rec.Code)
	}

	transfer := map[string]any{"toAddress": validRecipient, "amount": "0.1"}
	rec = doJSON(t, router, http.MethodPost, "/v1/wallets/"+wallet.ID+"/transfers", bob.Token, transfer)
	assertError(t, rec, http.StatusNotFound, "WALLET_NOT_FOUND")
	if env.chain.submitCalls != 0 {
		t.Fatalf("want no transfer for non-owner, got %d", env.chain.submitCalls)
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/wallets/"+wallet.ID+"/transfers", alice.Token, transfer)
	if rec.Code != http.StatusCreated {
		t.Fatalf("want status %d, got %d (body: %s)", http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/v1/wallets/"+wallet.ID+"/transactions?limit=3", alice.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("want status %d, got %d", http.StatusOK, rec.Code)
	}
	if env.chain.lastLimit != 3 {
		t.Errorf("want limit 3, got %d", env.chain.lastLimit)
	}

	rec = doJSON(t, router, http.MethodGet, "/v1/wallets", bob.Token, nil)
	var list WalletListResponse
	decodeBody(t, rec, &list)
	if len(list.Wallets) != 0 {
		t.Errorf("want no wallets for bob, got %d", len(list.Wallets))
	}
}

func TestRouter_RateLimited(t *testing.T) {
	router, _ := newTestRouter(t, middleware.NewMapLimiter(1, 2, 0))

	for i := 0; i < 2; i++ {
		rec := doJSON(t, router, http.MethodPost, "/v1/auth/login", "", CredentialsRequest{Username: "alice", Password: "secret123"})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("request %d: want status %d, got %d", i, http.StatusUnauthorized, rec.Code)
		}
	}

	rec := doJSON(t, router, http.MethodPost, "/v1/auth/login", "", CredentialsRequest{Username: "alice", Password: "secret123"})
	assertError(t, rec, http.StatusTooManyRequests, "RATE_LIMITED")
	if rec.Header().Get("Retry-After") == "" {
		t.Error("want Retry-After header")
	}

	health := doJSON(t, router, http.MethodGet, "/health", "", nil)
	if health.Code != http.StatusOK {
		t.Errorf("want health unaffected by rate limit, got %d", health.Code)
	}
}

func TestRouter_RateLimitIgnoresForwardedForByDefault(t *testing.T) {
	router, _ := newTestRouter(t, middleware.NewMapLimiter(1, 2, 0))

	codes := make([]int, 5)
	for i := range codes {
		codes[i] = loginFrom(router, "198.51.100.7:40000", fmt.Sprintf("203.0.113.%d", i+1)).Code
	}

	for i, code := range codes[:2] {
		if code == http.StatusTooManyRequests {
			t.Errorf("request %d: want within burst, got %d", i, code)
		}
	}
	for i, code := range codes[2:] {
		if code != http.StatusTooManyRequests {
			t.Errorf("request %d: want status %d, got %d", i+2, http.StatusTooManyRequests, code)
		}
	}
}

func TestRouter_RateLimitUsesForwardedForWhenTrusted(t *testing.T) {
	router, _ := newTestRouterWithOptions(t, RouterOptions{
		Limiter:           middleware.NewMapLimiter(1, 2, 0),
		TrustProxyHeaders: true,
	})

	for i := 0; i < 5; i++ {
		rec := loginFrom(router, "10.0.0.1:40000", fmt.Sprintf("203.0.113.%d", i+1))
		if rec.Code == http.StatusTooManyRequests {
			t.Errorf("request %d: want distinct clients behind proxy, got %d", i, rec.Code)
		}
	}
}
