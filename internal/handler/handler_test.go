package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"wallet-custody-service/internal/auth"
	"wallet-custody-service/internal/crypto"
	"wallet-custody-service/internal/domain"
	"wallet-custody-service/internal/middleware"
	"wallet-custody-service/internal/usecase"
	"wallet-custody-service/pkg/httputil"
)

const (
	aliceID = "5f0c7a8e-1d2b-4c3a-9e8f-0a1b2c3d4e5f"
	bobID   = "7a1e2f3d-4c5b-4a69-8b7c-6d5e4f3a2b1c"

	validRecipient = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
)

// mockIdentityRepository はテスト用のインメモリリポジトリ。
type mockIdentityRepository struct {
	mu     sync.Mutex
	byID   map[string]*domain.Identity
	nextID int
}

func newMockIdentityRepository() *mockIdentityRepository {
	return &mockIdentityRepository{byID: make(map[string]*domain.Identity)}
}

func (m *mockIdentityRepository) FindByUsername(ctx context.Context, username string) (*domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, identity := range m.byID {
		if identity.Username == username {
			copied := *identity
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *mockIdentityRepository) FindByID(ctx context.Context, id string) (*domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	copied := *identity
	return &copied, nil
}

func (m *mockIdentityRepository) Create(ctx context.Context, identity *domain.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Username == identity.Username {
			return domain.ErrDuplicateIdentity
		}
	}
	m.nextID++
	identity.ID = fmt.Sprintf("00000000-0000-4000-8000-%012d", m.nextID)
	identity.CreatedAt = time.Now()
	copied := *identity
	m.byID[identity.ID] = &copied
	return nil
}

// mockWalletRepository はテスト用のインメモリリポジトリ。検索は常に所有者で絞り込む。
type mockWalletRepository struct {
	mu      sync.Mutex
	wallets map[string]*domain.WalletRecord
	nextID  int
}

func newMockWalletRepository() *mockWalletRepository {
	return &mockWalletRepository{wallets: make(map[string]*domain.WalletRecord)}
}

func (m *mockWalletRepository) Create(ctx context.Context, wallet *domain.WalletRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	if wallet.ID == "" {
		wallet.ID = fmt.Sprintf("11111111-0000-4000-8000-%012d", m.nextID)
	}
	wallet.CreatedAt = time.Date(2024, 1, 1, 0, 0, m.nextID, 0, time.UTC)
	m.wallets[wallet.ID] = wallet
	return nil
}

func (m *mockWalletRepository) FindByIDAndOwnerID(ctx context.Context, id, ownerID string) (*domain.WalletRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wallet, ok := m.wallets[id]
	if !ok || wallet.OwnerID != ownerID {
		return nil, nil
	}
	return wallet, nil
}

func (m *mockWalletRepository) FindAllByOwnerID(ctx context.Context, ownerID string) ([]*domain.WalletRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var wallets []*domain.WalletRecord
	for _, wallet := range m.wallets {
		if wallet.OwnerID == ownerID {
			wallets = append(wallets, wallet)
		}
	}
	sort.Slice(wallets, func(i, j int) bool {
		return wallets[i].CreatedAt.Before(wallets[j].CreatedAt)
	})
	return wallets, nil
}

// mockBlockchain はテスト用のブロックチェーン。
type mockBlockchain struct {
	mu           sync.Mutex
	generated    int
	balance      string
	balanceErr   error
	submitErr    error
	submitCalls  int
	history      []*domain.TransferRecord
	historyErr   error
	historyCalls int
	lastLimit    int
}

func (m *mockBlockchain) GenerateKeyPair(ctx context.Context) (*domain.KeyPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generated++
	return &domain.KeyPair{
		Address:    fmt.Sprintf("0x%040x", m.generated),
		PrivateKey: bytes.Repeat([]byte{byte(m.generated)}, 32),
	}, nil
}

func (m *mockBlockchain) GetBalance(ctx context.Context, address string) (string, error) {
	return m.balance, m.balanceErr
}

func (m *mockBlockchain) SubmitTransfer(ctx context.Context, privateKey []byte, toAddress string, amount decimal.Decimal) (*domain.TransferResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitCalls++
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	return &domain.TransferResult{
		Hash:  "0xabc123",
		From:  fmt.Sprintf("0x%040x", privateKey[0]),
		To:    toAddress,
		Value: amount.String(),
	}, nil
}

func (m *mockBlockchain) GetHistory(ctx context.Context, address string, limit int) ([]*domain.TransferRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.historyCalls++
	m.lastLimit = limit
	if m.historyErr != nil {
		return nil, m.historyErr
	}
	return m.history, nil
}

func (m *mockBlockchain) IsValidAddress(address string) bool {
	return addressRegex.MatchString(address)
}

// testEnv は実サービスとモックリポジトリで構成したハンドラ一式。
type testEnv struct {
	identities *mockIdentityRepository
	wallets    *mockWalletRepository
	chain      *mockBlockchain
	authSvc    *usecase.AuthService
	walletSvc  *usecase.WalletService
	authH      *AuthHandler
	walletH    *WalletHandler
}

func setupHandlers(t *testing.T) *testEnv {
	t.Helper()

	tokens, err := auth.NewTokenManager([]byte("handler-test-signing-secret"), time.Hour)
	if err != nil {
		t.Fatalf("failed to create token manager: %v", err)
	}
	hasher, err := auth.NewBcryptHasher(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to create hasher: %v", err)
	}
	sealer, err := crypto.NewKeySealer([]byte("handler-test-wallet-secret"))
	if err != nil {
		t.Fatalf("failed to create sealer: %v", err)
	}

	env := &testEnv{
		identities: newMockIdentityRepository(),
		wallets:    newMockWalletRepository(),
		chain:      &mockBlockchain{balance: "1.5"},
	}
	env.authSvc, err = usecase.NewAuthService(env.identities, tokens, hasher)
	if err != nil {
		t.Fatalf("failed to create auth service: %v", err)
	}
	env.walletSvc = usecase.NewWalletService(env.wallets, env.chain, sealer, usecase.WalletOptions{
		Network:      "sepolia",
		ChainTimeout: time.Second,
	})
	env.authH = NewAuthHandler(env.authSvc)
	env.walletH = NewWalletHandler(env.walletSvc)
	return env
}

// createWallet はサービス経由でownerのウォレットを作成しIDを返す。
func (e *testEnv) createWallet(t *testing.T, ownerID string) string {
	t.Helper()
	wallet, err := e.walletSvc.CreateWallet(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("failed to create wallet: %v", err)
	}
	return wallet.ID
}

// newRequest はchiのルートパラメータと呼び出し元IDを設定したリクエストを生成する。
func newRequest(method, target string, body any, callerID string, params map[string]string) *http.Request {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)

	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	if callerID != "" {
		ctx = middleware.WithCallerID(ctx, callerID)
	}
	return req.WithContext(ctx)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dst); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, wantStatus int, wantCode string) {
	t.Helper()
	if rec.Code != wantStatus {
		t.Fatalf("want status %d, got %d (body: %s)", wantStatus, rec.Code, rec.Body.String())
	}
	var body httputil.ErrorResponse
	decodeBody(t, rec, &body)
	if body.Code != wantCode {
		t.Errorf("want error code %s, got %s", wantCode, body.Code)
	}
}
