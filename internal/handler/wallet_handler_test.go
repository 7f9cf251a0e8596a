package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"wallet-custody-service/internal/domain"
)

func TestWalletHandler_CreateWallet_Success(t *testing.T) {
	env := setupHandlers(t)

	rec := httptest.NewRecorder()
	env.walletH.CreateWallet(rec, newRequest(http.MethodPost, "/v1/wallets", nil, aliceID, nil))

	if rec.Code != http.StatusCreated {
		t.Fatalf("want status %d, got %d (body: %s)", http.StatusCreated, rec.Code, rec.Body.String())
	}
	var resp WalletResponse
	decodeBody(t, rec, &resp)
	if !addressRegex.MatchString(resp.Address) {
		t.Errorf("want valid address, got %s", resp.Address)
	}
	if resp.Network != "sepolia" {
		t.Errorf("want network sepolia, got %s", resp.Network)
	}
	if strings.Contains(rec.Body.String(), "sealed") || strings.Contains(rec.Body.String(), "ciphertext") {
		t.Errorf("response must not expose key material: %s", rec.Body.String())
	}
}

func TestWalletHandler_CreateWallet_Unauthenticated(t *testing.T) {
	env := setupHandlers(t)

	rec := httptest.NewRecorder()
	env.walletH.CreateWallet(rec, newRequest(http.MethodPost, "/v1/wallets", nil, "", nil))

	assertError(t, rec, http.StatusUnauthorized, "UNAUTHENTICATED")
	if env.chain.generated != 0 {
		t.Errorf("want no key generation, got %d", env.chain.generated)
	}
}

func TestWalletHandler_ListWallets_OnlyOwn(t *testing.T) {
	env := setupHandlers(t)
	first := env.createWallet(t, aliceID)
	second := env.createWallet(t, aliceID)
	env.createWallet(t, bobID)

	rec := httptest.NewRecorder()
	env.walletH.ListWallets(rec, newRequest(http.MethodGet, "/v1/wallets", nil, aliceID, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("want status %d, got %d", http.StatusOK, rec.Code)
	}
	var resp WalletListResponse
	decodeBody(t, rec, &resp)
	if len(resp.Wallets) != 2 {
		t.Fatalf("want 2 wallets, got %d", len(resp.Wallets))
	}
	if resp.Wallets[0].ID != first || resp.Wallets[1].ID != second {
		t.Errorf("want [%s %s], got [%s %s]", first, second, resp.Wallets[0].ID, resp.Wallets[1].ID)
	}
}

func TestWalletHandler_ListWallets_Empty(t *testing.T) {
	env := setupHandlers(t)

	rec := httptest.NewRecorder()
	env.walletH.ListWallets(rec, newRequest(http.MethodGet, "/v1/wallets", nil, aliceID, nil))

	if !strings.Contains(rec.Body.String(), `"wallets":[]`) {
		t.Errorf("want empty array, got %s", rec.Body.String())
	}
}

func TestWalletHandler_GetBalance_Success(t *testing.T) {
	env := setupHandlers(t)
	walletID := env.createWallet(t, aliceID)

	rec := httptest.NewRecorder()
	env.walletH.GetBalance(rec, newRequest(http.MethodGet, "/v1/wallets/"+walletID+"/balance", nil, aliceID, map[string]string{"wallet_id": walletID}))

	if rec.Code != http.StatusOK {
		t.Fatalf("want status %d, got %d", http.StatusOK, rec.Code)
	}
	var resp BalanceResponse
	decodeBody(t, rec, &resp)
	if resp.Balance != "1.5" {
		t.Errorf("want balance 1.5, got %s", resp.Balance)
	}
}

func TestWalletHandler_GetBalance_NetworkFailureReportsZero(t *testing.T) {
	env := setupHandlers(t)
	env.chain.balanceErr = errors.New("rpc unreachable")
	walletID := env.createWallet(t, aliceID)

	rec := httptest.NewRecorder()
	env.walletH.GetBalance(rec, newRequest(http.MethodGet, "/v1/wallets/"+walletID+"/balance", nil, aliceID, map[string]string{"wallet_id": walletID}))

	if rec.Code != http.StatusOK {
		t.Fatalf("want status %d, got %d", http.StatusOK, rec.Code)
	}
	var resp BalanceResponse
	decodeBody(t, rec, &resp)
	if resp.Balance != "0" {
		t.Errorf("want balance 0, got %s", resp.Balance)
	}
}

func TestWalletHandler_GetBalance_OtherOwnerLooksMissing(t *testing.T) {
	env := setupHandlers(t)
	walletID := env.createWallet(t, aliceID)
	missingID := "22222222-0000-4000-8000-000000000000"

	foreign := httptest.NewRecorder()
	env.walletH.GetBalance(foreign, newRequest(http.MethodGet, "/", nil, bobID, map[string]string{"wallet_id": walletID}))
	missing := httptest.NewRecorder()
	env.walletH.GetBalance(missing, newRequest(http.MethodGet, "/", nil, bobID, map[string]string{"wallet_id": missingID}))

	if foreign.Body.String() != missing.Body.String() {
		t.Errorf("want identical bodies, got %q and %q", foreign.Body.String(), missing.Body.String())
	}
	assertError(t, foreign, http.StatusNotFound, "WALLET_NOT_FOUND")
}

func TestWalletHandler_GetBalance_InvalidWalletID(t *testing.T) {
	env := setupHandlers(t)

	rec := httptest.NewRecorder()
	env.walletH.GetBalance(rec, newRequest(http.MethodGet, "/", nil, aliceID, map[string]string{"wallet_id": "not-a-uuid"}))

	assertError(t, rec, http.StatusBadRequest, "INVALID_WALLET_ID")
}

func TestWalletHandler_SendFunds_Success(t *testing.T) {
	env := setupHandlers(t)
	walletID := env.createWallet(t, aliceID)

	body := map[string]any{"toAddress": validRecipient, "amount": "0.25"}
	rec := httptest.NewRecorder()
	env.walletH.SendFunds(rec, newRequest(http.MethodPost, "/", body, aliceID, map[string]string{"wallet_id": walletID}))

	if rec.Code != http.StatusCreated {
		t.Fatalf("want status %d, got %d (body: %s)", http.StatusCreated, rec.Code, rec.Body.String())
	}
	var resp TransferResponse
	decodeBody(t, rec, &resp)
	if resp.To != validRecipient {
		t.Errorf("want to %s, got %s", validRecipient, resp.To)
	}
	if resp.Value != "0.25" {
		t.Errorf("want value 0.25, got %s", resp.Value)
	}
	if resp.From != "0x0000000000000000000000000000000000000001" {
		t.Errorf("want transfer signed with the wallet's own key, got from %s", resp.From)
	}
}

func TestWalletHandler_SendFunds_NumericAmount(t *testing.T) {
	env := setupHandlers(t)
	walletID := env.createWallet(t, aliceID)

	body := map[string]any{"toAddress": validRecipient, "amount": 1.5}
	rec := httptest.NewRecorder()
	env.walletH.SendFunds(rec, newRequest(http.MethodPost, "/", body, aliceID, map[string]string{"wallet_id": walletID}))

	if rec.Code != http.StatusCreated {
		t.Fatalf("want status %d, got %d (body: %s)", http.StatusCreated, rec.Code, rec.Body.String())
	}
}

func TestWalletHandler_SendFunds_OtherOwner(t *testing.T) {
	env := setupHandlers(t)
	walletID := env.createWallet(t, aliceID)

	body := map[string]any{"toAddress": validRecipient, "amount": "0.1"}
	rec := httptest.NewRecorder()
	env.walletH.SendFunds(rec, newRequest(http.MethodPost, "/", body, bobID, map[string]string{"wallet_id": walletID}))

	assertError(t, rec, http.StatusNotFound, "WALLET_NOT_FOUND")
	if env.chain.submitCalls != 0 {
		t.Errorf("want no transfer, got %d", env.chain.submitCalls)
	}
}

func TestWalletHandler_SendFunds_Validation(t *testing.T) {
	tests := []struct {
		name     string
		body     any
		wantCode string
	}{
		{"invalid address", map[string]any{"toAddress": "not-an-address", "amount": "0.1"}, "INVALID_ADDRESS"},
		{"short address", map[string]any{"toAddress": "0x1234", "amount": "0.1"}, "INVALID_ADDRESS"},
		{"zero amount", map[string]any{"toAddress": validRecipient, "amount": "0"}, "INVALID_AMOUNT"},
		{"negative amount", map[string]any{"toAddress": validRecipient, "amount": "-1"}, "INVALID_AMOUNT"},
		{"missing amount", map[string]any{"toAddress": validRecipient}, "INVALID_AMOUNT"},
		{"too many decimals", map[string]any{"toAddress": validRecipient, "amount": "0.0000000000000000001"}, "INVALID_AMOUNT"},
		{"malformed amount", map[string]any{"toAddress": validRecipient, "amount": "abc"}, "INVALID_REQUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupHandlers(t)
			walletID := env.createWallet(t, aliceID)

			rec := httptest.NewRecorder()
			env.walletH.SendFunds(rec, newRequest(http.MethodPost, "/", tt.body, aliceID, map[string]string{"wallet_id": walletID}))

			assertError(t, rec, http.StatusBadRequest, tt.wantCode)
			if env.chain.submitCalls != 0 {
				t.Errorf("want no transfer, got %d", env.chain.submitCalls)
			}
		})
	}
}

func TestWalletHandler_SendFunds_TransferFailed(t *testing.T) {
	env := setupHandlers(t)
	env.chain.submitErr = errors.New("insufficient funds for gas")
	walletID := env.createWallet(t, aliceID)

	body := map[string]any{"toAddress": validRecipient, "amount": "0.1"}
	rec := httptest.NewRecorder()
	env.walletH.SendFunds(rec, newRequest(http.MethodPost, "/", body, aliceID, map[string]string{"wallet_id": walletID}))

	assertError(t, rec, http.StatusBadGateway, "TRANSFER_FAILED")
}

func TestWalletHandler_SendFunds_DecryptionFailedIsInternal(t *testing.T) {
	env := setupHandlers(t)
	walletID := env.createWallet(t, aliceID)
	env.wallets.wallets[walletID].SealedKey.AuthTag[0] ^= 0xff

	body := map[string]any{"toAddress": validRecipient, "amount": "0.1"}
	rec := httptest.NewRecorder()
	env.walletH.SendFunds(rec, newRequest(http.MethodPost, "/", body, aliceID, map[string]string{"wallet_id": walletID}))

	assertError(t, rec, http.StatusInternalServerError, "INTERNAL_ERROR")
	if env.chain.submitCalls != 0 {
		t.Errorf("want no transfer, got %d", env.chain.submitCalls)
	}
}

func TestWalletHandler_GetTransactions_Success(t *testing.T) {
	env := setupHandlers(t)
	walletID := env.createWallet(t, aliceID)
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	env.chain.history = []*domain.TransferRecord{
		{Hash: "0x01", From: validRecipient, To: validRecipient, Value: "0.5", Timestamp: ts, Status: domain.TransferStatusSuccess},
		{Hash: "0x02", From: validRecipient, To: validRecipient, Value: "1", Timestamp: ts, Status: domain.TransferStatusFailed},
	}

	rec := httptest.NewRecorder()
	env.walletH.GetTransactions(rec, newRequest(http.MethodGet, "/?limit=5", nil, aliceID, map[string]string{"wallet_id": walletID}))

	if rec.Code != http.StatusOK {
		t.Fatalf("want status %d, got %d (body: %s)", http.StatusOK, rec.Code, rec.Body.String())
	}
	var resp TransactionListResponse
	decodeBody(t, rec, &resp)
	if len(resp.Transactions) != 2 {
		t.Fatalf("want 2 transactions, got %d", len(resp.Transactions))
	}
	if resp.Transactions[1].Status != "failed" {
		t.Errorf("want status failed, got %s", resp.Transactions[1].Status)
	}
	if resp.Transactions[0].Timestamp != "2024-03-01T12:00:00Z" {
		t.Errorf("want RFC3339 timestamp, got %s", resp.Transactions[0].Timestamp)
	}
	if env.chain.lastLimit != 5 {
		t.Errorf("want limit 5, got %d", env.chain.lastLimit)
	}
}

func TestWalletHandler_GetTransactions_DefaultLimit(t *testing.T) {
	env := setupHandlers(t)
	walletID := env.createWallet(t, aliceID)

	rec := httptest.NewRecorder()
	env.walletH.GetTransactions(rec, newRequest(http.MethodGet, "/", nil, aliceID, map[string]string{"wallet_id": walletID}))

	if rec.Code != http.StatusOK {
		t.Fatalf("want status %d, got %d", http.StatusOK, rec.Code)
	}
	if env.chain.lastLimit != 10 {
		t.Errorf("want default limit 10, got %d", env.chain.lastLimit)
	}
	if !strings.Contains(rec.Body.String(), `"transactions":[]`) {
		t.Errorf("want empty array, got %s", rec.Body.String())
	}
}

func TestWalletHandler_GetTransactions_InvalidLimit(t *testing.T) {
	for _, limit := range []string{"0", "101", "-3", "ten"} {
		t.Run(limit, func(t *testing.T) {
			env := setupHandlers(t)
			walletID := env.createWallet(t, aliceID)

			rec := httptest.NewRecorder()
			env.walletH.GetTransactions(rec, newRequest(http.MethodGet, "/?limit="+limit, nil, aliceID, map[string]string{"wallet_id": walletID}))

			assertError(t, rec, http.StatusBadRequest, "INVALID_LIMIT")
			if env.chain.historyCalls != 0 {
				t.Errorf("want no history fetch, got %d", env.chain.historyCalls)
			}
		})
	}
}

func TestWalletHandler_GetTransactions_Unavailable(t *testing.T) {
	env := setupHandlers(t)
	env.chain.historyErr = errors.New("explorer down")
	walletID := env.createWallet(t, aliceID)

	rec := httptest.NewRecorder()
	env.walletH.GetTransactions(rec, newRequest(http.MethodGet, "/", nil, aliceID, map[string]string{"wallet_id": walletID}))

	assertError(t, rec, http.StatusBadGateway, "HISTORY_UNAVAILABLE")
}

func TestWalletHandler_GetTransactions_OtherOwner(t *testing.T) {
	env := setupHandlers(t)
	walletID := env.createWallet(t, aliceID)

	rec := httptest.NewRecorder()
	env.walletH.GetTransactions(rec, newRequest(http.MethodGet, "/", nil, bobID, map[string]string{"wallet_id": walletID}))

	assertError(t, rec, http.StatusNotFound, "WALLET_NOT_FOUND")
	if env.chain.historyCalls != 0 {
		t.Errorf("want no history fetch, got %d", env.chain.historyCalls)
	}
}
