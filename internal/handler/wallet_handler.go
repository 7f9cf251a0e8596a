package handler

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"wallet-custody-service/internal/domain"
	"wallet-custody-service/internal/middleware"
	"wallet-custody-service/internal/usecase"
	"wallet-custody-service/pkg/httputil"
)

const (
	maxHistoryLimit  = 100
	maxAmountDecimal = 18
)

var addressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// WalletHandler はウォレット操作のHTTPハンドラを提供する。
type WalletHandler struct {
	service *usecase.WalletService
}

// NewWalletHandler は新しいWalletHandlerを生成する。
func NewWalletHandler(service *usecase.WalletService) *WalletHandler {
	return &WalletHandler{service: service}
}

// WalletResponse はウォレット公開情報のレスポンス形式。
type WalletResponse struct {
	ID        string `json:"id"`
	Address   string `json:"address"`
	Network   string `json:"network"`
	CreatedAt string `json:"createdAt"`
}

// WalletListResponse はウォレット一覧のレスポンス形式。
type WalletListResponse struct {
	Wallets []WalletResponse `json:"wallets"`
}

// BalanceResponse は残高のレスポンス形式。
type BalanceResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
	Network string `json:"network"`
}

// TransferRequest は送金のリクエスト形式。amountはether単位（数値・文字列どちらも可）。
type TransferRequest struct {
	ToAddress string          `json:"toAddress"`
	Amount    decimal.Decimal `json:"amount"`
}

// TransferResponse は送金レシートのレスポンス形式。
type TransferResponse struct {
	Hash  string `json:"hash"`
	From  string `json:"from"`
	To    string `json:"to"`
	Value string `json:"value"`
}

// TransactionResponse は取引履歴1件のレスポンス形式。
type TransactionResponse struct {
	Hash      string `json:"hash"`
	From      string `json:"from"`
	To        string `json:"to"`
	Value     string `json:"value"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
}

// TransactionListResponse は取引履歴のレスポンス形式。
type TransactionListResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
}

func toWalletResponse(w *domain.WalletSummary) WalletResponse {
	return WalletResponse{
		ID:        w.ID,
		Address:   w.Address,
		Network:   w.Network,
		CreatedAt: w.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func validateWalletID(walletID string) error {
	if _, err := uuid.Parse(walletID); err != nil {
		return domain.ErrInvalidWalletID
	}
	return nil
}

// parseLimit はlimitクエリを解釈する。未指定の場合は0（既定値）を返す。
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > maxHistoryLimit {
		return 0, domain.ErrInvalidLimit
	}
	return limit, nil
}

// callerWallet は認証済み呼び出し元とURLのウォレットIDを取り出す。失敗時はレスポンスを書き込みfalseを返す。
func callerWallet(w http.ResponseWriter, r *http.Request) (callerID, walletID string, ok bool) {
	callerID, ok = middleware.CallerID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		return "", "", false
	}
	walletID = chi.URLParam(r, "wallet_id")
	if err := validateWalletID(walletID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_WALLET_ID", "invalid wallet ID format")
		return "", "", false
	}
	return callerID, walletID, true
}

// writeWalletError はウォレット操作のエラーをHTTPステータスに対応付ける。
// 復号失敗は内部エラーとして扱い詳細を返さない。
func writeWalletError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrWalletNotFound):
		httputil.Error(w, http.StatusNotFound, "WALLET_NOT_FOUND", "wallet not found")
	case errors.Is(err, domain.ErrInvalidAddress):
		httputil.Error(w, http.StatusBadRequest, "INVALID_ADDRESS", "invalid recipient address")
	case errors.Is(err, domain.ErrInvalidAmount):
		httputil.Error(w, http.StatusBadRequest, "INVALID_AMOUNT", "amount must be greater than zero")
	case errors.Is(err, domain.ErrTransferFailed):
		httputil.Error(w, http.StatusBadGateway, "TRANSFER_FAILED", "failed to send transaction")
	case errors.Is(err, domain.ErrHistoryUnavailable):
		httputil.Error(w, http.StatusBadGateway, "HISTORY_UNAVAILABLE", "failed to get transaction history")
	default:
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

func auditResult(err error) string {
	if errors.Is(err, domain.ErrWalletNotFound) {
		return middleware.ResultDenied
	}
	return middleware.ResultFailure
}

// CreateWallet は呼び出し元の新しいウォレットを作成する。
func (h *WalletHandler) CreateWallet(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.CallerID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		return
	}

	wallet, err := h.service.CreateWallet(r.Context(), callerID)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "CREATE_WALLET", callerID, "", middleware.ResultFailure)
		writeWalletError(w, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "CREATE_WALLET", callerID, wallet.ID, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusCreated, toWalletResponse(wallet))
}

// ListWallets は呼び出し元のウォレット一覧を返す。
func (h *WalletHandler) ListWallets(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.CallerID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		return
	}

	wallets, err := h.service.ListWallets(r.Context(), callerID)
	if err != nil {
		writeWalletError(w, err)
		return
	}

	resp := WalletListResponse{Wallets: make([]WalletResponse, len(wallets))}
	for i, wallet := range wallets {
		resp.Wallets[i] = toWalletResponse(wallet)
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// GetBalance はウォレットの残高を返す。
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	callerID, walletID, ok := callerWallet(w, r)
	if !ok {
		return
	}

	balance, err := h.service.GetBalance(r.Context(), walletID, callerID)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "GET_BALANCE", callerID, walletID, auditResult(err))
		writeWalletError(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, BalanceResponse{
		Address: balance.Address,
		Balance: balance.Balance,
		Network: balance.Network,
	})
}

// SendFunds はウォレットから送金する。
func (h *WalletHandler) SendFunds(w http.ResponseWriter, r *http.Request) {
	callerID, walletID, ok := callerWallet(w, r)
	if !ok {
		return
	}

	var req TransferRequest
	if err := httputil.Decode(w, r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if !addressRegex.MatchString(req.ToAddress) {
		httputil.Error(w, http.StatusBadRequest, "INVALID_ADDRESS", "invalid recipient address")
		return
	}
	if !req.Amount.IsPositive() || req.Amount.Exponent() < -maxAmountDecimal {
		httputil.Error(w, http.StatusBadRequest, "INVALID_AMOUNT", "amount must be a positive value with at most 18 decimals")
		return
	}

	result, err := h.service.SendFunds(r.Context(), walletID, callerID, req.ToAddress, req.Amount)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "SEND_FUNDS", callerID, walletID, auditResult(err))
		writeWalletError(w, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "SEND_FUNDS", callerID, walletID, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusCreated, TransferResponse{
		Hash:  result.Hash,
		From:  result.From,
		To:    result.To,
		Value: result.Value,
	})
}

// GetTransactions はウォレットの取引履歴を返す。
func (h *WalletHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	callerID, walletID, ok := callerWallet(w, r)
	if !ok {
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be an integer between 1 and 100")
		return
	}

	history, err := h.service.GetHistory(r.Context(), walletID, callerID, limit)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "GET_HISTORY", callerID, walletID, auditResult(err))
		writeWalletError(w, err)
		return
	}

	resp := TransactionListResponse{Transactions: []TransactionResponse{}}
	for record, err := range history {
		if err != nil {
			middleware.WriteAuditLog(r.Context(), "GET_HISTORY", callerID, walletID, middleware.ResultFailure)
			writeWalletError(w, err)
			return
		}
		resp.Transactions = append(resp.Transactions, TransactionResponse{
			Hash:      record.Hash,
			From:      record.From,
			To:        record.To,
			Value:     record.Value,
			Timestamp: record.Timestamp.UTC().Format(time.RFC3339),
			Status:    string(record.Status),
		})
	}

	httputil.JSON(w, http.StatusOK, resp)
}
