package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"wallet-custody-service/internal/middleware"
	"wallet-custody-service/pkg/httputil"
)

// RouterOptions はルーターの構成。
type RouterOptions struct {
	Verifier    middleware.TokenVerifier
	Limiter     *middleware.MapLimiter // nilの場合はレート制限なし
	OtelEnabled bool

	// trueの場合のみX-Forwarded-For等からクライアントIPを決定する
	TrustProxyHeaders bool
}

// HealthResponse はヘルスチェックのレスポンス形式。
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// NewRouter はルーターを生成する。
func NewRouter(authHandler *AuthHandler, walletHandler *WalletHandler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.RequestID)
	if opts.TrustProxyHeaders {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", health)
	r.Handle("/metrics", promhttp.Handler())

	// ルート定義
	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(opts.Limiter))

		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(opts.Verifier))

			r.Get("/me", authHandler.Me)
			r.Route("/wallets", func(r chi.Router) {
				r.Post("/", walletHandler.CreateWallet)
				r.Get("/", walletHandler.ListWallets)
				r.Get("/{wallet_id}/balance", walletHandler.GetBalance)
				r.Post("/{wallet_id}/transfers", walletHandler.SendFunds)
				r.Get("/{wallet_id}/transactions", walletHandler.GetTransactions)
			})
		})
	})

	if opts.OtelEnabled {
		return otelhttp.NewHandler(r, "wallet-custody-service")
	}
	return r
}

func health(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, HealthResponse{
		Status:    "OK",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
