// Package main はAPIサーバーのエントリポイント。
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"wallet-custody-service/config"
	"wallet-custody-service/internal/auth"
	"wallet-custody-service/internal/crypto"
	"wallet-custody-service/internal/handler"
	"wallet-custody-service/internal/infra"
	"wallet-custody-service/internal/middleware"
	"wallet-custody-service/internal/repository"
	"wallet-custody-service/internal/usecase"
	"wallet-custody-service/migrations"
)

func main() {
	ctx := context.Background()

	// .envファイルを読み込む（存在しない場合は無視）
	// 既存の環境変数は上書きしない
	_ = godotenv.Load()

	// 設定読み込み
	cfg := config.Load()
	logLevel := infra.ParseLevel(cfg.LogLevel)

	// トレーサー初期化（ロガー設定の前に実行）
	tp, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		slog.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(ctx); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	// トレース情報付きロガーを設定
	infra.SetupLogger(cfg, logLevel)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	// DB初期化
	db, err := infra.NewDB(cfg)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	if cfg.AutoMigrate {
		if err := migrate(ctx, db, cfg.DatabaseDriver); err != nil {
			return err
		}
	}

	walletSecret, err := loadWalletSecret(ctx, cfg)
	if err != nil {
		return err
	}
	sealer, err := crypto.NewKeySealer(walletSecret)
	crypto.Wipe(walletSecret)
	if err != nil {
		return fmt.Errorf("init key sealer: %w", err)
	}

	tokens, err := auth.NewTokenManager([]byte(cfg.JWTSecret), cfg.TokenTTL)
	if err != nil {
		return fmt.Errorf("init token manager: %w", err)
	}
	hasher, err := auth.NewBcryptHasher(cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("init password hasher: %w", err)
	}

	chain, err := infra.DialEthereum(ctx, cfg.EthRPCURL, infra.EthereumOptions{
		Network:     cfg.Network,
		ExplorerURL: cfg.EtherscanAPIURL,
		ExplorerKey: cfg.EtherscanAPIKey,
	})
	if err != nil {
		return fmt.Errorf("init ethereum client: %w", err)
	}
	defer chain.Close()

	// DI
	authService, err := usecase.NewAuthService(repository.NewIdentityRepository(db), tokens, hasher)
	if err != nil {
		return fmt.Errorf("init auth service: %w", err)
	}
	walletService := usecase.NewWalletService(repository.NewWalletRepository(db), chain, sealer, usecase.WalletOptions{
		Network:             cfg.Network,
		ChainTimeout:        cfg.ChainTimeout,
		HistoryMaxLimit:     cfg.HistoryMaxLimit,
		HistoryDefaultLimit: cfg.HistoryDefaultLimit,
	})
	router := handler.NewRouter(
		handler.NewAuthHandler(authService),
		handler.NewWalletHandler(walletService),
		handler.RouterOptions{
			Verifier:          authService,
			Limiter:           middleware.NewMapLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 30*time.Minute),
			OtelEnabled:       cfg.OtelEnabled,
			TrustProxyHeaders: cfg.TrustProxyHeaders,
		},
	)

	// サーバー起動
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		<-sigCh

		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("starting server", "port", cfg.Port, "network", cfg.Network)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// migrate は埋め込みマイグレーションを適用する。
func migrate(ctx context.Context, db *gorm.DB, dialect string) error {
	service := usecase.NewMigrationService(repository.NewMigrationRepository(db), db, migrations.FS, dialect)
	applied, err := service.ApplyMigrations(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	slog.Info("migrations applied", "count", applied, "dialect", dialect)
	return nil
}

// loadWalletSecret はウォレット鍵封印用のシークレットを返す。
// KMS_KEY_NAME が設定されている場合、WALLET_ENCRYPTION_SECRET はKMS暗号文として起動時に一度だけ復号する。
func loadWalletSecret(ctx context.Context, cfg *config.Config) ([]byte, error) {
	if cfg.KMSKeyName == "" {
		return []byte(cfg.WalletEncryptionSecret), nil
	}

	kmsClient, err := infra.NewKMSClient(ctx, cfg.KMSKeyName)
	if err != nil {
		return nil, fmt.Errorf("init KMS client: %w", err)
	}
	defer func() {
		if closeErr := kmsClient.Close(); closeErr != nil {
			slog.Error("failed to close KMS client", "error", closeErr)
		}
	}()

	secret, err := infra.UnwrapSecret(ctx, kmsClient, cfg.WalletEncryptionSecret)
	if err != nil {
		return nil, fmt.Errorf("unwrap wallet encryption secret: %w", err)
	}
	return secret, nil
}
