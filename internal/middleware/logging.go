// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"time"

	"wallet-custody-service/internal/monitoring"
)

// 監査ログの結果値
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultDenied  = "denied"
)

// WriteAuditLog は監査ログを出力し、操作メトリクスを記録する。
// 秘密情報（パスワード・鍵・トークン）は渡さないこと。
func WriteAuditLog(ctx context.Context, operation, identityID, walletID, result string) {
	attrs := []any{
		"operation", operation,
		"identity_id", identityID,
		"result", result,
		"timestamp", time.Now().UTC().Format(time.RFC3339),
	}
	if walletID != "" {
		attrs = append(attrs, "wallet_id", walletID)
	}
	slog.InfoContext(ctx, "wallet operation completed", attrs...)
	monitoring.RecordOperation(operation, result)
}
