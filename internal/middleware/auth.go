package middleware

import (
	"context"
	"net/http"
	"strings"

	"wallet-custody-service/pkg/httputil"
)

type contextKey struct{ name string }

var callerIDKey = &contextKey{"caller_id"}

// TokenVerifier はセッショントークンを検証し主体のIDを返す。
type TokenVerifier interface {
	VerifyToken(token string) (string, error)
}

// RequireAuth はAuthorization: Bearer ヘッダのトークンを検証する。
// 検証に成功した場合のみ呼び出し元IDをコンテキストに設定する。
func RequireAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				httputil.Error(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
				return
			}
			callerID, err := verifier.VerifyToken(token)
			if err != nil || callerID == "" {
				httputil.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCallerID(r.Context(), callerID)))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// WithCallerID は呼び出し元IDをコンテキストに設定する。
func WithCallerID(ctx context.Context, callerID string) context.Context {
	return context.WithValue(ctx, callerIDKey, callerID)
}

// CallerID はコンテキストから認証済みの呼び出し元IDを取得する。
func CallerID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(callerIDKey).(string)
	return id, ok && id != ""
}
