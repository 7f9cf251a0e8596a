// Package handler はHTTPハンドラを提供する。
package handler

import (
	"errors"
	"net/http"
	"regexp"
	"time"

	"wallet-custody-service/internal/auth"
	"wallet-custody-service/internal/domain"
	"wallet-custody-service/internal/middleware"
	"wallet-custody-service/internal/usecase"
	"wallet-custody-service/pkg/httputil"
)

const minPasswordLength = 6

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9]{3,30}$`)

// AuthHandler は登録・ログイン・本人情報のHTTPハンドラを提供する。
type AuthHandler struct {
	service *usecase.AuthService
}

// NewAuthHandler は新しいAuthHandlerを生成する。
func NewAuthHandler(service *usecase.AuthService) *AuthHandler {
	return &AuthHandler{service: service}
}

// CredentialsRequest は登録・ログインのリクエスト形式。
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UserResponse はユーザー情報のレスポンス形式。資格情報ダイジェストは含めない。
type UserResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// AuthResponse は登録・ログインのレスポンス形式。
type AuthResponse struct {
	User  UserResponse `json:"user"`
	Token string       `json:"token"`
}

func toUserResponse(identity *domain.Identity) UserResponse {
	resp := UserResponse{ID: identity.ID, Username: identity.Username}
	if !identity.CreatedAt.IsZero() {
		resp.CreatedAt = identity.CreatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func validateCredentials(req *CredentialsRequest) error {
	if !usernameRegex.MatchString(req.Username) {
		return domain.ErrInvalidUsername
	}
	if len(req.Password) < minPasswordLength || len(req.Password) > auth.MaxPasswordBytes {
		return domain.ErrInvalidPassword
	}
	return nil
}

// Register は新しいユーザーを登録しトークンを返す。
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := httputil.Decode(w, r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if err := validateCredentials(&req); err != nil {
		if errors.Is(err, domain.ErrInvalidUsername) {
			httputil.Error(w, http.StatusBadRequest, "INVALID_USERNAME", "username must be 3-30 alphanumeric characters")
			return
		}
		httputil.Error(w, http.StatusBadRequest, "INVALID_PASSWORD", "password must be between 6 and 72 bytes long")
		return
	}

	result, err := h.service.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "REGISTER", "", "", middleware.ResultFailure)
		if errors.Is(err, domain.ErrDuplicateIdentity) {
			httputil.Error(w, http.StatusConflict, "USERNAME_TAKEN", "username already exists")
			return
		}
		if errors.Is(err, domain.ErrInvalidPassword) {
			httputil.Error(w, http.StatusBadRequest, "INVALID_PASSWORD", "password must be between 6 and 72 bytes long")
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	middleware.WriteAuditLog(r.Context(), "REGISTER", result.Identity.ID, "", middleware.ResultSuccess)
	httputil.JSON(w, http.StatusCreated, AuthResponse{
		User:  toUserResponse(result.Identity),
		Token: result.Token,
	})
}

// Login は資格情報を検証しトークンを返す。
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := httputil.Decode(w, r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "username and password are required")
		return
	}

	result, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			middleware.WriteAuditLog(r.Context(), "LOGIN", "", "", middleware.ResultDenied)
			httputil.Error(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid credentials")
			return
		}
		middleware.WriteAuditLog(r.Context(), "LOGIN", "", "", middleware.ResultFailure)
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	middleware.WriteAuditLog(r.Context(), "LOGIN", result.Identity.ID, "", middleware.ResultSuccess)
	httputil.JSON(w, http.StatusOK, AuthResponse{
		User:  toUserResponse(result.Identity),
		Token: result.Token,
	})
}

// Me は認証済みの呼び出し元の情報を返す。
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.CallerID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		return
	}

	identity, err := h.service.Me(r.Context(), callerID)
	if err != nil {
		if errors.Is(err, domain.ErrIdentityNotFound) {
			httputil.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "invalid or expired token")
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	httputil.JSON(w, http.StatusOK, toUserResponse(identity))
}
