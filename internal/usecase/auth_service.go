package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"wallet-custody-service/internal/domain"
)

// IdentityRepository はIdentityのデータアクセスのインターフェース。
type IdentityRepository interface {
	FindByUsername(ctx context.Context, username string) (*domain.Identity, error)
	FindByID(ctx context.Context, id string) (*domain.Identity, error)
	Create(ctx context.Context, identity *domain.Identity) error
}

// TokenIssuer はセッショントークンの発行・検証のインターフェース。
type TokenIssuer interface {
	Issue(identityID string) (string, error)
	Verify(token string) (string, error)
}

// PasswordHasher はパスワードハッシュのインターフェース。
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(digest, password string) (bool, error)
}

// AuthService は登録・ログイン・トークン検証を提供する。
type AuthService struct {
	repo   IdentityRepository
	tokens TokenIssuer
	hasher PasswordHasher

	// 存在しないユーザーでもハッシュ比較を行い、応答時間から存在を推測させない
	dummyDigest string
}

// NewAuthService は新しいAuthServiceを生成する。
func NewAuthService(repo IdentityRepository, tokens TokenIssuer, hasher PasswordHasher) (*AuthService, error) {
	dummy, err := hasher.Hash("wallet-custody-dummy-password")
	if err != nil {
		return nil, fmt.Errorf("preparing dummy digest: %w", err)
	}
	return &AuthService{
		repo:        repo,
		tokens:      tokens,
		hasher:      hasher,
		dummyDigest: dummy,
	}, nil
}

// Register は新しいIdentityを作成しトークンを発行する。
func (s *AuthService) Register(ctx context.Context, username, password string) (*domain.AuthResult, error) {
	existing, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("finding identity: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrDuplicateIdentity
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	identity := &domain.Identity{
		Username:         username,
		CredentialDigest: digest,
	}
	// 同時登録はリポジトリの一意制約で ErrDuplicateIdentity になる
	if err := s.repo.Create(ctx, identity); err != nil {
		if errors.Is(err, domain.ErrDuplicateIdentity) {
			return nil, err
		}
		return nil, fmt.Errorf("creating identity: %w", err)
	}

	return s.authenticated(identity)
}

// Login は資格情報を検証しトークンを発行する。
// ユーザー不在とパスワード不一致は同一のエラーを返す。
func (s *AuthService) Login(ctx context.Context, username, password string) (*domain.AuthResult, error) {
	identity, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("finding identity: %w", err)
	}

	digest := s.dummyDigest
	if identity != nil {
		digest = identity.CredentialDigest
	}
	ok, err := s.hasher.Compare(digest, password)
	if err != nil {
		slog.ErrorContext(ctx, "failed to compare credential digest",
			"operation", "login",
			"error", err,
		)
		return nil, domain.ErrInvalidCredentials
	}
	if identity == nil || !ok {
		return nil, domain.ErrInvalidCredentials
	}

	return s.authenticated(identity)
}

// VerifyToken はトークンを検証しidentityIDを返す。
func (s *AuthService) VerifyToken(token string) (string, error) {
	id, err := s.tokens.Verify(token)
	if err != nil {
		return "", domain.ErrInvalidToken
	}
	return id, nil
}

// Me は呼び出し元のIdentityを返す。
func (s *AuthService) Me(ctx context.Context, identityID string) (*domain.Identity, error) {
	identity, err := s.repo.FindByID(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("finding identity: %w", err)
	}
	if identity == nil {
		return nil, domain.ErrIdentityNotFound
	}
	return identity, nil
}

func (s *AuthService) authenticated(identity *domain.Identity) (*domain.AuthResult, error) {
	token, err := s.tokens.Issue(identity.ID)
	if err != nil {
		return nil, fmt.Errorf("issuing token: %w", err)
	}
	return &domain.AuthResult{
		Identity: identity,
		Token:    token,
	}, nil
}
