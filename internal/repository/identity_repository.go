// Package repository はデータアクセス層の実装を提供する。
package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"wallet-custody-service/internal/domain"
)

// UserModel はgorm用のモデル定義。
type UserModel struct {
	ID           string    `gorm:"type:varchar(36);primaryKey"`
	Username     string    `gorm:"type:varchar(30);not null;uniqueIndex:uq_users_username"`
	PasswordHash string    `gorm:"column:password_hash;type:varchar(255);not null"`
	CreatedAt    time.Time `gorm:"not null;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (UserModel) TableName() string {
	return "users"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (u *UserModel) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}

func (u *UserModel) toDomain() *domain.Identity {
	return &domain.Identity{
		ID:               u.ID,
		Username:         u.Username,
		CredentialDigest: u.PasswordHash,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
}

// IdentityRepository はIdentityのデータアクセスを提供する。
type IdentityRepository struct {
	db *gorm.DB
}

// NewIdentityRepository は新しいIdentityRepositoryを生成する。
func NewIdentityRepository(db *gorm.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// FindByUsername はユーザー名でIdentityを取得する。存在しない場合はnilを返す。
func (r *IdentityRepository) FindByUsername(ctx context.Context, username string) (*domain.Identity, error) {
	var model UserModel
	err := r.db.WithContext(ctx).
		Where("username = ?", username).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find identity by username",
			"operation", "find_by_username",
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindByID はIDでIdentityを取得する。存在しない場合はnilを返す。
func (r *IdentityRepository) FindByID(ctx context.Context, id string) (*domain.Identity, error) {
	var model UserModel
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find identity by id",
			"operation", "find_by_id",
			"identity_id", id,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// Create は新しいIdentityを保存する。
// ユーザー名の一意制約違反は domain.ErrDuplicateIdentity を返す。
func (r *IdentityRepository) Create(ctx context.Context, identity *domain.Identity) error {
	model := &UserModel{
		ID:           identity.ID,
		Username:     identity.Username,
		PasswordHash: identity.CredentialDigest,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isDuplicateKey(err) {
			return domain.ErrDuplicateIdentity
		}
		slog.ErrorContext(ctx, "failed to create identity",
			"operation", "create",
			"error", err,
		)
		return err
	}
	identity.ID = model.ID
	identity.CreatedAt = model.CreatedAt
	identity.UpdatedAt = model.UpdatedAt
	return nil
}

// isDuplicateKey は一意制約違反かを判定する。
// gorm.Config.TranslateError が有効な接続でのみ検出できる。
func isDuplicateKey(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
