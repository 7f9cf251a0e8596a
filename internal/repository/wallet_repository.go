package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"wallet-custody-service/internal/crypto"
	"wallet-custody-service/internal/domain"
)

// WalletModel はgorm用のモデル定義。
// sealed_key は封印済み秘密鍵のJSON表現（ciphertext/nonce/auth_tag）。
type WalletModel struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	OwnerID   string    `gorm:"type:varchar(36);not null;index:idx_wallets_owner_created"`
	Address   string    `gorm:"type:varchar(42);not null;uniqueIndex:uq_wallets_address"`
	SealedKey string    `gorm:"type:text;not null"`
	Network   string    `gorm:"type:varchar(32);not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime;index:idx_wallets_owner_created"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (WalletModel) TableName() string {
	return "wallets"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (w *WalletModel) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	return nil
}

// toDomain はモデルをドメインエンティティに変換する。
func (w *WalletModel) toDomain() (*domain.WalletRecord, error) {
	sealed, err := crypto.UnmarshalEnvelope([]byte(w.SealedKey))
	if err != nil {
		return nil, fmt.Errorf("wallet %s: %w", w.ID, err)
	}
	return &domain.WalletRecord{
		ID:           w.ID,
		OwnerID:      w.OwnerID,
		ChainAddress: w.Address,
		SealedKey:    sealed,
		Network:      w.Network,
		CreatedAt:    w.CreatedAt,
		UpdatedAt:    w.UpdatedAt,
	}, nil
}

// WalletRepository はウォレットのデータアクセスを提供する。
// 検索は常に所有者IDを条件に含める。
type WalletRepository struct {
	db *gorm.DB
}

// NewWalletRepository は新しいWalletRepositoryを生成する。
func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// Create は新しいウォレットを保存する。
func (r *WalletRepository) Create(ctx context.Context, wallet *domain.WalletRecord) error {
	sealed, err := crypto.MarshalEnvelope(wallet.SealedKey)
	if err != nil {
		return err
	}
	model := &WalletModel{
		ID:        wallet.ID,
		OwnerID:   wallet.OwnerID,
		Address:   wallet.ChainAddress,
		SealedKey: string(sealed),
		Network:   wallet.Network,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create wallet",
			"operation", "create",
			"owner_id", wallet.OwnerID,
			"error", err,
		)
		return err
	}
	wallet.ID = model.ID
	wallet.CreatedAt = model.CreatedAt
	wallet.UpdatedAt = model.UpdatedAt
	return nil
}

// FindByIDAndOwnerID はウォレットIDと所有者IDの両方に一致するウォレットを1回の問い合わせで取得する。
// 存在しない場合と所有者が異なる場合はいずれもnilを返す。
func (r *WalletRepository) FindByIDAndOwnerID(ctx context.Context, id, ownerID string) (*domain.WalletRecord, error) {
	var model WalletModel
	err := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find wallet",
			"operation", "find_by_id_and_owner_id",
			"wallet_id", id,
			"owner_id", ownerID,
			"error", err,
		)
		return nil, err
	}

	wallet, err := model.toDomain()
	if err != nil {
		slog.ErrorContext(ctx, "stored sealed key is malformed",
			"operation", "find_by_id_and_owner_id",
			"wallet_id", id,
			"error", err,
		)
		return nil, err
	}
	return wallet, nil
}

// FindAllByOwnerID は所有者の全ウォレットを作成日時順に取得する。
func (r *WalletRepository) FindAllByOwnerID(ctx context.Context, ownerID string) ([]*domain.WalletRecord, error) {
	var models []WalletModel
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find wallets by owner_id",
			"operation", "find_all_by_owner_id",
			"owner_id", ownerID,
			"error", err,
		)
		return nil, err
	}

	wallets := make([]*domain.WalletRecord, 0, len(models))
	for i := range models {
		w, err := models[i].toDomain()
		if err != nil {
			slog.ErrorContext(ctx, "stored sealed key is malformed",
				"operation", "find_all_by_owner_id",
				"wallet_id", models[i].ID,
				"error", err,
			)
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, nil
}
