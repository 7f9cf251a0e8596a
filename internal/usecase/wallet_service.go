// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"wallet-custody-service/internal/crypto"
	"wallet-custody-service/internal/domain"
)

const zeroBalance = "0"

// WalletRepository はウォレットのデータアクセスのインターフェース。
// ウォレットIDのみでの検索は提供しない。
type WalletRepository interface {
	Create(ctx context.Context, wallet *domain.WalletRecord) error
	FindByIDAndOwnerID(ctx context.Context, id, ownerID string) (*domain.WalletRecord, error)
	FindAllByOwnerID(ctx context.Context, ownerID string) ([]*domain.WalletRecord, error)
}

// Blockchain はブロックチェーンネットワークとのやり取りのインターフェース。
type Blockchain interface {
	GenerateKeyPair(ctx context.Context) (*domain.KeyPair, error)
	GetBalance(ctx context.Context, address string) (string, error)
	SubmitTransfer(ctx context.Context, privateKey []byte, toAddress string, amount decimal.Decimal) (*domain.TransferResult, error)
	GetHistory(ctx context.Context, address string, limit int) ([]*domain.TransferRecord, error)
	IsValidAddress(address string) bool
}

// KeySealer は秘密鍵の封印・開封のインターフェース。
type KeySealer interface {
	Seal(plaintext []byte) (*domain.SealedKeyEnvelope, error)
	Open(env *domain.SealedKeyEnvelope) ([]byte, error)
}

// WalletOptions はWalletServiceの動作設定。
type WalletOptions struct {
	Network             string
	ChainTimeout        time.Duration
	HistoryMaxLimit     int
	HistoryDefaultLimit int
}

// WalletService はウォレットの保管と送金認可を提供する。
// 秘密鍵は所有者確認済みの操作の中でのみ一時的に復号し、呼び出し元には返さない。
type WalletService struct {
	repo   WalletRepository
	chain  Blockchain
	sealer KeySealer
	opts   WalletOptions
}

// NewWalletService は新しいWalletServiceを生成する。
func NewWalletService(repo WalletRepository, chain Blockchain, sealer KeySealer, opts WalletOptions) *WalletService {
	if opts.ChainTimeout <= 0 {
		opts.ChainTimeout = 10 * time.Second
	}
	if opts.HistoryMaxLimit <= 0 {
		opts.HistoryMaxLimit = 100
	}
	if opts.HistoryDefaultLimit <= 0 || opts.HistoryDefaultLimit > opts.HistoryMaxLimit {
		opts.HistoryDefaultLimit = min(10, opts.HistoryMaxLimit)
	}
	return &WalletService{
		repo:   repo,
		chain:  chain,
		sealer: sealer,
		opts:   opts,
	}
}

// CreateWallet は新しい鍵ペアを生成し、秘密鍵を封印して保存する。
func (s *WalletService) CreateWallet(ctx context.Context, callerID string) (*domain.WalletSummary, error) {
	pair, err := s.chain.GenerateKeyPair(ctx)
	if err != nil {
		return nil, fmt.Errorf("generating key pair: %w", err)
	}
	defer crypto.Wipe(pair.PrivateKey)

	sealed, err := s.sealer.Seal(pair.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("sealing private key: %w", err)
	}

	wallet := &domain.WalletRecord{
		OwnerID:      callerID,
		ChainAddress: pair.Address,
		SealedKey:    sealed,
		Network:      s.opts.Network,
	}
	if err := s.repo.Create(ctx, wallet); err != nil {
		return nil, fmt.Errorf("creating wallet: %w", err)
	}

	return wallet.Summary(), nil
}

// ListWallets は呼び出し元が所有するウォレットの一覧を返す。
func (s *WalletService) ListWallets(ctx context.Context, callerID string) ([]*domain.WalletSummary, error) {
	wallets, err := s.repo.FindAllByOwnerID(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("finding wallets: %w", err)
	}

	summaries := make([]*domain.WalletSummary, len(wallets))
	for i, w := range wallets {
		summaries[i] = w.Summary()
	}
	return summaries, nil
}

// GetBalance はウォレットの残高を返す。
// ネットワークからの取得に失敗した場合は残高0として扱う（表示専用のため）。
func (s *WalletService) GetBalance(ctx context.Context, walletID, callerID string) (*domain.Balance, error) {
	wallet, err := s.ownedWallet(ctx, walletID, callerID)
	if err != nil {
		return nil, err
	}

	chainCtx, cancel := context.WithTimeout(ctx, s.opts.ChainTimeout)
	defer cancel()

	balance, err := s.chain.GetBalance(chainCtx, wallet.ChainAddress)
	if err != nil {
		slog.WarnContext(ctx, "balance lookup failed, reporting zero",
			"operation", "get_balance",
			"wallet_id", wallet.ID,
			"error", err,
		)
		balance = zeroBalance
	}

	return &domain.Balance{
		Address: wallet.ChainAddress,
		Balance: balance,
		Network: wallet.Network,
	}, nil
}

// SendFunds は所有者確認・宛先検証・金額検証の後にのみ秘密鍵を開封し送金する。
func (s *WalletService) SendFunds(ctx context.Context, walletID, callerID, toAddress string, amount decimal.Decimal) (*domain.TransferResult, error) {
	wallet, err := s.ownedWallet(ctx, walletID, callerID)
	if err != nil {
		return nil, err
	}
	if !s.chain.IsValidAddress(toAddress) {
		return nil, domain.ErrInvalidAddress
	}
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}

	privateKey, err := s.sealer.Open(wallet.SealedKey)
	if err != nil {
		slog.ErrorContext(ctx, "failed to open sealed key",
			"operation", "send_funds",
			"wallet_id", wallet.ID,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", domain.ErrDecryptionFailed, err)
	}
	defer crypto.Wipe(privateKey)

	chainCtx, cancel := context.WithTimeout(ctx, s.opts.ChainTimeout)
	defer cancel()

	result, err := s.chain.SubmitTransfer(chainCtx, privateKey, toAddress, amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransferFailed, err)
	}
	return result, nil
}

// GetHistory はウォレットの取引履歴を返す。
// 所有者確認はこの呼び出しで行い、返されたシーケンスは走査のたびにネットワークから取得し直す。
func (s *WalletService) GetHistory(ctx context.Context, walletID, callerID string, limit int) (iter.Seq2[*domain.TransferRecord, error], error) {
	wallet, err := s.ownedWallet(ctx, walletID, callerID)
	if err != nil {
		return nil, err
	}

	limit = s.clampLimit(limit)
	address := wallet.ChainAddress

	return func(yield func(*domain.TransferRecord, error) bool) {
		chainCtx, cancel := context.WithTimeout(ctx, s.opts.ChainTimeout)
		defer cancel()

		records, err := s.chain.GetHistory(chainCtx, address, limit)
		if err != nil {
			yield(nil, fmt.Errorf("%w: %v", domain.ErrHistoryUnavailable, err))
			return
		}
		for i, record := range records {
			if i >= limit {
				return
			}
			if !yield(record, nil) {
				return
			}
		}
	}, nil
}

// ownedWallet はウォレットIDと呼び出し元IDの組で一度に検索する。
// 他人のウォレットと存在しないウォレットは区別しない。
func (s *WalletService) ownedWallet(ctx context.Context, walletID, callerID string) (*domain.WalletRecord, error) {
	if walletID == "" || callerID == "" {
		return nil, domain.ErrWalletNotFound
	}
	wallet, err := s.repo.FindByIDAndOwnerID(ctx, walletID, callerID)
	if err != nil {
		return nil, fmt.Errorf("finding wallet: %w", err)
	}
	if wallet == nil {
		return nil, domain.ErrWalletNotFound
	}
	return wallet, nil
}

func (s *WalletService) clampLimit(limit int) int {
	if limit <= 0 {
		return s.opts.HistoryDefaultLimit
	}
	return min(limit, s.opts.HistoryMaxLimit)
}
