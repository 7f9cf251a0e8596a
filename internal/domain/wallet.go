package domain

import "time"

// SealedKeyEnvelope は認証付き暗号で保護された秘密鍵の永続化表現。
// Ciphertext・Nonce・AuthTag は同一の暗号化呼び出しで生成された組でのみ復号できる。
type SealedKeyEnvelope struct {
	Ciphertext []byte `json:"ciphertext"`
	Nonce      []byte `json:"nonce"`
	AuthTag    []byte `json:"auth_tag"`
}

// WalletRecord はIdentityとブロックチェーン鍵ペアの保管上の紐付けを表す。
// ChainAddress と SealedKey は作成時に一度だけ設定され、以降変更されない。
type WalletRecord struct {
	ID           string
	OwnerID      string
	ChainAddress string
	SealedKey    *SealedKeyEnvelope
	Network      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// WalletSummary はウォレットの公開情報を表す（封印鍵を含まない）。
type WalletSummary struct {
	ID        string
	Address   string
	Network   string
	CreatedAt time.Time
}

// Summary は公開情報のみを取り出す。
func (w *WalletRecord) Summary() *WalletSummary {
	return &WalletSummary{
		ID:        w.ID,
		Address:   w.ChainAddress,
		Network:   w.Network,
		CreatedAt: w.CreatedAt,
	}
}

// Balance はウォレット残高を表す。Balance はether単位の10進文字列。
type Balance struct {
	Address string
	Balance string
	Network string
}

// KeyPair はブロックチェーン側で生成された鍵ペア。
// PrivateKey は封印後ただちにゼロ化すること。
type KeyPair struct {
	Address    string
	PrivateKey []byte
}

// TransferResult は送金の公開レシート。
type TransferResult struct {
	Hash  string
	From  string
	To    string
	Value string
}

// TransferStatus は取引の確定状態を表す。
type TransferStatus string

const (
	// TransferStatusSuccess は成功した取引。
	TransferStatusSuccess TransferStatus = "success"
	// TransferStatusFailed は失敗した取引。
	TransferStatusFailed TransferStatus = "failed"
)

// TransferRecord は取引履歴の1件。
type TransferRecord struct {
	Hash      string
	From      string
	To        string
	Value     string
	Timestamp time.Time
	Status    TransferStatus
}
