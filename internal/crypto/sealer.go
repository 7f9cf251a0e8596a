package crypto

import (
	"runtime"

	"wallet-custody-service/internal/domain"
)

// KeySealer は起動時に導出した封印鍵を保持し、ウォレット秘密鍵の封印・開封を行う。
// 生成後は読み取り専用のため、複数のリクエストから同時に利用できる。
type KeySealer struct {
	key []byte
}

// NewKeySealer はアプリケーションシークレットから封印鍵を導出してKeySealerを生成する。
func NewKeySealer(secret []byte) (*KeySealer, error) {
	key, err := DeriveKey(secret)
	if err != nil {
		return nil, err
	}
	return &KeySealer{key: key}, nil
}

// Seal は秘密鍵を封印する。
func (s *KeySealer) Seal(plaintext []byte) (*domain.SealedKeyEnvelope, error) {
	return Encrypt(plaintext, s.key)
}

// Open は封印を解く。呼び出し側は使用後に Wipe で平文を消去すること。
func (s *KeySealer) Open(env *domain.SealedKeyEnvelope) ([]byte, error) {
	return Decrypt(env, s.key)
}

// Wipe はバッファをゼロで上書きする。
//
//go:noinline
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(&b)
}
