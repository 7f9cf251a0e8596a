// Package crypto は秘密鍵の保管用封印（認証付き暗号）を提供する。
//
// 封印には XChaCha20-Poly1305 を用い、呼び出しごとに新しい24バイトのノンスを生成する。
// 関連データとして用途を示す固定文字列を与えるため、別用途の暗号文を流用した復号は失敗する。
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"wallet-custody-service/internal/domain"
)

const (
	// KeySize は封印鍵の長さ（256ビット）。
	KeySize = chacha20poly1305.KeySize
	// NonceSize はXChaCha20のノンス長。
	NonceSize = chacha20poly1305.NonceSizeX
	// TagSize はPoly1305の認証タグ長。
	TagSize = chacha20poly1305.Overhead

	walletKeyContext = "wallet-custody/wallet-key-envelope/v1"
)

var (
	// ErrDecryptionFailed は認証タグの検証に失敗した場合のエラー。
	ErrDecryptionFailed = errors.New("envelope decryption failed")
	// ErrInvalidKeySize は鍵長が不正な場合のエラー。
	ErrInvalidKeySize = errors.New("invalid key size")
	// ErrInvalidEnvelope は封印データの構造が不正な場合のエラー。
	ErrInvalidEnvelope = errors.New("invalid sealed key envelope")
)

// Encrypt は平文をウォレット鍵用のコンテキストで封印する。
func Encrypt(plaintext, key []byte) (*domain.SealedKeyEnvelope, error) {
	return seal(plaintext, key, []byte(walletKeyContext))
}

// Decrypt は封印を解き平文を返す。失敗時に部分的な平文を返すことはない。
func Decrypt(env *domain.SealedKeyEnvelope, key []byte) ([]byte, error) {
	return open(env, key, []byte(walletKeyContext))
}

func seal(plaintext, key, additionalData []byte) (*domain.SealedKeyEnvelope, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, additionalData)
	split := len(sealed) - TagSize

	return &domain.SealedKeyEnvelope{
		Ciphertext: sealed[:split:split],
		Nonce:      nonce,
		AuthTag:    sealed[split:],
	}, nil
}

func open(env *domain.SealedKeyEnvelope, key, additionalData []byte) ([]byte, error) {
	if err := validateEnvelope(env); err != nil {
		return nil, err
	}
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	// 封印データ側のスライスを書き換えないよう新しいバッファに連結する
	sealed := make([]byte, 0, len(env.Ciphertext)+TagSize)
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.AuthTag...)

	plaintext, err := aead.Open(nil, env.Nonce, sealed, additionalData)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrInvalidKeySize, KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305: %w", err)
	}
	return aead, nil
}

func validateEnvelope(env *domain.SealedKeyEnvelope) error {
	if env == nil {
		return fmt.Errorf("%w: nil envelope", ErrInvalidEnvelope)
	}
	if len(env.Nonce) != NonceSize {
		return fmt.Errorf("%w: nonce must be %d bytes, got %d", ErrInvalidEnvelope, NonceSize, len(env.Nonce))
	}
	if len(env.AuthTag) != TagSize {
		return fmt.Errorf("%w: auth tag must be %d bytes, got %d", ErrInvalidEnvelope, TagSize, len(env.AuthTag))
	}
	return nil
}

// MarshalEnvelope は封印データを保存用のJSONに変換する。各フィールドはbase64で表現される。
func MarshalEnvelope(env *domain.SealedKeyEnvelope) ([]byte, error) {
	if err := validateEnvelope(env); err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// UnmarshalEnvelope は保存済みのJSONから封印データを復元する。
// ノンスまたはタグが欠けているデータは受け付けない。
func UnmarshalEnvelope(data []byte) (*domain.SealedKeyEnvelope, error) {
	var env domain.SealedKeyEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if err := validateEnvelope(&env); err != nil {
		return nil, err
	}
	return &env, nil
}
