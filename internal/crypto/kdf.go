package crypto

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	kdfSalt = "wallet-custody/kdf-salt/v1"
	kdfInfo = "wallet-custody/wallet-key-encryption"
)

// DeriveKey はアプリケーションシークレットからHKDF-SHA256で256ビットの封印鍵を導出する。
// 同じシークレットからは常に同じ鍵が得られる。
func DeriveKey(secret []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, errors.New("empty application secret")
	}
	key := make([]byte, KeySize)
	r := hkdf.New(sha256.New, secret, []byte(kdfSalt), []byte(kdfInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	return key, nil
}
