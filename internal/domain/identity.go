// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import "time"

// Identity は認証済みアカウントを表す。ブロックチェーンのアドレスとは独立している。
type Identity struct {
	ID               string
	Username         string
	CredentialDigest string // bcryptハッシュ。平文パスワードは保持しない
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AuthResult は登録・ログイン成功時に返す識別情報とトークン。
type AuthResult struct {
	Identity *Identity
	Token    string
}
