package domain

import "errors"

var (
	// ErrDuplicateIdentity は同じユーザー名のIdentityが既に存在する場合のエラー。
	ErrDuplicateIdentity = errors.New("username already exists")

	// ErrInvalidCredentials はユーザーが存在しない場合とパスワード不一致の場合で共通のエラー。
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken はトークンの署名不正・形式不正・期限切れを区別せずに表すエラー。
	ErrInvalidToken = errors.New("invalid token")

	// ErrIdentityNotFound はトークンの主体に対応するIdentityが存在しない場合のエラー。
	ErrIdentityNotFound = errors.New("identity not found")

	// ErrWalletNotFound はウォレットが存在しない場合と所有者が異なる場合で共通のエラー。
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrInvalidAddress は送金先アドレスの形式が不正な場合のエラー。
	ErrInvalidAddress = errors.New("invalid recipient address")

	// ErrInvalidAmount は送金額が正でない場合のエラー。
	ErrInvalidAmount = errors.New("amount must be greater than zero")

	// ErrDecryptionFailed は封印鍵の復号に失敗した場合のエラー。データ破損または鍵の不一致を示す。
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrTransferFailed はブロックチェーンへの送金が失敗した場合のエラー。
	ErrTransferFailed = errors.New("failed to send transaction")

	// ErrHistoryUnavailable は取引履歴の取得に失敗した場合のエラー。
	ErrHistoryUnavailable = errors.New("failed to get transaction history")

	// ErrInvalidUsername はユーザー名の形式が不正な場合のエラー。
	ErrInvalidUsername = errors.New("invalid username")

	// ErrInvalidPassword はパスワードが要件を満たさない場合のエラー。
	ErrInvalidPassword = errors.New("invalid password")

	// ErrInvalidWalletID はウォレットIDの形式が不正な場合のエラー。
	ErrInvalidWalletID = errors.New("invalid wallet ID")

	// ErrInvalidLimit は履歴件数の指定が不正な場合のエラー。
	ErrInvalidLimit = errors.New("invalid limit")

	// ErrMigrationFailed はマイグレーション実行時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrInvalidMigrationFile はマイグレーションファイルのフォーマットが不正な場合のエラー。
	ErrInvalidMigrationFile = errors.New("invalid migration file")
)
