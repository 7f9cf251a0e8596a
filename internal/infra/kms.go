package infra

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	kms "cloud.google.com/go/kms/apiv1"
	kmspb "cloud.google.com/go/kms/apiv1/kmspb"
)

// KMSClient はCloud KMSクライアントをラップする。
// ウォレット封印用シークレットをKMSで包んだ状態で配布するために使う。
type KMSClient struct {
	client  *kms.KeyManagementClient
	keyName string
}

// NewKMSClient はキー名を指定してKMSClientを生成する。
func NewKMSClient(ctx context.Context, keyName string) (*KMSClient, error) {
	if keyName == "" {
		return nil, fmt.Errorf("KMS_KEY_NAME is required")
	}

	client, err := kms.NewKeyManagementClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating KMS client: %w", err)
	}

	return &KMSClient{
		client:  client,
		keyName: keyName,
	}, nil
}

// Encrypt は平文をCloud KMSで暗号化する。
func (c *KMSClient) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	req := &kmspb.EncryptRequest{
		Name:      c.keyName,
		Plaintext: plaintext,
	}
	resp, err := c.client.Encrypt(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("encrypting: %w", err)
	}
	return resp.Ciphertext, nil
}

// Decrypt は暗号文をCloud KMSで復号する。
func (c *KMSClient) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	req := &kmspb.DecryptRequest{
		Name:       c.keyName,
		Ciphertext: ciphertext,
	}
	resp, err := c.client.Decrypt(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	return resp.Plaintext, nil
}

// Close はKMSクライアントを閉じる。
func (c *KMSClient) Close() error {
	return c.client.Close()
}

// SecretDecrypter はラップされたシークレットを復号する。
type SecretDecrypter interface {
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// SecretEncrypter はシークレットをラップする。
type SecretEncrypter interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
}

// UnwrapSecret はbase64でエンコードされたKMS暗号文を復号する。
func UnwrapSecret(ctx context.Context, dec SecretDecrypter, wrapped string) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(strings.TrimSpace(wrapped))
	if err != nil {
		return nil, fmt.Errorf("decoding wrapped secret: %w", err)
	}
	plaintext, err := dec.Decrypt(ctx, ciphertext)
	if err != nil {
		return nil, err
	}
	if len(plaintext) == 0 {
		return nil, errors.New("unwrapped secret is empty")
	}
	return plaintext, nil
}

// WrapSecret はシークレットをKMSで暗号化しbase64で返す。
func WrapSecret(ctx context.Context, enc SecretEncrypter, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("secret is empty")
	}
	ciphertext, err := enc.Encrypt(ctx, secret)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}
