package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"wallet-custody-service/internal/infra"
)

// secretCmd はシークレット管理のコマンド。
func secretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage service secrets",
	}
	cmd.AddCommand(secretWrapCmd())
	return cmd
}

// secretWrapCmd は標準入力から読んだシークレットをCloud KMSで暗号化し、
// WALLET_ENCRYPTION_SECRET に設定できるbase64文字列を出力する。
func secretWrapCmd() *cobra.Command {
	var keyName string
	cmd := &cobra.Command{
		Use:   "wrap",
		Short: "Encrypt a secret read from stdin with Cloud KMS",
		RunE: func(cmd *cobra.Command, args []string) error {
			if keyName == "" {
				keyName = os.Getenv("KMS_KEY_NAME")
			}
			if keyName == "" {
				return fmt.Errorf("--key-name is required (or set KMS_KEY_NAME)")
			}

			raw, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading secret: %w", err)
			}
			secret := []byte(strings.TrimRight(string(raw), "\r\n"))

			ctx := context.Background()
			kmsClient, err := infra.NewKMSClient(ctx, keyName)
			if err != nil {
				return fmt.Errorf("failed to init KMS client: %w", err)
			}
			defer kmsClient.Close()

			wrapped, err := infra.WrapSecret(ctx, kmsClient, secret)
			if err != nil {
				return fmt.Errorf("failed to wrap secret: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), wrapped)
			return nil
		},
	}
	cmd.Flags().StringVar(&keyName, "key-name", "", "Cloud KMS crypto key resource name (or set KMS_KEY_NAME)")
	return cmd
}
