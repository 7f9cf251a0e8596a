package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResult struct {
	User struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
	Token string `json:"token"`
}

// credentialsCmd は登録・ログイン共通のコマンドを生成する。
func credentialsCmd(use, short, path string, wantStatus int) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = passwordFromEnv()
			}
			body, err := callAPI(http.MethodPost, path, credentials{Username: username, Password: password}, wantStatus, false)
			if err != nil {
				return err
			}

			var result authResult
			return printResult(cmd, body, &result, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Authenticated as %q (id: %s)\n", result.User.Username, result.User.ID)
				fmt.Fprintf(cmd.OutOrStdout(), "export WALLETCTL_TOKEN=%s\n", result.Token)
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Username (required)")
	cmd.Flags().StringVar(&password, "password", "", "Password (or set WALLETCTL_PASSWORD)")
	cmd.MarkFlagRequired("username")
	return cmd
}

func passwordFromEnv() string {
	return os.Getenv("WALLETCTL_PASSWORD")
}

// registerCmd はユーザー登録コマンド。
func registerCmd() *cobra.Command {
	return credentialsCmd("register", "Register a new user", "/v1/auth/register", http.StatusCreated)
}

// loginCmd はログインコマンド。
func loginCmd() *cobra.Command {
	return credentialsCmd("login", "Log in and print a session token", "/v1/auth/login", http.StatusOK)
}

// meCmd は認証済みユーザーの情報を表示する。
func meCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the authenticated user",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := callAPI(http.MethodGet, "/v1/me", nil, http.StatusOK, true)
			if err != nil {
				return err
			}

			var result struct {
				ID       string `json:"id"`
				Username string `json:"username"`
			}
			return printResult(cmd, body, &result, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s (id: %s)\n", result.Username, result.ID)
			})
		},
	}
}
