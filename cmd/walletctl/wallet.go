package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

type walletInfo struct {
	ID        string `json:"id"`
	Address   string `json:"address"`
	Network   string `json:"network"`
	CreatedAt string `json:"createdAt"`
}

// walletsCmd はウォレット管理のコマンド。
func walletsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallets",
		Short: "Manage wallets",
	}
	cmd.AddCommand(walletsCreateCmd())
	cmd.AddCommand(walletsListCmd())
	return cmd
}

func walletsCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create a new wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := callAPI(http.MethodPost, "/v1/wallets", nil, http.StatusCreated, true)
			if err != nil {
				return err
			}

			var result walletInfo
			return printResult(cmd, body, &result, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Created wallet %s (address: %s, network: %s)\n", result.ID, result.Address, result.Network)
			})
		},
	}
}

func walletsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your wallets",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := callAPI(http.MethodGet, "/v1/wallets", nil, http.StatusOK, true)
			if err != nil {
				return err
			}

			var result struct {
				Wallets []walletInfo `json:"wallets"`
			}
			return printResult(cmd, body, &result, func() {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
				fmt.Fprintln(w, "ID\tADDRESS\tNETWORK\tCREATED AT")
				for _, wallet := range result.Wallets {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", wallet.ID, wallet.Address, wallet.Network, wallet.CreatedAt)
				}
				w.Flush()
			})
		},
	}
}

// balanceCmd は残高の取得コマンド。
func balanceCmd() *cobra.Command {
	var walletID string
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show the balance of a wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := callAPI(http.MethodGet, "/v1/wallets/"+url.PathEscape(walletID)+"/balance", nil, http.StatusOK, true)
			if err != nil {
				return err
			}

			var result struct {
				Address string `json:"address"`
				Balance string `json:"balance"`
				Network string `json:"network"`
			}
			return printResult(cmd, body, &result, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s ETH (%s on %s)\n", result.Balance, result.Address, result.Network)
			})
		},
	}
	cmd.Flags().StringVar(&walletID, "wallet", "", "Wallet ID (required)")
	cmd.MarkFlagRequired("wallet")
	return cmd
}

// sendCmd は送金コマンド。
func sendCmd() *cobra.Command {
	var walletID, to, amount string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send funds from a wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("invalid --amount %q: %w", amount, err)
			}
			if !value.IsPositive() {
				return fmt.Errorf("--amount must be greater than zero")
			}

			payload := map[string]string{"toAddress": to, "amount": value.String()}
			body, err := callAPI(http.MethodPost, "/v1/wallets/"+url.PathEscape(walletID)+"/transfers", payload, http.StatusCreated, true)
			if err != nil {
				return err
			}

			var result struct {
				Hash  string `json:"hash"`
				From  string `json:"from"`
				To    string `json:"to"`
				Value string `json:"value"`
			}
			return printResult(cmd, body, &result, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Sent %s ETH from %s to %s\ntx: %s\n", result.Value, result.From, result.To, result.Hash)
			})
		},
	}
	cmd.Flags().StringVar(&walletID, "wallet", "", "Wallet ID (required)")
	cmd.Flags().StringVar(&to, "to", "", "Recipient address (required)")
	cmd.Flags().StringVar(&amount, "amount", "", "Amount in ETH (required)")
	cmd.MarkFlagRequired("wallet")
	cmd.MarkFlagRequired("to")
	cmd.MarkFlagRequired("amount")
	return cmd
}

// historyCmd は取引履歴の取得コマンド。
func historyCmd() *cobra.Command {
	var walletID string
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent transactions of a wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/wallets/" + url.PathEscape(walletID) + "/transactions"
			if limit > 0 {
				path += "?limit=" + strconv.Itoa(limit)
			}
			body, err := callAPI(http.MethodGet, path, nil, http.StatusOK, true)
			if err != nil {
				return err
			}

			var result struct {
				Transactions []struct {
					Hash      string `json:"hash"`
					From      string `json:"from"`
					To        string `json:"to"`
					Value     string `json:"value"`
					Timestamp string `json:"timestamp"`
					Status    string `json:"status"`
				} `json:"transactions"`
			}
			return printResult(cmd, body, &result, func() {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
				fmt.Fprintln(w, "HASH\tFROM\tTO\tVALUE\tSTATUS\tTIMESTAMP")
				for _, tx := range result.Transactions {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", tx.Hash, tx.From, tx.To, tx.Value, tx.Status, tx.Timestamp)
				}
				w.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&walletID, "wallet", "", "Wallet ID (required)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Number of transactions (1-100, default 10)")
	cmd.MarkFlagRequired("wallet")
	return cmd
}
