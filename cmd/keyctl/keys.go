package main

import (
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

type keyMetadata struct {
	KeyIdentifier string  `json:"key_identifier"`
	IsActive      bool    `json:"is_active"`
	CreatedAt     string  `json:"created_at"`
	RotationDate  string  `json:"rotation_date"`
	LastUsedAt    *string `json:"last_used_at"`
}

// keysCmd は鍵管理のサブコマンド群。
func keysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage field encryption keys",
	}
	cmd.AddCommand(keysListCmd())
	cmd.AddCommand(keysActiveCmd())
	cmd.AddCommand(keysRotateCmd())
	return cmd
}

// keysListCmd は鍵一覧の取得コマンド。
func keysListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all field encryption keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := callAPI(http.MethodGet, "/v1/keys", nil, http.StatusOK)
			if err != nil {
				return err
			}

			var result struct {
				Keys []keyMetadata `json:"keys"`
			}
			return printResult(cmd, body, &result, func(w io.Writer) {
				fmt.Fprintf(w, "%-38s %-8s %-26s %s\n", "KEY_IDENTIFIER", "ACTIVE", "CREATED_AT", "LAST_USED_AT")
				for _, k := range result.Keys {
					lastUsed := "-"
					if k.LastUsedAt != nil {
						lastUsed = *k.LastUsedAt
					}
					fmt.Fprintf(w, "%-38s %-8t %-26s %s\n", k.KeyIdentifier, k.IsActive, k.CreatedAt, lastUsed)
				}
			})
		},
	}
}

// keysActiveCmd は有効鍵の状態の取得コマンド。
func keysActiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "active",
		Short: "Show the active key and whether it is due for rotation",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := callAPI(http.MethodGet, "/v1/keys/active", nil, http.StatusOK)
			if err != nil {
				return err
			}

			var result struct {
				keyMetadata
				RotationDue bool `json:"rotation_due"`
			}
			return printResult(cmd, body, &result, func(w io.Writer) {
				fmt.Fprintf(w, "Active key %s (created: %s, rotation date: %s)\n",
					result.KeyIdentifier, result.CreatedAt, result.RotationDate)
				if result.RotationDue {
					fmt.Fprintln(w, "Rotation is due. Run `keyctl keys rotate`.")
				}
			})
		},
	}
}

// keysRotateCmd は鍵のローテーションコマンド。
func keysRotateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate",
		Short: "Rotate the active field encryption key",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := callAPI(http.MethodPost, "/v1/keys/rotate", nil, http.StatusCreated)
			if err != nil {
				return err
			}

			var result keyMetadata
			return printResult(cmd, body, &result, func(w io.Writer) {
				fmt.Fprintf(w, "Rotated key (new key: %s, rotation date: %s)\n", result.KeyIdentifier, result.RotationDate)
			})
		},
	}
}
