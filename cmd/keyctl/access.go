package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

// accessCmd はアクセス制御のサブコマンド群。
func accessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "access",
		Short: "Evaluate access control decisions",
	}
	cmd.AddCommand(accessCheckCmd())
	cmd.AddCommand(accessPermissionsCmd())
	return cmd
}

// accessCheckCmd はアクセス判定コマンド。拒否された場合も終了コードは0。
func accessCheckCmd() *cobra.Command {
	var userID, resourceType, resourceID, action string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether a user may perform an action on a resource",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := callAPI(http.MethodPost, "/v1/access/check", map[string]string{
				"user_id":       userID,
				"resource_type": strings.ToUpper(resourceType),
				"resource_id":   resourceID,
				"action":        strings.ToUpper(action),
			}, http.StatusOK)
			if err != nil {
				return err
			}

			var result struct {
				Allowed bool   `json:"allowed"`
				Reason  string `json:"reason"`
			}
			return printResult(cmd, body, &result, func(w io.Writer) {
				if result.Allowed {
					fmt.Fprintln(w, "ALLOWED")
					return
				}
				fmt.Fprintf(w, "DENIED: %s\n", result.Reason)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "Acting user ID (required)")
	cmd.Flags().StringVar(&resourceType, "resource-type", "", "Resource type: USER, CASE, DOCUMENT, FORM, REPORT (required)")
	cmd.Flags().StringVar(&resourceID, "resource-id", "", "Resource ID")
	cmd.Flags().StringVar(&action, "action", "READ", "Action: READ, WRITE, DELETE, APPROVE, REJECT, ASSIGN, SUBMIT")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("resource-type")
	return cmd
}

// accessPermissionsCmd はユーザーの実効権限一覧を表示する。
func accessPermissionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "permissions USER_ID",
		Short: "List effective permissions of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := callAPI(http.MethodGet, "/v1/users/"+url.PathEscape(args[0])+"/permissions", nil, http.StatusOK)
			if err != nil {
				return err
			}

			var result struct {
				Permissions []string `json:"permissions"`
			}
			return printResult(cmd, body, &result, func(w io.Writer) {
				for _, p := range result.Permissions {
					fmt.Fprintln(w, p)
				}
			})
		},
	}
}
