package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"field-protection-service/internal/domain"
	"field-protection-service/pkg/masking"
)

type encryptedValue struct {
	EncryptedData string `json:"encrypted_data"`
	KeyIdentifier string `json:"key_identifier"`
	DataType      string `json:"data_type"`
}

// parseInputValue はコマンドライン引数を型タグに合わせた値に変換する。
// STRINGとDATEは文字列のまま、それ以外はJSONとして解釈する。
func parseInputValue(raw string, dt domain.DataType) (any, error) {
	switch dt {
	case domain.DataTypeString, domain.DataTypeDate:
		return raw, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("value is not valid JSON for %s: %w", dt, err)
	}
	return v, nil
}

// encryptCmd は単一値の暗号化コマンド。
func encryptCmd() *cobra.Command {
	var dataType, aad string
	cmd := &cobra.Command{
		Use:   "encrypt VALUE",
		Short: "Encrypt a single value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dt, err := domain.ParseDataType(strings.ToUpper(dataType))
			if err != nil {
				return err
			}
			value, err := parseInputValue(args[0], dt)
			if err != nil {
				return err
			}

			body, err := callAPI(http.MethodPost, "/v1/fields/encrypt", map[string]any{
				"value":     value,
				"data_type": string(dt),
				"context":   aad,
			}, http.StatusOK)
			if err != nil {
				return err
			}

			var result encryptedValue
			return printResult(cmd, body, &result, func(w io.Writer) {
				fmt.Fprintf(w, "encrypted_data: %s\nkey_identifier: %s\n", result.EncryptedData, result.KeyIdentifier)
			})
		},
	}
	cmd.Flags().StringVar(&dataType, "type", "STRING", "Data type: STRING, NUMBER, BOOLEAN, DATE, OBJECT, ARRAY")
	cmd.Flags().StringVar(&aad, "context", "", "Encryption context, e.g. User:email")
	return cmd
}

// decryptCmd は単一値の復号コマンド。
func decryptCmd() *cobra.Command {
	var keyIdentifier, dataType, aad string
	cmd := &cobra.Command{
		Use:   "decrypt ENCRYPTED_DATA",
		Short: "Decrypt a single value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dt, err := domain.ParseDataType(strings.ToUpper(dataType))
			if err != nil {
				return err
			}

			body, err := callAPI(http.MethodPost, "/v1/fields/decrypt", map[string]any{
				"encrypted_data": args[0],
				"key_identifier": keyIdentifier,
				"data_type":      string(dt),
				"context":        aad,
			}, http.StatusOK)
			if err != nil {
				return err
			}

			var result struct {
				Value json.RawMessage `json:"value"`
			}
			return printResult(cmd, body, &result, func(w io.Writer) {
				var s string
				if err := json.Unmarshal(result.Value, &s); err == nil {
					fmt.Fprintln(w, s)
					return
				}
				fmt.Fprintln(w, string(result.Value))
			})
		},
	}
	cmd.Flags().StringVar(&keyIdentifier, "key", "", "Key identifier (required)")
	cmd.Flags().StringVar(&dataType, "type", "STRING", "Data type: STRING, NUMBER, BOOLEAN, DATE, OBJECT, ARRAY")
	cmd.Flags().StringVar(&aad, "context", "", "Encryption context used at encryption time")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

// maskCmd はローカルで値をマスキングする。APIには接続しない。
func maskCmd() *cobra.Command {
	var maskingType, pattern string
	cmd := &cobra.Command{
		Use:   "mask VALUE",
		Short: "Mask a value locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, ok := masking.ParseType(maskingType)
			if !ok {
				return fmt.Errorf("unknown masking type %q", maskingType)
			}
			masked := masking.Value(args[0], t, pattern)
			if output == "json" {
				data, err := json.Marshal(map[string]string{"masked": masked})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), masked)
			return nil
		},
	}
	cmd.Flags().StringVar(&maskingType, "type", "", "Masking type: EMAIL, PHONE, NAME, ADDRESS, CREDIT_CARD, PASSPORT, NATIONAL_ID, DATE_OF_BIRTH, CUSTOM (required)")
	cmd.Flags().StringVar(&pattern, "pattern", "", "Pattern for CUSTOM masking (X=keep, C=mask, other=literal)")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}
