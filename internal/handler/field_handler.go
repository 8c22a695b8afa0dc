package handler

import (
	"errors"
	"net/http"

	"field-protection-service/internal/domain"
	"field-protection-service/internal/middleware"
	"field-protection-service/internal/usecase"
	"field-protection-service/pkg/httputil"
)

// FieldHandler は単一値の暗号化・復号のHTTPハンドラ。
type FieldHandler struct {
	cipher *usecase.FieldCipher
}

// NewFieldHandler は新しいFieldHandlerを生成する。
func NewFieldHandler(cipher *usecase.FieldCipher) *FieldHandler {
	return &FieldHandler{cipher: cipher}
}

// EncryptRequest は暗号化リクエストの形式。
type EncryptRequest struct {
	Value    any    `json:"value"`
	DataType string `json:"data_type"`
	Context  string `json:"context,omitempty"`
}

// CiphertextRequest は復号・再暗号化リクエストの形式。
type CiphertextRequest struct {
	EncryptedData string `json:"encrypted_data"`
	KeyIdentifier string `json:"key_identifier"`
	DataType      string `json:"data_type"`
	Context       string `json:"context,omitempty"`
}

// EncryptedValueResponse は暗号化結果のレスポンス形式。
type EncryptedValueResponse struct {
	EncryptedData string `json:"encrypted_data"`
	KeyIdentifier string `json:"key_identifier"`
	DataType      string `json:"data_type"`
}

// DecryptResponse は復号結果のレスポンス形式。
type DecryptResponse struct {
	Value any `json:"value"`
}

func toEncryptedValueResponse(v *domain.EncryptedValue) EncryptedValueResponse {
	return EncryptedValueResponse{
		EncryptedData: v.EncryptedData,
		KeyIdentifier: v.KeyIdentifier,
		DataType:      string(v.DataType),
	}
}

func (req *CiphertextRequest) validate() (domain.DataType, error) {
	if req.EncryptedData == "" || req.KeyIdentifier == "" {
		return "", errors.New("encrypted_data and key_identifier are required")
	}
	return domain.ParseDataType(req.DataType)
}

// Encrypt は値を暗号化する。
func (h *FieldHandler) Encrypt(w http.ResponseWriter, r *http.Request) {
	var req EncryptRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	dataType, err := domain.ParseDataType(req.DataType)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.Value == nil {
		writeBadRequest(w, errors.New("value is required"))
		return
	}

	encrypted, err := h.cipher.EncryptTyped(r.Context(), req.Value, dataType, req.Context)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, toEncryptedValueResponse(encrypted))
}

// Decrypt は暗号文を復号する。
func (h *FieldHandler) Decrypt(w http.ResponseWriter, r *http.Request) {
	var req CiphertextRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	dataType, err := req.validate()
	if err != nil {
		if errors.Is(err, domain.ErrInvalidDataType) {
			writeError(w, r, err)
			return
		}
		writeBadRequest(w, err)
		return
	}

	value, err := h.cipher.DecryptTyped(r.Context(), req.EncryptedData, req.KeyIdentifier, dataType, req.Context)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "DECRYPT_FIELD", req.KeyIdentifier, req.Context, middleware.ResultFailed)
		writeError(w, r, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "DECRYPT_FIELD", req.KeyIdentifier, req.Context, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusOK, DecryptResponse{Value: value})
}

// Rotate は暗号文を現在の有効鍵で再暗号化する。
func (h *FieldHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	var req CiphertextRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	dataType, err := req.validate()
	if err != nil {
		if errors.Is(err, domain.ErrInvalidDataType) {
			writeError(w, r, err)
			return
		}
		writeBadRequest(w, err)
		return
	}

	rotated, err := h.cipher.RotateKey(r.Context(), req.EncryptedData, req.KeyIdentifier, dataType, req.Context)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "ROTATE_FIELD", req.KeyIdentifier, req.Context, middleware.ResultFailed)
		writeError(w, r, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "ROTATE_FIELD", rotated.KeyIdentifier, req.Context, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusOK, toEncryptedValueResponse(rotated))
}
