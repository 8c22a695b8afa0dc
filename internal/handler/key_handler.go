// Package handler はHTTPハンドラを提供する。
package handler

import (
	"net/http"
	"time"

	"field-protection-service/internal/domain"
	"field-protection-service/internal/middleware"
	"field-protection-service/internal/usecase"
	"field-protection-service/pkg/httputil"
)

// KeyHandler は鍵管理のHTTPハンドラ。鍵素材は返さない。
type KeyHandler struct {
	service *usecase.KeyService
}

// NewKeyHandler は新しいKeyHandlerを生成する。
func NewKeyHandler(service *usecase.KeyService) *KeyHandler {
	return &KeyHandler{service: service}
}

// KeyMetadataResponse は鍵メタデータのレスポンス形式。
type KeyMetadataResponse struct {
	KeyIdentifier string  `json:"key_identifier"`
	IsActive      bool    `json:"is_active"`
	CreatedAt     string  `json:"created_at"`
	RotationDate  string  `json:"rotation_date"`
	LastUsedAt    *string `json:"last_used_at,omitempty"`
}

// ActiveKeyResponse は有効鍵の状態のレスポンス形式。
type ActiveKeyResponse struct {
	KeyMetadataResponse
	RotationDue bool `json:"rotation_due"`
}

// KeyListResponse は鍵一覧のレスポンス形式。
type KeyListResponse struct {
	Keys []KeyMetadataResponse `json:"keys"`
}

func toKeyMetadataResponse(m *domain.KeyMetadata) KeyMetadataResponse {
	resp := KeyMetadataResponse{
		KeyIdentifier: m.KeyIdentifier,
		IsActive:      m.IsActive,
		CreatedAt:     m.CreatedAt.UTC().Format(time.RFC3339),
		RotationDate:  m.RotationDate.UTC().Format(time.RFC3339),
	}
	if m.LastUsedAt != nil {
		s := m.LastUsedAt.UTC().Format(time.RFC3339)
		resp.LastUsedAt = &s
	}
	return resp
}

// ListKeys は全世代の鍵メタデータを取得する。
func (h *KeyHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.service.ListKeys(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	response := KeyListResponse{
		Keys: make([]KeyMetadataResponse, len(keys)),
	}
	for i, k := range keys {
		response.Keys[i] = toKeyMetadataResponse(k)
	}
	httputil.JSON(w, http.StatusOK, response)
}

// GetActiveKey は有効鍵のメタデータとローテーション期限の状態を取得する。
func (h *KeyHandler) GetActiveKey(w http.ResponseWriter, r *http.Request) {
	metadata, due, err := h.service.ActiveKeyStatus(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, ActiveKeyResponse{
		KeyMetadataResponse: toKeyMetadataResponse(metadata),
		RotationDue:         due,
	})
}

// RotateKey は新しい鍵を生成して有効鍵を切り替える。
func (h *KeyHandler) RotateKey(w http.ResponseWriter, r *http.Request) {
	metadata, err := h.service.RotateActiveKey(r.Context())
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "ROTATE_KEY", "", "", middleware.ResultFailed)
		writeError(w, r, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "ROTATE_KEY", metadata.KeyIdentifier, "", middleware.ResultSuccess)
	httputil.JSON(w, http.StatusCreated, toKeyMetadataResponse(metadata))
}
