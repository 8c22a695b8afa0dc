package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"field-protection-service/internal/domain"
	"field-protection-service/internal/middleware"
	"field-protection-service/internal/usecase"
	"field-protection-service/pkg/httputil"
	"field-protection-service/pkg/masking"
)

// EntityHandler はフィールド定義に基づくエンティティ単位の保護処理のHTTPハンドラ。
type EntityHandler struct {
	registry *usecase.FieldRegistry
	cipher   *usecase.FieldCipher
}

// NewEntityHandler は新しいEntityHandlerを生成する。
func NewEntityHandler(registry *usecase.FieldRegistry, cipher *usecase.FieldCipher) *EntityHandler {
	return &EntityHandler{registry: registry, cipher: cipher}
}

// EntityRequest はエンティティ処理リクエストの形式。
// Contextはエンティティを識別する関連データの基底（例: "User:123"）。
type EntityRequest struct {
	Entity   domain.Entity                   `json:"entity"`
	Metadata map[string]domain.FieldMetadata `json:"metadata,omitempty"`
	Context  string                          `json:"context,omitempty"`
}

// EntityResponse はエンティティ処理結果のレスポンス形式。
type EntityResponse struct {
	Entity   domain.Entity                   `json:"entity"`
	Metadata map[string]domain.FieldMetadata `json:"metadata,omitempty"`
}

// FieldRulesResponse は表示用のフィールド定義のレスポンス形式。暗号化種別は含めない。
type FieldRulesResponse struct {
	EntityType string                        `json:"entity_type"`
	Fields     map[string]domain.MaskingRule `json:"fields"`
}

// MaskRequest は単一値のマスキングリクエストの形式。
type MaskRequest struct {
	Value       string `json:"value"`
	MaskingType string `json:"masking_type"`
	Pattern     string `json:"pattern,omitempty"`
}

// MaskResponse はマスキング結果のレスポンス形式。
type MaskResponse struct {
	Masked string `json:"masked"`
}

func (h *EntityHandler) decodeEntityRequest(w http.ResponseWriter, r *http.Request) (string, *EntityRequest, bool) {
	entityType := chi.URLParam(r, "entity_type")
	if err := validateEntityType(entityType); err != nil {
		writeError(w, r, err)
		return "", nil, false
	}
	var req EntityRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return "", nil, false
	}
	if req.Entity == nil {
		writeBadRequest(w, errors.New("entity is required"))
		return "", nil, false
	}
	return entityType, &req, true
}

// GetFields はエンティティ種別のマスキング定義を取得する。
func (h *EntityHandler) GetFields(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entity_type")
	if err := validateEntityType(entityType); err != nil {
		writeError(w, r, err)
		return
	}

	rules, err := h.registry.GetMaskingRules(r.Context(), entityType)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, FieldRulesResponse{
		EntityType: entityType,
		Fields:     rules,
	})
}

// Encrypt は登録済みの保護対象フィールドを暗号化する。
func (h *EntityHandler) Encrypt(w http.ResponseWriter, r *http.Request) {
	entityType, req, ok := h.decodeEntityRequest(w, r)
	if !ok {
		return
	}

	defs, err := h.registry.GetDefinitions(r.Context(), entityType)
	if err != nil {
		writeError(w, r, err)
		return
	}
	entity, metadata, err := h.cipher.EncryptFields(r.Context(), req.Entity, usecase.EncryptionFields(defs), req.Context)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, EntityResponse{Entity: entity, Metadata: metadata})
}

// Decrypt はメタデータに記載されたフィールドを復号する。
func (h *EntityHandler) Decrypt(w http.ResponseWriter, r *http.Request) {
	entityType, req, ok := h.decodeEntityRequest(w, r)
	if !ok {
		return
	}

	entity, err := h.cipher.DecryptFields(r.Context(), req.Entity, req.Metadata, req.Context)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "DECRYPT_ENTITY", entityType, req.Context, middleware.ResultFailed)
		writeError(w, r, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "DECRYPT_ENTITY", entityType, req.Context, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusOK, EntityResponse{Entity: entity})
}

// Rotate はメタデータに記載されたフィールドを現在の有効鍵で再暗号化する。
func (h *EntityHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	entityType, req, ok := h.decodeEntityRequest(w, r)
	if !ok {
		return
	}

	entity, metadata, err := h.cipher.RotateFields(r.Context(), req.Entity, req.Metadata, req.Context)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "ROTATE_ENTITY", entityType, req.Context, middleware.ResultFailed)
		writeError(w, r, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "ROTATE_ENTITY", entityType, req.Context, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusOK, EntityResponse{Entity: entity, Metadata: metadata})
}

// Mask は平文のエンティティを登録済みのマスキング定義でマスクする。
func (h *EntityHandler) Mask(w http.ResponseWriter, r *http.Request) {
	entityType, req, ok := h.decodeEntityRequest(w, r)
	if !ok {
		return
	}

	rules, err := h.registry.GetMaskingRules(r.Context(), entityType)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, EntityResponse{Entity: usecase.MaskEntity(req.Entity, rules)})
}

// MaskValue は単一値をマスクする。
func (h *EntityHandler) MaskValue(w http.ResponseWriter, r *http.Request) {
	var req MaskRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	maskingType, ok := masking.ParseType(req.MaskingType)
	if !ok {
		writeError(w, r, domain.ErrInvalidMaskingType)
		return
	}
	httputil.JSON(w, http.StatusOK, MaskResponse{
		Masked: masking.Value(req.Value, maskingType, req.Pattern),
	})
}
