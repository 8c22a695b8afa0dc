package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"field-protection-service/internal/domain"
	"field-protection-service/internal/middleware"
	"field-protection-service/internal/usecase"
	"field-protection-service/pkg/httputil"
)

// AccessHandler はアクセス判定のHTTPハンドラ。
type AccessHandler struct {
	service *usecase.AccessService
}

// NewAccessHandler は新しいAccessHandlerを生成する。
func NewAccessHandler(service *usecase.AccessService) *AccessHandler {
	return &AccessHandler{service: service}
}

// AccessCheckRequest はアクセス判定リクエストの形式。
type AccessCheckRequest struct {
	UserID       string `json:"user_id"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	Action       string `json:"action"`
}

// AccessDecisionResponse はアクセス判定結果のレスポンス形式。
// 拒否も200で返す。
type AccessDecisionResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// PermissionsResponse は解決済み権限のレスポンス形式。
type PermissionsResponse struct {
	UserID      string   `json:"user_id"`
	Permissions []string `json:"permissions"`
}

// Check はアクセス可否を判定する。
func (h *AccessHandler) Check(w http.ResponseWriter, r *http.Request) {
	var body AccessCheckRequest
	if err := httputil.DecodeJSON(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	if body.UserID == "" || body.ResourceID == "" {
		writeBadRequest(w, errors.New("user_id and resource_id are required"))
		return
	}
	resourceType, err := domain.ParseResourceType(body.ResourceType)
	if err != nil {
		writeError(w, r, err)
		return
	}
	action, err := domain.ParseAction(body.Action)
	if err != nil {
		writeError(w, r, err)
		return
	}

	decision, err := h.service.CheckAccess(r.Context(), domain.AccessRequest{
		UserID:       body.UserID,
		ResourceType: resourceType,
		ResourceID:   body.ResourceID,
		Action:       action,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	result := middleware.ResultSuccess
	if !decision.Allowed {
		result = middleware.ResultDenied
	}
	middleware.WriteAuditLog(r.Context(), "CHECK_ACCESS", body.UserID,
		string(resourceType)+":"+body.ResourceID+":"+string(action), result)
	httputil.JSON(w, http.StatusOK, AccessDecisionResponse{
		Allowed: decision.Allowed,
		Reason:  decision.Reason,
	})
}

// GetPermissions はユーザーの解決済み権限を取得する。
func (h *AccessHandler) GetPermissions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	perms, err := h.service.ResolvePermissions(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, PermissionsResponse{
		UserID:      userID,
		Permissions: perms,
	})
}
