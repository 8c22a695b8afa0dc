package domain

import (
	"fmt"
	"strings"
)

// ResourceType はアクセス制御対象のリソース種別。
type ResourceType string

const (
	ResourceUser     ResourceType = "USER"
	ResourceCase     ResourceType = "CASE"
	ResourceDocument ResourceType = "DOCUMENT"
	ResourceForm     ResourceType = "FORM"
	ResourceReport   ResourceType = "REPORT"
)

// ParseResourceType は文字列をResourceTypeに変換する。
func ParseResourceType(s string) (ResourceType, error) {
	switch r := ResourceType(strings.ToUpper(s)); r {
	case ResourceUser, ResourceCase, ResourceDocument, ResourceForm, ResourceReport:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidResourceType, s)
}

// Action はリソースに対する操作。
type Action string

const (
	ActionRead    Action = "READ"
	ActionWrite   Action = "WRITE"
	ActionDelete  Action = "DELETE"
	ActionApprove Action = "APPROVE"
	ActionReject  Action = "REJECT"
	ActionAssign  Action = "ASSIGN"
	ActionSubmit  Action = "SUBMIT"
)

// ParseAction は文字列をActionに変換する。
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToUpper(s)); a {
	case ActionRead, ActionWrite, ActionDelete, ActionApprove, ActionReject, ActionAssign, ActionSubmit:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

// Role はユーザーのロール。
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleAgent     Role = "AGENT"
	RoleExpert    Role = "EXPERT"
	RoleApplicant Role = "APPLICANT"
)

// CaseStatus はビザ案件のステータス。
type CaseStatus string

const (
	CaseStatusDraft                  CaseStatus = "DRAFT"
	CaseStatusSubmitted              CaseStatus = "SUBMITTED"
	CaseStatusInReview               CaseStatus = "IN_REVIEW"
	CaseStatusAdditionalInfoRequired CaseStatus = "ADDITIONAL_INFO_REQUIRED"
	CaseStatusApproved               CaseStatus = "APPROVED"
	CaseStatusRejected               CaseStatus = "REJECTED"
	CaseStatusClosed                 CaseStatus = "CLOSED"
)

// Editable は申請者が案件を編集・提出できるステータスかを返す。
func (s CaseStatus) Editable() bool {
	return s == CaseStatusDraft || s == CaseStatusAdditionalInfoRequired
}

// AccessRequest はアクセス判定の入力。
type AccessRequest struct {
	UserID       string
	ResourceType ResourceType
	ResourceID   string
	Action       Action
}

// AccessDecision はアクセス判定の結果。永続化しない。
type AccessDecision struct {
	Allowed bool
	Reason  string
}

// Allow は許可の判定を返す。
func Allow(reason string) AccessDecision {
	return AccessDecision{Allowed: true, Reason: reason}
}

// Deny は拒否の判定を返す。
func Deny(format string, args ...any) AccessDecision {
	return AccessDecision{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

// User はアクセス判定に必要なユーザー属性。
type User struct {
	ID   string
	Role Role
}

// Case はアクセス判定に必要な案件属性。
type Case struct {
	ID          string
	ApplicantID string
	AgentID     string
	Status      CaseStatus
}

// Document は案件に紐づく書類。
type Document struct {
	ID     string
	CaseID string
}

// Form は案件に紐づく申請フォーム。
type Form struct {
	ID     string
	CaseID string
}

// Report は分析レポート。
type Report struct {
	ID          string
	CreatedByID string
}
