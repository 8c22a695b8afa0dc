package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"field-protection-service/internal/domain"
)

// AccessRepository はアクセス判定に必要な属性を取得するインターフェース。
// 見つからない場合はいずれも (nil, nil) を返す。
type AccessRepository interface {
	FindUser(ctx context.Context, id string) (*domain.User, error)
	FindCase(ctx context.Context, id string) (*domain.Case, error)
	FindDocument(ctx context.Context, id string) (*domain.Document, error)
	FindForm(ctx context.Context, id string) (*domain.Form, error)
	FindReport(ctx context.Context, id string) (*domain.Report, error)
	HasActiveConsultation(ctx context.Context, expertID, caseID string) (bool, error)
	FindGroupPermissions(ctx context.Context, userID string) ([]string, error)
}

type resourcePolicy func(ctx context.Context, user *domain.User, perms permissionSet, req domain.AccessRequest) (domain.AccessDecision, error)

// AccessService はロール・権限・リソース属性に基づいてアクセス可否を判定する。
type AccessService struct {
	repo     AccessRepository
	metrics  Metrics
	roles    RolePermissions
	policies map[domain.ResourceType]resourcePolicy
}

// NewAccessService は既定の権限表を使うAccessServiceを生成する。
func NewAccessService(repo AccessRepository, metrics Metrics) *AccessService {
	s := &AccessService{
		repo:    repo,
		metrics: metricsOrNop(metrics),
		roles:   DefaultRolePermissions(),
	}
	s.policies = map[domain.ResourceType]resourcePolicy{
		domain.ResourceUser:     s.checkUser,
		domain.ResourceCase:     s.checkCase,
		domain.ResourceDocument: s.checkDocument,
		domain.ResourceForm:     s.checkForm,
		domain.ResourceReport:   s.checkReport,
	}
	return s
}

// WithRolePermissions は権限表を差し替える。
func (s *AccessService) WithRolePermissions(roles RolePermissions) *AccessService {
	s.roles = roles
	return s
}

// ResolvePermissions はユーザーのロール権限と所属権限グループの権限を合わせて返す。
func (s *AccessService) ResolvePermissions(ctx context.Context, userID string) ([]string, error) {
	user, err := s.repo.FindUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("finding user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %s", domain.ErrResourceNotFound, userID)
	}
	perms, err := s.permissions(ctx, user)
	if err != nil {
		return nil, err
	}
	return perms.sorted(), nil
}

func (s *AccessService) permissions(ctx context.Context, user *domain.User) (permissionSet, error) {
	groups, err := s.repo.FindGroupPermissions(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("finding group permissions: %w", err)
	}
	return newPermissionSet(s.roles[user.Role], groups), nil
}

// CheckAccess はアクセス要求を判定する。
// リソースが見つからない場合はエラーではなく拒否として返す。エラーは属性の取得失敗時のみ。
func (s *AccessService) CheckAccess(ctx context.Context, req domain.AccessRequest) (decision domain.AccessDecision, err error) {
	defer func() {
		if err != nil {
			return
		}
		s.metrics.AccessDecision(string(req.ResourceType), string(req.Action), decision.Allowed)
		slog.InfoContext(ctx, "access decision",
			"user_id", req.UserID,
			"resource_type", req.ResourceType,
			"resource_id", req.ResourceID,
			"action", req.Action,
			"allowed", decision.Allowed,
			"reason", decision.Reason,
		)
	}()

	user, err := s.repo.FindUser(ctx, req.UserID)
	if err != nil {
		return domain.AccessDecision{}, fmt.Errorf("finding user: %w", err)
	}
	if user == nil {
		return domain.Deny("User not found"), nil
	}
	if user.Role == domain.RoleAdmin {
		return domain.Allow("Admin has full access"), nil
	}

	policy, ok := s.policies[req.ResourceType]
	if !ok {
		return domain.Deny("Unsupported resource type %s", req.ResourceType), nil
	}

	perms, err := s.permissions(ctx, user)
	if err != nil {
		return domain.AccessDecision{}, err
	}
	return policy(ctx, user, perms, req)
}

func (s *AccessService) checkUser(ctx context.Context, user *domain.User, perms permissionSet, req domain.AccessRequest) (domain.AccessDecision, error) {
	target, err := s.repo.FindUser(ctx, req.ResourceID)
	if err != nil {
		return domain.AccessDecision{}, fmt.Errorf("finding user: %w", err)
	}
	if target == nil {
		return domain.Deny("User not found"), nil
	}

	self := target.ID == user.ID
	if self && (req.Action == domain.ActionRead || req.Action == domain.ActionWrite) {
		return domain.Allow("Users can access their own profile"), nil
	}
	if perms.has(nounUser, req.Action, false) {
		return domain.Allow("Granted by " + Permission(nounUser, req.Action, false)), nil
	}
	if self && perms.has(nounUser, req.Action, true) {
		return domain.Allow("Granted by " + Permission(nounUser, req.Action, true)), nil
	}
	return domain.Deny("Missing permission %s", Permission(nounUser, req.Action, false)), nil
}

func (s *AccessService) checkCase(ctx context.Context, user *domain.User, perms permissionSet, req domain.AccessRequest) (domain.AccessDecision, error) {
	c, err := s.repo.FindCase(ctx, req.ResourceID)
	if err != nil {
		return domain.AccessDecision{}, fmt.Errorf("finding case: %w", err)
	}
	if c == nil {
		return domain.Deny("Case not found"), nil
	}
	return s.checkCaseScoped(ctx, user, perms, c, nounCase, req.Action, true)
}

func (s *AccessService) checkDocument(ctx context.Context, user *domain.User, perms permissionSet, req domain.AccessRequest) (domain.AccessDecision, error) {
	doc, err := s.repo.FindDocument(ctx, req.ResourceID)
	if err != nil {
		return domain.AccessDecision{}, fmt.Errorf("finding document: %w", err)
	}
	if doc == nil {
		return domain.Deny("Document not found"), nil
	}
	return s.checkParentCase(ctx, user, perms, doc.CaseID, nounDocument, req.Action)
}

func (s *AccessService) checkForm(ctx context.Context, user *domain.User, perms permissionSet, req domain.AccessRequest) (domain.AccessDecision, error) {
	form, err := s.repo.FindForm(ctx, req.ResourceID)
	if err != nil {
		return domain.AccessDecision{}, fmt.Errorf("finding form: %w", err)
	}
	if form == nil {
		return domain.Deny("Form not found"), nil
	}
	return s.checkParentCase(ctx, user, perms, form.CaseID, nounForm, req.Action)
}

// checkParentCase は書類・フォームを所属案件の属性で判定する。ステータスによる制限はかけない。
func (s *AccessService) checkParentCase(ctx context.Context, user *domain.User, perms permissionSet, caseID, noun string, action domain.Action) (domain.AccessDecision, error) {
	c, err := s.repo.FindCase(ctx, caseID)
	if err != nil {
		return domain.AccessDecision{}, fmt.Errorf("finding case: %w", err)
	}
	if c == nil {
		return domain.Deny("Case not found"), nil
	}
	return s.checkCaseScoped(ctx, user, perms, c, noun, action, false)
}

func (s *AccessService) checkCaseScoped(ctx context.Context, user *domain.User, perms permissionSet, c *domain.Case, noun string, action domain.Action, gateStatus bool) (domain.AccessDecision, error) {
	switch user.Role {
	case domain.RoleApplicant:
		if c.ApplicantID != user.ID {
			return domain.Deny("Applicants can only access their own cases"), nil
		}
		if gateStatus && (action == domain.ActionWrite || action == domain.ActionSubmit) && !c.Status.Editable() {
			return domain.Deny("Case cannot be modified in status %s", c.Status), nil
		}
		if perms.hasAny(noun, action) {
			return domain.Allow("Applicant owns the case"), nil
		}
		return domain.Deny("Missing permission %s", Permission(noun, action, true)), nil

	case domain.RoleAgent:
		if action != domain.ActionRead && c.AgentID != user.ID {
			return domain.Deny("Agent is not assigned to this case"), nil
		}
		if perms.has(noun, action, false) {
			return domain.Allow("Granted by " + Permission(noun, action, false)), nil
		}
		return domain.Deny("Missing permission %s", Permission(noun, action, false)), nil

	case domain.RoleExpert:
		if action != domain.ActionRead {
			return domain.Deny("Experts have read-only access"), nil
		}
		active, err := s.repo.HasActiveConsultation(ctx, user.ID, c.ID)
		if err != nil {
			return domain.AccessDecision{}, fmt.Errorf("checking consultation: %w", err)
		}
		if !active {
			return domain.Deny("No active consultation for this case"), nil
		}
		return domain.Allow("Active consultation for this case"), nil
	}
	return domain.Deny("Role %s has no access to %s", user.Role, noun), nil
}

func (s *AccessService) checkReport(ctx context.Context, user *domain.User, perms permissionSet, req domain.AccessRequest) (domain.AccessDecision, error) {
	report, err := s.repo.FindReport(ctx, req.ResourceID)
	if err != nil {
		return domain.AccessDecision{}, fmt.Errorf("finding report: %w", err)
	}
	if report == nil {
		return domain.Deny("Report not found"), nil
	}
	if report.CreatedByID == user.ID {
		return domain.Allow("Report creator"), nil
	}
	if perms.has(nounAnalytics, req.Action, false) {
		return domain.Allow("Granted by " + Permission(nounAnalytics, req.Action, false)), nil
	}
	return domain.Deny("Missing permission %s", Permission(nounAnalytics, req.Action, false)), nil
}
