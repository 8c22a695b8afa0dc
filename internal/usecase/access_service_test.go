package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"field-protection-service/internal/domain"
)

type mockAccessRepository struct {
	users         map[string]*domain.User
	cases         map[string]*domain.Case
	documents     map[string]*domain.Document
	forms         map[string]*domain.Form
	reports       map[string]*domain.Report
	consultations map[string]bool // expertID + "/" + caseID
	groups        map[string][]string
	err           error
}

func (m *mockAccessRepository) FindUser(ctx context.Context, id string) (*domain.User, error) {
	return m.users[id], m.err
}

func (m *mockAccessRepository) FindCase(ctx context.Context, id string) (*domain.Case, error) {
	return m.cases[id], m.err
}

func (m *mockAccessRepository) FindDocument(ctx context.Context, id string) (*domain.Document, error) {
	return m.documents[id], m.err
}

func (m *mockAccessRepository) FindForm(ctx context.Context, id string) (*domain.Form, error) {
	return m.forms[id], m.err
}

func (m *mockAccessRepository) FindReport(ctx context.Context, id string) (*domain.Report, error) {
	return m.reports[id], m.err
}

func (m *mockAccessRepository) HasActiveConsultation(ctx context.Context, expertID, caseID string) (bool, error) {
	return m.consultations[expertID+"/"+caseID], m.err
}

func (m *mockAccessRepository) FindGroupPermissions(ctx context.Context, userID string) ([]string, error) {
	return m.groups[userID], m.err
}

func newAccessFixture() *mockAccessRepository {
	return &mockAccessRepository{
		users: map[string]*domain.User{
			"admin":      {ID: "admin", Role: domain.RoleAdmin},
			"applicant":  {ID: "applicant", Role: domain.RoleApplicant},
			"applicant2": {ID: "applicant2", Role: domain.RoleApplicant},
			"agent":      {ID: "agent", Role: domain.RoleAgent},
			"agent2":     {ID: "agent2", Role: domain.RoleAgent},
			"expert":     {ID: "expert", Role: domain.RoleExpert},
			"analyst":    {ID: "analyst", Role: domain.RoleExpert},
		},
		cases: map[string]*domain.Case{
			"draft":    {ID: "draft", ApplicantID: "applicant", AgentID: "agent", Status: domain.CaseStatusDraft},
			"info":     {ID: "info", ApplicantID: "applicant", AgentID: "agent", Status: domain.CaseStatusAdditionalInfoRequired},
			"approved": {ID: "approved", ApplicantID: "applicant", AgentID: "agent", Status: domain.CaseStatusApproved},
		},
		documents: map[string]*domain.Document{
			"doc":    {ID: "doc", CaseID: "approved"},
			"orphan": {ID: "orphan", CaseID: "gone"},
		},
		forms: map[string]*domain.Form{
			"form": {ID: "form", CaseID: "draft"},
		},
		reports: map[string]*domain.Report{
			"report": {ID: "report", CreatedByID: "agent2"},
		},
		consultations: map[string]bool{"expert/approved": true},
		groups: map[string][]string{
			"analyst": {"analytics:read", "Analytics:Read"},
		},
	}
}

func check(t *testing.T, svc *AccessService, userID string, rt domain.ResourceType, resourceID string, action domain.Action) domain.AccessDecision {
	t.Helper()
	decision, err := svc.CheckAccess(context.Background(), domain.AccessRequest{
		UserID:       userID,
		ResourceType: rt,
		ResourceID:   resourceID,
		Action:       action,
	})
	require.NoError(t, err)
	return decision
}

func TestAccessService_ApplicantCaseStatus(t *testing.T) {
	svc := NewAccessService(newAccessFixture(), nil)

	// 承認済みの案件は編集できず、理由にステータスが含まれる
	d := check(t, svc, "applicant", domain.ResourceCase, "approved", domain.ActionWrite)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, string(domain.CaseStatusApproved))

	d = check(t, svc, "applicant", domain.ResourceCase, "approved", domain.ActionSubmit)
	assert.False(t, d.Allowed)

	// 閲覧はステータスに関係なく可能
	d = check(t, svc, "applicant", domain.ResourceCase, "approved", domain.ActionRead)
	assert.True(t, d.Allowed)

	d = check(t, svc, "applicant", domain.ResourceCase, "draft", domain.ActionWrite)
	assert.True(t, d.Allowed, d.Reason)

	d = check(t, svc, "applicant", domain.ResourceCase, "info", domain.ActionSubmit)
	assert.True(t, d.Allowed, d.Reason)

	// 他人の案件
	d = check(t, svc, "applicant2", domain.ResourceCase, "draft", domain.ActionRead)
	assert.False(t, d.Allowed)

	// 権限表にない操作
	d = check(t, svc, "applicant", domain.ResourceCase, "draft", domain.ActionApprove)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "case:approve:self")
}

func TestAccessService_ApplicantWithoutPermission(t *testing.T) {
	roles := DefaultRolePermissions()
	roles[domain.RoleApplicant] = []string{"case:read:self"}
	svc := NewAccessService(newAccessFixture(), nil).WithRolePermissions(roles)

	d := check(t, svc, "applicant", domain.ResourceCase, "draft", domain.ActionWrite)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "case:write:self")
}

func TestAccessService_AgentAssignment(t *testing.T) {
	svc := NewAccessService(newAccessFixture(), nil)

	// 担当外のエージェントは閲覧以外の操作ができない
	for _, action := range []domain.Action{domain.ActionWrite, domain.ActionApprove, domain.ActionReject, domain.ActionSubmit, domain.ActionDelete} {
		d := check(t, svc, "agent2", domain.ResourceCase, "draft", action)
		assert.False(t, d.Allowed, action)
	}
	d := check(t, svc, "agent2", domain.ResourceCase, "draft", domain.ActionRead)
	assert.True(t, d.Allowed)

	d = check(t, svc, "agent", domain.ResourceCase, "approved", domain.ActionApprove)
	assert.True(t, d.Allowed, d.Reason)

	// 担当でも権限表にない操作は拒否
	d = check(t, svc, "agent", domain.ResourceCase, "draft", domain.ActionDelete)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "case:delete")
}

func TestAccessService_Expert(t *testing.T) {
	svc := NewAccessService(newAccessFixture(), nil)

	d := check(t, svc, "expert", domain.ResourceCase, "approved", domain.ActionRead)
	assert.True(t, d.Allowed)

	d = check(t, svc, "expert", domain.ResourceCase, "approved", domain.ActionWrite)
	assert.False(t, d.Allowed)

	d = check(t, svc, "expert", domain.ResourceCase, "draft", domain.ActionRead)
	assert.False(t, d.Allowed)

	d = check(t, svc, "expert", domain.ResourceDocument, "doc", domain.ActionRead)
	assert.True(t, d.Allowed)
}

func TestAccessService_AdminAlwaysAllowed(t *testing.T) {
	svc := NewAccessService(newAccessFixture(), nil)

	for _, rt := range []domain.ResourceType{domain.ResourceUser, domain.ResourceCase, domain.ResourceDocument, domain.ResourceForm, domain.ResourceReport} {
		for _, id := range []string{"approved", "missing"} {
			d := check(t, svc, "admin", rt, id, domain.ActionDelete)
			assert.True(t, d.Allowed, "%s/%s", rt, id)
		}
	}
}

func TestAccessService_NotFound(t *testing.T) {
	svc := NewAccessService(newAccessFixture(), nil)

	tests := []struct {
		userID string
		rt     domain.ResourceType
		id     string
		reason string
	}{
		{"agent", domain.ResourceCase, "missing", "Case not found"},
		{"agent", domain.ResourceDocument, "missing", "Document not found"},
		{"agent", domain.ResourceDocument, "orphan", "Case not found"},
		{"agent", domain.ResourceForm, "missing", "Form not found"},
		{"agent", domain.ResourceReport, "missing", "Report not found"},
		{"agent", domain.ResourceUser, "missing", "User not found"},
		{"nobody", domain.ResourceCase, "draft", "User not found"},
	}
	for _, tt := range tests {
		d := check(t, svc, tt.userID, tt.rt, tt.id, domain.ActionRead)
		assert.False(t, d.Allowed)
		assert.Equal(t, tt.reason, d.Reason)
	}
}

func TestAccessService_Documents(t *testing.T) {
	svc := NewAccessService(newAccessFixture(), nil)

	// 書類は案件ステータスによる制限を受けない
	d := check(t, svc, "applicant", domain.ResourceDocument, "doc", domain.ActionWrite)
	assert.True(t, d.Allowed, d.Reason)

	d = check(t, svc, "applicant2", domain.ResourceDocument, "doc", domain.ActionRead)
	assert.False(t, d.Allowed)

	d = check(t, svc, "agent", domain.ResourceDocument, "doc", domain.ActionApprove)
	assert.True(t, d.Allowed)

	d = check(t, svc, "agent2", domain.ResourceDocument, "doc", domain.ActionApprove)
	assert.False(t, d.Allowed)

	d = check(t, svc, "applicant", domain.ResourceForm, "form", domain.ActionSubmit)
	assert.True(t, d.Allowed)
}

func TestAccessService_Users(t *testing.T) {
	svc := NewAccessService(newAccessFixture(), nil)

	d := check(t, svc, "applicant", domain.ResourceUser, "applicant", domain.ActionWrite)
	assert.True(t, d.Allowed)

	d = check(t, svc, "applicant", domain.ResourceUser, "applicant2", domain.ActionRead)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "user:read")

	d = check(t, svc, "agent", domain.ResourceUser, "applicant", domain.ActionRead)
	assert.True(t, d.Allowed)

	d = check(t, svc, "agent", domain.ResourceUser, "applicant", domain.ActionDelete)
	assert.False(t, d.Allowed)
}

func TestAccessService_Reports(t *testing.T) {
	svc := NewAccessService(newAccessFixture(), nil)

	d := check(t, svc, "agent2", domain.ResourceReport, "report", domain.ActionDelete)
	assert.True(t, d.Allowed, "creator")

	d = check(t, svc, "agent", domain.ResourceReport, "report", domain.ActionRead)
	assert.True(t, d.Allowed, "analytics:read from role")

	d = check(t, svc, "analyst", domain.ResourceReport, "report", domain.ActionRead)
	assert.True(t, d.Allowed, "analytics:read from permission group")

	d = check(t, svc, "expert", domain.ResourceReport, "report", domain.ActionRead)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "analytics:read")
}

func TestAccessService_ResolvePermissions(t *testing.T) {
	svc := NewAccessService(newAccessFixture(), nil)

	perms, err := svc.ResolvePermissions(context.Background(), "analyst")
	require.NoError(t, err)
	// ロール権限とグループ権限の和集合（重複なし）
	assert.Equal(t, []string{
		"analytics:read", "case:read", "document:read", "form:read", "user:read:self", "user:write:self",
	}, perms)

	_, err = svc.ResolvePermissions(context.Background(), "nobody")
	assert.ErrorIs(t, err, domain.ErrResourceNotFound)
}

func TestAccessService_RepositoryError(t *testing.T) {
	repo := newAccessFixture()
	repo.err = errors.New("db down")
	svc := NewAccessService(repo, nil)

	_, err := svc.CheckAccess(context.Background(), domain.AccessRequest{
		UserID: "agent", ResourceType: domain.ResourceCase, ResourceID: "draft", Action: domain.ActionRead,
	})
	assert.Error(t, err)
}

func TestAccessService_RecordsMetrics(t *testing.T) {
	metrics := &recordingMetrics{}
	svc := NewAccessService(newAccessFixture(), metrics)

	check(t, svc, "agent", domain.ResourceCase, "draft", domain.ActionRead)
	check(t, svc, "agent2", domain.ResourceCase, "draft", domain.ActionWrite)
	assert.Equal(t, []bool{true, false}, metrics.decisions)
}

func TestPermission(t *testing.T) {
	assert.Equal(t, "case:write", Permission("case", domain.ActionWrite, false))
	assert.Equal(t, "case:write:self", Permission("case", domain.ActionWrite, true))
}
