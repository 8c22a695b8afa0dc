package usecase

import (
	"sort"
	"strings"

	"field-protection-service/internal/domain"
)

// 権限文字列は "<noun>:<action>" または所有者限定の "<noun>:<action>:self"。
const (
	nounUser      = "user"
	nounCase      = "case"
	nounDocument  = "document"
	nounForm      = "form"
	nounAnalytics = "analytics"
)

var allNouns = []string{nounUser, nounCase, nounDocument, nounForm, nounAnalytics}

var allActions = []domain.Action{
	domain.ActionRead, domain.ActionWrite, domain.ActionDelete, domain.ActionApprove,
	domain.ActionReject, domain.ActionAssign, domain.ActionSubmit,
}

// Permission は権限文字列を組み立てる。
func Permission(noun string, action domain.Action, self bool) string {
	p := noun + ":" + strings.ToLower(string(action))
	if self {
		p += ":self"
	}
	return p
}

// RolePermissions はロールごとの基本権限。
type RolePermissions map[domain.Role][]string

// DefaultRolePermissions はロールごとの既定の権限表。
// ADMINは判定時に常に許可されるため表には全権限を展開する。
func DefaultRolePermissions() RolePermissions {
	admin := make([]string, 0, len(allNouns)*len(allActions))
	for _, n := range allNouns {
		for _, a := range allActions {
			admin = append(admin, Permission(n, a, false))
		}
	}

	return RolePermissions{
		domain.RoleAdmin: admin,
		domain.RoleAgent: {
			"user:read",
			"case:read", "case:write", "case:submit", "case:approve", "case:reject",
			"document:read", "document:write", "document:approve", "document:reject",
			"form:read", "form:write", "form:submit",
			"analytics:read",
		},
		domain.RoleExpert: {
			"user:read:self", "user:write:self",
			"case:read", "document:read", "form:read",
		},
		domain.RoleApplicant: {
			"user:read:self", "user:write:self",
			"case:read:self", "case:write:self", "case:submit:self",
			"document:read:self", "document:write:self", "document:delete:self",
			"form:read:self", "form:write:self", "form:submit:self",
		},
	}
}

// permissionSet はロール権限と権限グループ権限の和集合。
type permissionSet map[string]struct{}

func newPermissionSet(groups ...[]string) permissionSet {
	set := permissionSet{}
	for _, g := range groups {
		for _, p := range g {
			set[strings.ToLower(strings.TrimSpace(p))] = struct{}{}
		}
	}
	return set
}

func (s permissionSet) has(noun string, action domain.Action, self bool) bool {
	_, ok := s[Permission(noun, action, self)]
	return ok
}

// hasAny は全体権限または所有者限定権限のいずれかを持つかを返す。
func (s permissionSet) hasAny(noun string, action domain.Action) bool {
	return s.has(noun, action, false) || s.has(noun, action, true)
}

func (s permissionSet) sorted() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
