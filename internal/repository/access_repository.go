package repository

import (
	"context"
	"errors"
	"log/slog"

	"gorm.io/gorm"

	"field-protection-service/internal/domain"
)

// 以下のテーブルはケース管理アプリケーションが所有する。本サービスは参照のみ行う。

type userRow struct {
	ID   string
	Role string
}

type caseRow struct {
	ID          string
	ApplicantID string
	AgentID     *string
	Status      string
}

type documentRow struct {
	ID     string
	CaseID string
}

type formRow struct {
	ID     string
	CaseID string
}

type reportRow struct {
	ID          string
	CreatedByID string
}

// activeConsultationStatuses は専門家に案件の閲覧を認める相談ステータス。
var activeConsultationStatuses = []string{"SCHEDULED", "IN_PROGRESS"}

// AccessRepository はアクセス判定に必要な属性の読み取りを提供する。
type AccessRepository struct {
	db *gorm.DB
}

// NewAccessRepository は新しいAccessRepositoryを生成する。
func NewAccessRepository(db *gorm.DB) *AccessRepository {
	return &AccessRepository{db: db}
}

// first はテーブルから1件取得する。存在しない場合はfalseを返す。
func (r *AccessRepository) first(ctx context.Context, table, id string, dest any) (bool, error) {
	err := r.db.WithContext(ctx).Table(table).Where("id = ?", id).Take(dest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		slog.ErrorContext(ctx, "failed to load access attributes",
			"operation", "find_"+table,
			"id", id,
			"error", err,
		)
		return false, err
	}
	return true, nil
}

// FindUser はユーザーを取得する。存在しない場合はnilを返す。
func (r *AccessRepository) FindUser(ctx context.Context, id string) (*domain.User, error) {
	var row userRow
	ok, err := r.first(ctx, "users", id, &row)
	if err != nil || !ok {
		return nil, err
	}
	return &domain.User{ID: row.ID, Role: domain.Role(row.Role)}, nil
}

// FindCase は案件を取得する。存在しない場合はnilを返す。
func (r *AccessRepository) FindCase(ctx context.Context, id string) (*domain.Case, error) {
	var row caseRow
	ok, err := r.first(ctx, "cases", id, &row)
	if err != nil || !ok {
		return nil, err
	}
	c := &domain.Case{ID: row.ID, ApplicantID: row.ApplicantID, Status: domain.CaseStatus(row.Status)}
	if row.AgentID != nil {
		c.AgentID = *row.AgentID
	}
	return c, nil
}

// FindDocument は書類を取得する。存在しない場合はnilを返す。
func (r *AccessRepository) FindDocument(ctx context.Context, id string) (*domain.Document, error) {
	var row documentRow
	ok, err := r.first(ctx, "documents", id, &row)
	if err != nil || !ok {
		return nil, err
	}
	return &domain.Document{ID: row.ID, CaseID: row.CaseID}, nil
}

// FindForm はフォームを取得する。存在しない場合はnilを返す。
func (r *AccessRepository) FindForm(ctx context.Context, id string) (*domain.Form, error) {
	var row formRow
	ok, err := r.first(ctx, "forms", id, &row)
	if err != nil || !ok {
		return nil, err
	}
	return &domain.Form{ID: row.ID, CaseID: row.CaseID}, nil
}

// FindReport はレポートを取得する。存在しない場合はnilを返す。
func (r *AccessRepository) FindReport(ctx context.Context, id string) (*domain.Report, error) {
	var row reportRow
	ok, err := r.first(ctx, "reports", id, &row)
	if err != nil || !ok {
		return nil, err
	}
	return &domain.Report{ID: row.ID, CreatedByID: row.CreatedByID}, nil
}

// HasActiveConsultation は専門家と案件を結ぶ有効な相談が存在するか確認する。
func (r *AccessRepository) HasActiveConsultation(ctx context.Context, expertID, caseID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table("consultations").
		Where("expert_id = ? AND case_id = ? AND status IN ?", expertID, caseID, activeConsultationStatuses).
		Count(&count).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to count consultations",
			"operation", "has_active_consultation",
			"expert_id", expertID,
			"case_id", caseID,
			"error", err,
		)
		return false, err
	}
	return count > 0, nil
}

// FindGroupPermissions はユーザーが所属する権限グループの権限文字列を取得する。
func (r *AccessRepository) FindGroupPermissions(ctx context.Context, userID string) ([]string, error) {
	var permissions []string
	err := r.db.WithContext(ctx).
		Table("permission_group_permissions AS pgp").
		Joins("JOIN user_permission_groups AS upg ON upg.group_id = pgp.group_id").
		Where("upg.user_id = ?", userID).
		Distinct().
		Pluck("pgp.permission", &permissions).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find group permissions",
			"operation", "find_group_permissions",
			"user_id", userID,
			"error", err,
		)
		return nil, err
	}
	return permissions, nil
}
