package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bitfantasy/pdm/internal/pdm/apperr"
	"github.com/bitfantasy/pdm/internal/pdm/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TreeVersionRepository struct {
	db *gorm.DB
}

func NewTreeVersionRepository(db *gorm.DB) *TreeVersionRepository {
	return &TreeVersionRepository{db: db}
}

// Create 创建树版本
func (r *TreeVersionRepository) Create(ctx context.Context, v *entity.TreeVersion) error {
	return r.db.WithContext(ctx).Create(v).Error
}

// FindByID 根据ID查找树版本
func (r *TreeVersionRepository) FindByID(ctx context.Context, id string) (*entity.TreeVersion, error) {
	var v entity.TreeVersion
	if err := r.db.WithContext(ctx).First(&v, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundf("tree version", id)
		}
		return nil, err
	}
	return &v, nil
}

// FindForUpdate 行锁读取树版本
func (r *TreeVersionRepository) FindForUpdate(ctx context.Context, id string) (*entity.TreeVersion, error) {
	var v entity.TreeVersion
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&v, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundf("tree version", id)
		}
		return nil, err
	}
	return &v, nil
}

// ListByTree 树的全部版本，新版本在前
func (r *TreeVersionRepository) ListByTree(ctx context.Context, treeID string) ([]entity.TreeVersion, error) {
	var list []entity.TreeVersion
	err := r.db.WithContext(ctx).
		Where("tree_id = ?", treeID).
		Order("version_number DESC").
		Find(&list).Error
	return list, err
}

// LatestOpen 状态为 draft/review/approved 的最新版本，没有时返回 nil
func (r *TreeVersionRepository) LatestOpen(ctx context.Context, treeID string) (*entity.TreeVersion, error) {
	var v entity.TreeVersion
	err := r.db.WithContext(ctx).
		Where("tree_id = ? AND status IN ?", treeID, entity.OpenVersionStatuses).
		Order("version_number DESC").
		First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

// MaxNumber 最大版本号，没有版本时为 0
func (r *TreeVersionRepository) MaxNumber(ctx context.Context, treeID string) (int, error) {
	var max int
	err := r.db.WithContext(ctx).Model(&entity.TreeVersion{}).
		Select("COALESCE(MAX(version_number), 0)").
		Where("tree_id = ?", treeID).
		Scan(&max).Error
	return max, err
}

// Save 保存树版本
func (r *TreeVersionRepository) Save(ctx context.Context, v *entity.TreeVersion) error {
	return r.db.WithContext(ctx).Save(v).Error
}

// CreateChangeLog 写入树变更日志
func (r *TreeVersionRepository) CreateChangeLog(ctx context.Context, log *entity.TreeChangeLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// FindChangeLog 根据ID查找变更日志
func (r *TreeVersionRepository) FindChangeLog(ctx context.Context, id string) (*entity.TreeChangeLog, error) {
	var l entity.TreeChangeLog
	if err := r.db.WithContext(ctx).First(&l, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundf("change log", id)
		}
		return nil, err
	}
	return &l, nil
}

// ChangeLogFilter 变更日志过滤条件
type ChangeLogFilter struct {
	TreeID        string
	TreeVersionID string
	PendingOnly   bool
	ChangeType    string
}

// ListChangeLogs 变更日志，按时间顺序
func (r *TreeVersionRepository) ListChangeLogs(ctx context.Context, f ChangeLogFilter) ([]entity.TreeChangeLog, error) {
	var logs []entity.TreeChangeLog
	query := r.db.WithContext(ctx).Model(&entity.TreeChangeLog{})
	if f.TreeID != "" {
		query = query.Where("tree_version_id IN (?)",
			r.db.Model(&entity.TreeVersion{}).Select("id").Where("tree_id = ?", f.TreeID))
	}
	if f.TreeVersionID != "" {
		query = query.Where("tree_version_id = ?", f.TreeVersionID)
	}
	if f.PendingOnly {
		query = query.Where("requires_approval = ? AND approved_at IS NULL", true)
	}
	if f.ChangeType != "" {
		query = query.Where("change_type = ?", f.ChangeType)
	}
	err := query.Order("changed_at ASC, id ASC").Find(&logs).Error
	return logs, err
}

// ClaimNotification 置位 notification_sent，返回是否由本次调用置位
func (r *TreeVersionRepository) ClaimNotification(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&entity.TreeChangeLog{}).
		Where("id = ? AND notification_sent = ?", id, false).
		Update("notification_sent", true)
	return res.RowsAffected == 1, res.Error
}

// ApproveChangeLog 审批变更日志
func (r *TreeVersionRepository) ApproveChangeLog(ctx context.Context, id string, userID *string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&entity.TreeChangeLog{}).
		Where("id = ? AND requires_approval = ? AND approved_at IS NULL", id, true).
		Updates(map[string]interface{}{"approved_by": userID, "approved_at": at})
	return res.RowsAffected == 1, res.Error
}
