package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/pdm/internal/pdm/apperr"
	"github.com/bitfantasy/pdm/internal/pdm/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CodeRepository struct {
	db *gorm.DB
}

func NewCodeRepository(db *gorm.DB) *CodeRepository {
	return &CodeRepository{db: db}
}

// CodeFilter 编码列表过滤条件
type CodeFilter struct {
	PrefixID string
	Status   string
	Keyword  string
}

// Create 创建编码
func (r *CodeRepository) Create(ctx context.Context, code *entity.Code) error {
	return r.db.WithContext(ctx).Create(code).Error
}

// FindByID 根据ID查找编码
func (r *CodeRepository) FindByID(ctx context.Context, id string) (*entity.Code, error) {
	var code entity.Code
	err := r.db.WithContext(ctx).Preload("Prefix").First(&code, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundf("code", id)
		}
		return nil, err
	}
	return &code, nil
}

// FindByIDs 批量查找编码
func (r *CodeRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*entity.Code, error) {
	result := make(map[string]*entity.Code, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var list []entity.Code
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&list).Error; err != nil {
		return nil, err
	}
	for i := range list {
		result[list[i].ID] = &list[i]
	}
	return result, nil
}

// FindForUpdate 行锁读取编码
func (r *CodeRepository) FindForUpdate(ctx context.Context, id string) (*entity.Code, error) {
	var code entity.Code
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&code, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundf("code", id)
		}
		return nil, err
	}
	return &code, nil
}

// List 编码列表
func (r *CodeRepository) List(ctx context.Context, page, pageSize int, f CodeFilter) ([]entity.Code, int64, error) {
	var codes []entity.Code
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.Code{})
	if f.PrefixID != "" {
		query = query.Where("prefix_id = ?", f.PrefixID)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.Keyword != "" {
		like := "%" + f.Keyword + "%"
		query = query.Where("code ILIKE ? OR name ILIKE ?", like, like)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Preload("Prefix").
		Order("code ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&codes).Error
	return codes, total, err
}

// UpdateStatus 更新编码状态
func (r *CodeRepository) UpdateStatus(ctx context.Context, id string, status entity.CodeStatus) error {
	return r.db.WithContext(ctx).Model(&entity.Code{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// CreateVersion 创建编码版本
func (r *CodeRepository) CreateVersion(ctx context.Context, v *entity.CodeVersion) error {
	return r.db.WithContext(ctx).Create(v).Error
}

// FindVersion 根据ID查找版本
func (r *CodeRepository) FindVersion(ctx context.Context, id string) (*entity.CodeVersion, error) {
	var v entity.CodeVersion
	err := r.db.WithContext(ctx).Preload("Metadata").First(&v, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundf("code version", id)
		}
		return nil, err
	}
	return &v, nil
}

// FindVersionForUpdate 行锁读取版本
func (r *CodeRepository) FindVersionForUpdate(ctx context.Context, id string) (*entity.CodeVersion, error) {
	var v entity.CodeVersion
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&v, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundf("code version", id)
		}
		return nil, err
	}
	return &v, nil
}

// ListVersions 编码的全部版本，新版本在前
func (r *CodeRepository) ListVersions(ctx context.Context, codeID string) ([]entity.CodeVersion, error) {
	var versions []entity.CodeVersion
	err := r.db.WithContext(ctx).
		Preload("Metadata").
		Where("code_id = ?", codeID).
		Order("version DESC").
		Find(&versions).Error
	return versions, err
}

// CurrentVersion 当前版本，没有时返回 nil
func (r *CodeRepository) CurrentVersion(ctx context.Context, codeID string) (*entity.CodeVersion, error) {
	var v entity.CodeVersion
	err := r.db.WithContext(ctx).
		Preload("Metadata").
		Where("code_id = ? AND is_current = ?", codeID, true).
		First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

// LockVersions 锁住同一编码的全部版本行，返回最大版本号
func (r *CodeRepository) LockVersions(ctx context.Context, codeID string) (int, error) {
	var versions []entity.CodeVersion
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "version").
		Where("code_id = ?", codeID).
		Find(&versions).Error
	if err != nil {
		return 0, err
	}
	max := 0
	for _, v := range versions {
		if v.Version > max {
			max = v.Version
		}
	}
	return max, nil
}

// ClearCurrent 清除同一编码其他版本的 is_current，调用前需先 LockVersions
func (r *CodeRepository) ClearCurrent(ctx context.Context, codeID, exceptID string) error {
	query := r.db.WithContext(ctx).Model(&entity.CodeVersion{}).
		Where("code_id = ? AND is_current = ?", codeID, true)
	if exceptID != "" {
		query = query.Where("id <> ?", exceptID)
	}
	return query.Update("is_current", false).Error
}

// CountCurrent 当前版本数量
func (r *CodeRepository) CountCurrent(ctx context.Context, codeID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&entity.CodeVersion{}).
		Where("code_id = ? AND is_current = ?", codeID, true).
		Count(&n).Error
	return n, err
}

// SaveVersion 保存版本
func (r *CodeRepository) SaveVersion(ctx context.Context, v *entity.CodeVersion) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(v).Error
}

// CreateChangeLog 写入编码变更日志
func (r *CodeRepository) CreateChangeLog(ctx context.Context, log *entity.CodeChangeLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// ListChangeLogs 编码所有版本的变更日志
func (r *CodeRepository) ListChangeLogs(ctx context.Context, codeID string) ([]entity.CodeChangeLog, error) {
	var logs []entity.CodeChangeLog
	err := r.db.WithContext(ctx).
		Joins("JOIN pdm_code_versions v ON v.id = pdm_code_change_logs.code_version_id").
		Where("v.code_id = ?", codeID).
		Order("pdm_code_change_logs.changed_at ASC").
		Find(&logs).Error
	return logs, err
}

// FindMetadata 版本属性，没有时返回 nil
func (r *CodeRepository) FindMetadata(ctx context.Context, versionID string) (*entity.CodeMetadata, error) {
	var m entity.CodeMetadata
	err := r.db.WithContext(ctx).First(&m, "code_version_id = ?", versionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// UpsertMetadata 按 code_version_id 新增或覆盖属性
func (r *CodeRepository) UpsertMetadata(ctx context.Context, m *entity.CodeMetadata) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "code_version_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"unit", "material", "category", "keywords", "notes",
			"weight", "dimensions", "specifications", "updated_at",
		}),
	}).Create(m).Error
}
