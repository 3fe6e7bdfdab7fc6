package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/pdm/internal/pdm/apperr"
	"github.com/bitfantasy/pdm/internal/pdm/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type QuantityRepository struct {
	db *gorm.DB
}

func NewQuantityRepository(db *gorm.DB) *QuantityRepository {
	return &QuantityRepository{db: db}
}

// Upsert 按 (tree_structure_id, code_version_id) 新增或覆盖
func (r *QuantityRepository) Upsert(ctx context.Context, q *entity.TreeCodeQuantity) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tree_structure_id"}, {Name: "code_version_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"quantity", "denominator", "unit", "loss_rate", "minimum_order",
			"remarks", "effective_date", "expiry_date", "updated_at",
		}),
	}).Create(q).Error
}

// FindByID 根据ID查找用量行
func (r *QuantityRepository) FindByID(ctx context.Context, id string) (*entity.TreeCodeQuantity, error) {
	var q entity.TreeCodeQuantity
	if err := r.db.WithContext(ctx).First(&q, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundf("quantity", id)
		}
		return nil, err
	}
	return &q, nil
}

// Find 根据结构与编码版本查找
func (r *QuantityRepository) Find(ctx context.Context, structureID, codeVersionID string) (*entity.TreeCodeQuantity, error) {
	var q entity.TreeCodeQuantity
	err := r.db.WithContext(ctx).
		Preload("CodeVersion").
		Where("tree_structure_id = ? AND code_version_id = ?", structureID, codeVersionID).
		First(&q).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundf("quantity for structure", structureID)
		}
		return nil, err
	}
	return &q, nil
}

// ListByStructure 结构上的全部用量行
func (r *QuantityRepository) ListByStructure(ctx context.Context, structureID string) ([]entity.TreeCodeQuantity, error) {
	var list []entity.TreeCodeQuantity
	err := r.db.WithContext(ctx).
		Preload("CodeVersion").
		Where("tree_structure_id = ?", structureID).
		Order("effective_date DESC").
		Find(&list).Error
	return list, err
}

// ListByTree 整棵树的用量行，按结构分组
func (r *QuantityRepository) ListByTree(ctx context.Context, treeID string) (map[string][]entity.TreeCodeQuantity, error) {
	var list []entity.TreeCodeQuantity
	err := r.db.WithContext(ctx).
		Where("tree_structure_id IN (?)",
			r.db.Model(&entity.TreeStructure{}).Select("id").Where("tree_id = ?", treeID)).
		Order("effective_date DESC").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]entity.TreeCodeQuantity)
	for _, q := range list {
		grouped[q.TreeStructureID] = append(grouped[q.TreeStructureID], q)
	}
	return grouped, nil
}

// Delete 删除用量行
func (r *QuantityRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&entity.TreeCodeQuantity{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFoundf("quantity", id)
	}
	return nil
}
