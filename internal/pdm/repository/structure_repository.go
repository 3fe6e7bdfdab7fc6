package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/pdm/internal/pdm/apperr"
	"github.com/bitfantasy/pdm/internal/pdm/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StructureRepository struct {
	db *gorm.DB
}

func NewStructureRepository(db *gorm.DB) *StructureRepository {
	return &StructureRepository{db: db}
}

// Create 创建结构
func (r *StructureRepository) Create(ctx context.Context, s *entity.TreeStructure) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(s).Error
}

// FindByID 根据ID查找结构
func (r *StructureRepository) FindByID(ctx context.Context, id string) (*entity.TreeStructure, error) {
	var s entity.TreeStructure
	if err := r.db.WithContext(ctx).Preload("Node").First(&s, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundf("structure", id)
		}
		return nil, err
	}
	return &s, nil
}

// FindByIDs 批量查找
func (r *StructureRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*entity.TreeStructure, error) {
	result := make(map[string]*entity.TreeStructure, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var list []entity.TreeStructure
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&list).Error; err != nil {
		return nil, err
	}
	for i := range list {
		result[list[i].ID] = &list[i]
	}
	return result, nil
}

// Root 树的根结构
func (r *StructureRepository) Root(ctx context.Context, treeID string) (*entity.TreeStructure, error) {
	var s entity.TreeStructure
	err := r.db.WithContext(ctx).
		Preload("Node").
		Where("tree_id = ? AND parent_id IS NULL", treeID).
		First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundf("root structure of tree", treeID)
		}
		return nil, err
	}
	return &s, nil
}

// CountRoots 根结构数量
func (r *StructureRepository) CountRoots(ctx context.Context, treeID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&entity.TreeStructure{}).
		Where("tree_id = ? AND level = 0", treeID).
		Count(&n).Error
	return n, err
}

// ListByTree 整棵树，按 level, sequence 排序
func (r *StructureRepository) ListByTree(ctx context.Context, treeID string) ([]entity.TreeStructure, error) {
	var list []entity.TreeStructure
	err := r.db.WithContext(ctx).
		Preload("Node").
		Where("tree_id = ?", treeID).
		Order("level ASC, sequence ASC, created_at ASC").
		Find(&list).Error
	return list, err
}

// Children 直接子结构，按 sequence 排序
func (r *StructureRepository) Children(ctx context.Context, parentID string) ([]entity.TreeStructure, error) {
	var list []entity.TreeStructure
	err := r.db.WithContext(ctx).
		Where("parent_id = ?", parentID).
		Order("sequence ASC, created_at ASC").
		Find(&list).Error
	return list, err
}

// CountChildren 直接子结构数量
func (r *StructureRepository) CountChildren(ctx context.Context, parentID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&entity.TreeStructure{}).
		Where("parent_id = ?", parentID).
		Count(&n).Error
	return n, err
}

// Subtree 以 s 为根的子树（含自身），按 level, sequence 排序
func (r *StructureRepository) Subtree(ctx context.Context, s *entity.TreeStructure) ([]entity.TreeStructure, error) {
	var list []entity.TreeStructure
	err := r.db.WithContext(ctx).
		Where("tree_id = ? AND (id = ? OR path LIKE ?)", s.TreeID, s.ID, likePrefix(s.Path)).
		Order("level ASC, sequence ASC").
		Find(&list).Error
	return list, err
}

// MoveSubtree 改写子树的 path 前缀与 level
func (r *StructureRepository) MoveSubtree(ctx context.Context, treeID, oldPath, newPath string, levelDelta int) error {
	return r.db.WithContext(ctx).Model(&entity.TreeStructure{}).
		Where("tree_id = ? AND (path = ? OR path LIKE ?)", treeID, oldPath, likePrefix(oldPath)).
		Updates(map[string]interface{}{
			"path":  gorm.Expr("? || SUBSTRING(path FROM ?)", newPath, len(oldPath)+1),
			"level": gorm.Expr("level + ?", levelDelta),
		}).Error
}

// DeleteByIDs 删除结构及其用量
func (r *StructureRepository) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	db := r.db.WithContext(ctx)
	if err := db.Where("tree_structure_id IN ?", ids).Delete(&entity.TreeCodeQuantity{}).Error; err != nil {
		return err
	}
	return db.Where("id IN ?", ids).Delete(&entity.TreeStructure{}).Error
}

// Replicas 指向 master 的全部副本
func (r *StructureRepository) Replicas(ctx context.Context, masterID string) ([]entity.TreeStructure, error) {
	var list []entity.TreeStructure
	err := r.db.WithContext(ctx).
		Preload("Node").
		Where("source_structure_id = ?", masterID).
		Order("tree_id ASC, level ASC").
		Find(&list).Error
	return list, err
}

// NearestReplica path 属于 paths 的结构中层级最深的副本，没有时返回 nil
func (r *StructureRepository) NearestReplica(ctx context.Context, treeID string, paths []string) (*entity.TreeStructure, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	var s entity.TreeStructure
	err := r.db.WithContext(ctx).
		Where("tree_id = ? AND path IN ? AND is_master = ? AND source_structure_id IS NOT NULL", treeID, paths, false).
		Order("level DESC").
		First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// CountExternalReplicas 引用 ids 但自身不在 ids 中的副本数量
func (r *StructureRepository) CountExternalReplicas(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var n int64
	err := r.db.WithContext(ctx).Model(&entity.TreeStructure{}).
		Where("source_structure_id IN ? AND id NOT IN ?", ids, ids).
		Count(&n).Error
	return n, err
}

// UpdateFields 更新指定字段
func (r *StructureRepository) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&entity.TreeStructure{}).Where("id = ?", id).Updates(fields).Error
}

// Detach top 成为主结构，其余结构清除 source_structure
func (r *StructureRepository) Detach(ctx context.Context, topID string, ids []string) error {
	db := r.db.WithContext(ctx).Model(&entity.TreeStructure{})
	if err := db.Where("id IN ?", ids).
		Updates(map[string]interface{}{"is_master": false, "source_structure_id": nil}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&entity.TreeStructure{}).
		Where("id = ?", topID).
		Update("is_master", true).Error
}

// FindByParentNode 树中父节点为 parentNodeID、节点为 childNodeID 的结构
func (r *StructureRepository) FindByParentNode(ctx context.Context, treeID, parentNodeID, childNodeID string) (*entity.TreeStructure, error) {
	var s entity.TreeStructure
	err := r.db.WithContext(ctx).
		Joins("JOIN pdm_tree_structures p ON p.id = pdm_tree_structures.parent_id").
		Where("pdm_tree_structures.tree_id = ? AND p.node_id = ? AND pdm_tree_structures.node_id = ?", treeID, parentNodeID, childNodeID).
		Order("pdm_tree_structures.level ASC, pdm_tree_structures.sequence ASC").
		First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// FirstOfNode 树中引用 nodeID 的第一个结构
func (r *StructureRepository) FirstOfNode(ctx context.Context, treeID, nodeID string) (*entity.TreeStructure, error) {
	var s entity.TreeStructure
	err := r.db.WithContext(ctx).
		Where("tree_id = ? AND node_id = ?", treeID, nodeID).
		Order("level ASC, sequence ASC").
		First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundf("node in tree", nodeID)
		}
		return nil, err
	}
	return &s, nil
}

// likePrefix path 前缀匹配，转义 LIKE 通配符
func likePrefix(path string) string {
	escaped := make([]rune, 0, len(path)+2)
	for _, c := range path {
		if c == '%' || c == '_' || c == '\\' {
			escaped = append(escaped, '\\')
		}
		escaped = append(escaped, c)
	}
	return string(escaped) + ".%"
}
