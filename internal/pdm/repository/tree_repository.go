package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/pdm/internal/pdm/apperr"
	"github.com/bitfantasy/pdm/internal/pdm/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TreeRepository struct {
	db *gorm.DB
}

func NewTreeRepository(db *gorm.DB) *TreeRepository {
	return &TreeRepository{db: db}
}

// Create 创建树
func (r *TreeRepository) Create(ctx context.Context, tree *entity.Tree) error {
	return r.db.WithContext(ctx).Create(tree).Error
}

// FindByID 根据ID查找树
func (r *TreeRepository) FindByID(ctx context.Context, id string) (*entity.Tree, error) {
	var tree entity.Tree
	if err := r.db.WithContext(ctx).First(&tree, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundf("tree", id)
		}
		return nil, err
	}
	return &tree, nil
}

// FindForUpdate 行锁读取树，结构变更期间串行化同一棵树
func (r *TreeRepository) FindForUpdate(ctx context.Context, id string) (*entity.Tree, error) {
	var tree entity.Tree
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&tree, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundf("tree", id)
		}
		return nil, err
	}
	return &tree, nil
}

// List 树列表
func (r *TreeRepository) List(ctx context.Context, status string) ([]entity.Tree, error) {
	var trees []entity.Tree
	query := r.db.WithContext(ctx)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Order("name ASC").Find(&trees).Error
	return trees, err
}

// Touch 更新状态与最后修改人
func (r *TreeRepository) Touch(ctx context.Context, id string, status entity.TreeStatus, userID *string) error {
	updates := map[string]interface{}{"last_modified_by": userID}
	if status != "" {
		updates["status"] = status
	}
	return r.db.WithContext(ctx).Model(&entity.Tree{}).Where("id = ?", id).Updates(updates).Error
}

// Delete 删除树及其结构、版本、日志、用量，节点保留
func (r *TreeRepository) Delete(ctx context.Context, id string) error {
	db := r.db.WithContext(ctx)
	structureIDs := db.Model(&entity.TreeStructure{}).Select("id").Where("tree_id = ?", id)
	versionIDs := db.Model(&entity.TreeVersion{}).Select("id").Where("tree_id = ?", id)

	if err := db.Where("tree_structure_id IN (?)", structureIDs).Delete(&entity.TreeCodeQuantity{}).Error; err != nil {
		return err
	}
	if err := db.Where("tree_version_id IN (?)", versionIDs).Delete(&entity.TreeChangeLog{}).Error; err != nil {
		return err
	}
	if err := db.Where("tree_id = ?", id).Delete(&entity.TreeVersion{}).Error; err != nil {
		return err
	}
	if err := db.Where("tree_id = ?", id).Delete(&entity.TreeStructure{}).Error; err != nil {
		return err
	}
	return db.Delete(&entity.Tree{}, "id = ?", id).Error
}

// CreateNode 创建节点
func (r *TreeRepository) CreateNode(ctx context.Context, node *entity.TreeNode) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(node).Error
}

// FindNode 根据ID查找节点
func (r *TreeRepository) FindNode(ctx context.Context, id string) (*entity.TreeNode, error) {
	var node entity.TreeNode
	if err := r.db.WithContext(ctx).Preload("Code").First(&node, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundf("node", id)
		}
		return nil, err
	}
	return &node, nil
}
