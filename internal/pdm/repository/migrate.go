package repository

import (
	"fmt"

	"github.com/bitfantasy/pdm/internal/pdm/apperr"
	"github.com/bitfantasy/pdm/internal/pdm/entity"
	"gorm.io/gorm"
)

// Models 所有需要迁移的表
func Models() []interface{} {
	return []interface{}{
		&entity.Prefix{},
		&entity.Code{},
		&entity.CodeVersion{},
		&entity.CodeChangeLog{},
		&entity.CodeMetadata{},
		&entity.Tree{},
		&entity.TreeNode{},
		&entity.TreeStructure{},
		&entity.TreeVersion{},
		&entity.TreeCodeQuantity{},
		&entity.TreeChangeLog{},
	}
}

// 条件唯一索引 gorm tag 表达不了，单独建
var indexStatements = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS uk_pdm_code_version_current ON pdm_code_versions(code_id) WHERE is_current`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uk_pdm_structure_root ON pdm_tree_structures(tree_id) WHERE parent_id IS NULL`,
	fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s ON pdm_tree_structures(tree_id, node_id, COALESCE(parent_id, ''))`, apperr.StructureUniqueIndex),
	`CREATE INDEX IF NOT EXISTS idx_pdm_structure_path ON pdm_tree_structures(tree_id, path text_pattern_ops)`,
	`CREATE INDEX IF NOT EXISTS idx_pdm_change_logs_pending ON pdm_tree_change_logs(tree_version_id) WHERE requires_approval AND approved_at IS NULL`,
}

// Migrate 建表并补充索引
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	for _, stmt := range indexStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
