package entity

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Tree BOM 树
type Tree struct {
	ID             string     `json:"id" gorm:"primaryKey;size:32"`
	Name           string     `json:"name" gorm:"size:100;not null;uniqueIndex"`
	Description    string     `json:"description" gorm:"type:text"`
	Status         TreeStatus `json:"status" gorm:"size:16;not null;default:draft"`
	CreatedBy      *string    `json:"created_by" gorm:"size:64"`
	LastModifiedBy *string    `json:"last_modified_by" gorm:"size:64"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (Tree) TableName() string {
	return "pdm_trees"
}

// Mutable 草稿和启用状态的树允许修改结构
func (t *Tree) Mutable() bool {
	return t.Status == TreeStatusDraft || t.Status == TreeStatusActive
}

// TreeNode 节点，可被多棵树的结构引用
type TreeNode struct {
	ID          string     `json:"id" gorm:"primaryKey;size:32"`
	Name        string     `json:"name" gorm:"size:100;not null"`
	Description string     `json:"description" gorm:"type:text"`
	NodeType    NodeType   `json:"node_type" gorm:"size:16;not null;default:group"`
	Status      NodeStatus `json:"status" gorm:"size:16;not null;default:active"`
	CodeID      *string    `json:"code_id" gorm:"size:32;index"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Code *Code `json:"code,omitempty" gorm:"foreignKey:CodeID"`
}

func (TreeNode) TableName() string {
	return "pdm_tree_nodes"
}

// TreeStructure 树内的一条父子边，path 为祖先节点 ID 以 "." 连接
type TreeStructure struct {
	ID                string           `json:"id" gorm:"primaryKey;size:32"`
	TreeID            string           `json:"tree_id" gorm:"size:32;not null;index:idx_pdm_structure_tree_level,priority:1"`
	NodeID            string           `json:"node_id" gorm:"size:32;not null;index"`
	ParentID          *string          `json:"parent_id" gorm:"size:32;index"`
	Level             int              `json:"level" gorm:"not null;index:idx_pdm_structure_tree_level,priority:2"`
	Path              string           `json:"path" gorm:"type:text;not null"`
	Sequence          int              `json:"sequence" gorm:"not null;default:0"`
	RelationshipType  RelationshipType `json:"relationship_type" gorm:"size:16;not null;default:assembly"`
	IsMaster          bool             `json:"is_master" gorm:"not null;default:false"`
	SourceStructureID *string          `json:"source_structure_id" gorm:"size:32;index"`
	Quantity          decimal.Decimal  `json:"quantity" gorm:"type:decimal(10,3);not null;default:1"`
	EffectiveDate     time.Time        `json:"effective_date"`
	ExpiryDate        *time.Time       `json:"expiry_date"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`

	Node *TreeNode `json:"node,omitempty" gorm:"foreignKey:NodeID"`
}

func (TreeStructure) TableName() string {
	return "pdm_tree_structures"
}

// IsRoot 根结构没有父级
func (s *TreeStructure) IsRoot() bool {
	return s.ParentID == nil
}

// IsReplica 共享得到的副本
func (s *TreeStructure) IsReplica() bool {
	return !s.IsMaster && s.SourceStructureID != nil
}

// MasterID 解析主结构：自身为主结构时返回自身，否则返回 source_structure
func (s *TreeStructure) MasterID() (string, bool) {
	if s.IsMaster {
		return s.ID, true
	}
	if s.SourceStructureID != nil {
		return *s.SourceStructureID, true
	}
	return "", false
}

// NodePath 祖先节点 ID 列表（含自身）
func (s *TreeStructure) NodePath() []string {
	return strings.Split(s.Path, ".")
}

// ChildPath 子结构的 path
func ChildPath(parentPath, nodeID string) string {
	if parentPath == "" {
		return nodeID
	}
	return parentPath + "." + nodeID
}

// TreeVersion 树版本
type TreeVersion struct {
	ID             string        `json:"id" gorm:"primaryKey;size:32"`
	TreeID         string        `json:"tree_id" gorm:"size:32;not null;uniqueIndex:uk_pdm_tree_version,priority:1"`
	VersionNumber  int           `json:"version_number" gorm:"not null;uniqueIndex:uk_pdm_tree_version,priority:2"`
	VersionName    string        `json:"version_name" gorm:"size:100;not null"`
	Description    string        `json:"description" gorm:"type:text"`
	Status         VersionStatus `json:"status" gorm:"size:16;not null;default:draft;index"`
	CreatedBy      *string       `json:"created_by" gorm:"size:64"`
	ApprovedBy     *string       `json:"approved_by" gorm:"size:64"`
	ApprovedAt     *time.Time    `json:"approved_at"`
	EffectiveDate  time.Time     `json:"effective_date"`
	ExpiryDate     *time.Time    `json:"expiry_date"`
	ReviewComments string        `json:"review_comments" gorm:"type:text"`
	ChangeSummary  string        `json:"change_summary" gorm:"type:text"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

func (TreeVersion) TableName() string {
	return "pdm_tree_versions"
}

// OpenVersionStatuses 仍可记录变更的版本状态
var OpenVersionStatuses = []VersionStatus{VersionStatusDraft, VersionStatusReview, VersionStatusApproved}

// TreeCodeQuantity 结构边上某编码版本的用量
type TreeCodeQuantity struct {
	ID              string              `json:"id" gorm:"primaryKey;size:32"`
	TreeStructureID string              `json:"tree_structure_id" gorm:"size:32;not null;uniqueIndex:uk_pdm_tcq,priority:1"`
	CodeVersionID   string              `json:"code_version_id" gorm:"size:32;not null;uniqueIndex:uk_pdm_tcq,priority:2"`
	Quantity        decimal.Decimal     `json:"quantity" gorm:"type:decimal(10,3);not null"`
	Denominator     decimal.Decimal     `json:"denominator" gorm:"type:decimal(10,3);not null"`
	Unit            Unit                `json:"unit" gorm:"size:20;not null;default:piece"`
	LossRate        decimal.Decimal     `json:"loss_rate" gorm:"type:decimal(5,2);not null;default:0"`
	MinimumOrder    decimal.NullDecimal `json:"minimum_order" gorm:"type:decimal(10,3)"`
	Remarks         string              `json:"remarks" gorm:"type:text"`
	EffectiveDate   time.Time           `json:"effective_date"`
	ExpiryDate      *time.Time          `json:"expiry_date"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`

	CodeVersion *CodeVersion `json:"code_version,omitempty" gorm:"foreignKey:CodeVersionID"`
}

func (TreeCodeQuantity) TableName() string {
	return "pdm_tree_code_quantities"
}
