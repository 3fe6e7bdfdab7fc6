package entity

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// TreeChangeLog 树结构变更日志，只追加
type TreeChangeLog struct {
	ID                  string         `json:"id" gorm:"primaryKey;size:32"`
	TreeVersionID       string         `json:"tree_version_id" gorm:"size:32;not null;index"`
	ChangedAt           time.Time      `json:"changed_at" gorm:"not null;index"`
	ChangedBy           *string        `json:"changed_by" gorm:"size:64"`
	ChangeType          TreeChangeType `json:"change_type" gorm:"size:24;not null"`
	Description         string         `json:"description" gorm:"type:text"`
	AffectedNodeID      *string        `json:"affected_node_id" gorm:"size:32"`
	AffectedStructureID *string        `json:"affected_structure_id" gorm:"size:32"`
	SignificanceLevel   int            `json:"significance_level" gorm:"not null;default:1"`
	RequiresApproval    bool           `json:"requires_approval" gorm:"not null;default:false"`
	ApprovedBy          *string        `json:"approved_by" gorm:"size:64"`
	ApprovedAt          *time.Time     `json:"approved_at"`
	PreviousData        datatypes.JSON `json:"previous_data" gorm:"type:jsonb"`
	NewData             datatypes.JSON `json:"new_data" gorm:"type:jsonb"`
	NotificationSent    bool           `json:"notification_sent" gorm:"not null;default:false"`
}

func (TreeChangeLog) TableName() string {
	return "pdm_tree_change_logs"
}

// DeriveSignificance 按变更类型推导重要度与是否需要审批，其余类型保留调用方取值
func DeriveSignificance(t TreeChangeType, level int, requiresApproval bool) (int, bool) {
	switch t {
	case TreeChangeRemoveNode, TreeChangeShareStructure, TreeChangeVersionUp:
		return 2, true
	case TreeChangeMoveNode, TreeChangeUpdateRelationship:
		return 1, true
	}
	return level, requiresApproval
}

// ApplySignificance 写入前调用
func (l *TreeChangeLog) ApplySignificance() {
	l.SignificanceLevel, l.RequiresApproval = DeriveSignificance(l.ChangeType, l.SignificanceLevel, l.RequiresApproval)
}

// NeedsNotification 重要度 >= 2 且尚未通知
func (l *TreeChangeLog) NeedsNotification() bool {
	return l.SignificanceLevel >= 2 && !l.NotificationSent
}

// StructureSnapshot add/remove/move/update 类变更的前后快照
type StructureSnapshot struct {
	StructureID       string           `json:"structure_id"`
	ParentID          *string          `json:"parent_id,omitempty"`
	NodeID            string           `json:"node_id"`
	CodeID            *string          `json:"code_id,omitempty"`
	Level             int              `json:"level"`
	Path              string           `json:"path"`
	Sequence          int              `json:"sequence"`
	RelationshipType  RelationshipType `json:"relationship_type"`
	Quantity          decimal.Decimal  `json:"quantity"`
	IsMaster          bool             `json:"is_master"`
	SourceStructureID *string          `json:"source_structure_id,omitempty"`
	IsShared          bool             `json:"is_shared,omitempty"`
	Descendants       int              `json:"descendants,omitempty"`
}

// SnapshotOf 生成结构快照
func SnapshotOf(s *TreeStructure) StructureSnapshot {
	snap := StructureSnapshot{
		StructureID:       s.ID,
		ParentID:          s.ParentID,
		NodeID:            s.NodeID,
		Level:             s.Level,
		Path:              s.Path,
		Sequence:          s.Sequence,
		RelationshipType:  s.RelationshipType,
		Quantity:          s.Quantity,
		IsMaster:          s.IsMaster,
		SourceStructureID: s.SourceStructureID,
		IsShared:          s.IsReplica(),
	}
	if s.Node != nil {
		snap.CodeID = s.Node.CodeID
	}
	return snap
}

// ShareDetail share/unshare 变更的明细
type ShareDetail struct {
	StructureID       string `json:"structure_id"`
	ParentID          string `json:"parent_id"`
	SourceStructureID string `json:"source_structure_id"`
	SourceTreeID      string `json:"source_tree_id"`
	SourceTreeName    string `json:"source_tree_name,omitempty"`
	ClonedCount       int    `json:"cloned_count"`
}

// StatusDetail 状态流转明细
type StatusDetail struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Comment string `json:"comment,omitempty"`
}

// ToJSON 把明细结构编码为 jsonb 列，nil 返回 nil
func ToJSON(v interface{}) datatypes.JSON {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}
