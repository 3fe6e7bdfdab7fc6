package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Code 零件编码
type Code struct {
	ID               string     `json:"id" gorm:"primaryKey;size:32"`
	Code             string     `json:"code" gorm:"size:50;not null;uniqueIndex"`
	Name             string     `json:"name" gorm:"size:100;not null"`
	Description      string     `json:"description" gorm:"type:text"`
	PrefixID         string     `json:"prefix_id" gorm:"size:32;not null;uniqueIndex:uk_pdm_code_prefix_seq,priority:1"`
	SequentialNumber int64      `json:"sequential_number" gorm:"not null;uniqueIndex:uk_pdm_code_prefix_seq,priority:2"`
	Status           CodeStatus `json:"status" gorm:"size:16;not null;default:draft;index"`
	CreatedBy        *string    `json:"created_by" gorm:"size:64"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`

	Prefix   *Prefix       `json:"prefix,omitempty" gorm:"foreignKey:PrefixID"`
	Versions []CodeVersion `json:"versions,omitempty" gorm:"foreignKey:CodeID"`
}

func (Code) TableName() string {
	return "pdm_codes"
}

// CodeVersion 编码版本，同一编码最多一个 is_current
type CodeVersion struct {
	ID            string        `json:"id" gorm:"primaryKey;size:32"`
	CodeID        string        `json:"code_id" gorm:"size:32;not null;uniqueIndex:uk_pdm_code_version,priority:1"`
	Version       int           `json:"version" gorm:"not null;uniqueIndex:uk_pdm_code_version,priority:2"`
	CodeNumber    string        `json:"code_number" gorm:"size:50;not null;index"`
	IsCurrent     bool          `json:"is_current" gorm:"not null;default:true"`
	Status        VersionStatus `json:"status" gorm:"size:16;not null;default:draft;index"`
	Reason        string        `json:"reason" gorm:"type:text"`
	ChangedBy     *string       `json:"changed_by" gorm:"size:64"`
	ApprovedBy    *string       `json:"approved_by" gorm:"size:64"`
	ApprovedAt    *time.Time    `json:"approved_at"`
	EffectiveDate time.Time     `json:"effective_date" gorm:"index"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`

	Code     *Code         `json:"code,omitempty" gorm:"foreignKey:CodeID"`
	Metadata *CodeMetadata `json:"metadata,omitempty" gorm:"foreignKey:CodeVersionID"`
}

func (CodeVersion) TableName() string {
	return "pdm_code_versions"
}

// CodeChangeLog 编码变更日志，只追加
type CodeChangeLog struct {
	ID             string         `json:"id" gorm:"primaryKey;size:32"`
	CodeVersionID  string         `json:"code_version_id" gorm:"size:32;not null;index"`
	ChangedAt      time.Time      `json:"changed_at" gorm:"not null"`
	ChangedBy      *string        `json:"changed_by" gorm:"size:64"`
	ChangeType     CodeChangeType `json:"change_type" gorm:"size:20;not null"`
	Reason         string         `json:"reason" gorm:"type:text"`
	PreviousStatus string         `json:"previous_status" gorm:"size:16"`
	NewStatus      string         `json:"new_status" gorm:"size:16"`
}

func (CodeChangeLog) TableName() string {
	return "pdm_code_change_logs"
}

// CodeMetadata 编码版本的属性
type CodeMetadata struct {
	ID             string              `json:"id" gorm:"primaryKey;size:32"`
	CodeVersionID  string              `json:"code_version_id" gorm:"size:32;not null;uniqueIndex"`
	Unit           Unit                `json:"unit" gorm:"size:20;not null;default:piece;index"`
	Material       string              `json:"material" gorm:"size:100;index"`
	Category       string              `json:"category" gorm:"size:50"`
	Keywords       string              `json:"keywords" gorm:"size:200"`
	Notes          string              `json:"notes" gorm:"type:text"`
	Weight         decimal.NullDecimal `json:"weight" gorm:"type:decimal(10,3)"`
	Dimensions     string              `json:"dimensions" gorm:"size:100"`
	Specifications datatypes.JSON      `json:"specifications" gorm:"type:jsonb"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

func (CodeMetadata) TableName() string {
	return "pdm_code_metadata"
}

// CloneFor 复制属性到新版本
func (m *CodeMetadata) CloneFor(versionID, id string) *CodeMetadata {
	c := *m
	c.ID = id
	c.CodeVersionID = versionID
	c.CreatedAt = time.Time{}
	c.UpdatedAt = time.Time{}
	if m.Specifications != nil {
		c.Specifications = append(datatypes.JSON(nil), m.Specifications...)
	}
	return &c
}
