package entity

import "time"

// Prefix 编码前缀与流水号计数器
type Prefix struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	Name        string    `json:"name" gorm:"size:10;not null;uniqueIndex"`
	Description string    `json:"description" gorm:"type:text"`
	CodeType    CodeType  `json:"code_type" gorm:"size:16;not null"`
	NextNumber  int64     `json:"next_number" gorm:"not null;default:1"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Prefix) TableName() string {
	return "pdm_prefixes"
}
