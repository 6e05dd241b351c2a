package models

import "time"

// Document is a JSON document stored under a slash-separated path.
type Document struct {
	Path      string    `json:"path" gorm:"primaryKey"`
	Data      string    `json:"-" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name for Document Model
func (Document) TableName() string {
	return "documents"
}
