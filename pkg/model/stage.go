package model

import "time"

// Stage is a column of the pipeline board. Order is unique across stages.
type Stage struct {
	ID        string `gorm:"type:varchar(64);primary_key"`
	Name      string `gorm:"not null"`
	Order     int    `gorm:"column:sort_order;not null;uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Stage) TableName() string {
	return "pipeline_stages"
}
