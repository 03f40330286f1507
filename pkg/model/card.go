package model

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// PipelineCard is the board projection of a financing application.
type PipelineCard struct {
	ID            string `gorm:"type:varchar(64);primary_key"`
	ApplicationID string `gorm:"type:varchar(64);not null;uniqueIndex"`
	Silo          string `gorm:"type:varchar(32);not null;index"`
	StageID       string `gorm:"type:varchar(64);not null;index"`
	Stage         *Stage `gorm:"foreignKey:StageID"`
	ApplicantName string
	BusinessName  string
	Amount        decimal.Decimal `gorm:"type:numeric(14,2);default:0"`
	Tags          pq.StringArray  `gorm:"type:text[]"`
	Version       int64           `gorm:"not null;default:1"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (PipelineCard) TableName() string {
	return "pipeline_cards"
}
