package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type SpecificationVersion struct {
	bun.BaseModel `bun:"table:specification_versions"`

	ID         uuid.UUID `bun:",pk,type:uuid" json:"id"`
	ProductID  uuid.UUID `bun:",type:uuid,notnull,unique:product_version" json:"product_id"`
	Version    int       `bun:",notnull,unique:product_version" json:"version"`
	Content    string    `bun:",notnull" json:"content"`
	ChangeNote string    `bun:",nullzero" json:"change_note,omitempty"`
	IsActive   bool      `bun:",notnull,default:false" json:"is_active"`

	TemplateVersion string   `bun:",nullzero" json:"template_version,omitempty"`
	AnalysisModel   string   `bun:",nullzero" json:"analysis_model,omitempty"`
	Confidence      *float64 `bun:"," json:"confidence,omitempty"`
	ImageCount      int      `bun:",notnull,default:0" json:"image_count"`

	PrimaryDimensions string   `bun:",nullzero" json:"primary_dimensions,omitempty"`
	PrimaryColors     []string `bun:",type:jsonb" json:"primary_colors,omitempty"`
	MaterialType      string   `bun:",nullzero" json:"material_type,omitempty"`

	CreatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"created_at"`
}
