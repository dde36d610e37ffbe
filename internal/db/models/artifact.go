package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type GeneratedArtifact struct {
	bun.BaseModel `bun:"table:generated_artifacts"`

	ID            uuid.UUID `bun:",pk,type:uuid" json:"id"`
	JobID         uuid.UUID `bun:",type:uuid,notnull,unique:job_ordinal" json:"job_id"`
	ProductID     uuid.UUID `bun:",type:uuid,notnull" json:"product_id"`
	Ordinal       int       `bun:",notnull,unique:job_ordinal" json:"ordinal"`
	StorageHandle string    `bun:",notnull" json:"storage_handle"`
	MimeType      string    `bun:",notnull" json:"mime_type"`
	SizeBytes     int64     `bun:",notnull" json:"size_bytes"`
	Width         int       `bun:",notnull,default:0" json:"width"`
	Height        int       `bun:",notnull,default:0" json:"height"`
	ModelText     string    `bun:",nullzero" json:"model_text,omitempty"`
	CreatedAt     time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"created_at"`

	URL string `bun:"-" json:"url,omitempty"`
}
