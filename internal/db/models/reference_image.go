package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type ReferenceImage struct {
	bun.BaseModel `bun:"table:reference_images"`

	ID            uuid.UUID `bun:",pk,type:uuid" json:"id"`
	ProductID     uuid.UUID `bun:",type:uuid,notnull" json:"product_id"`
	StorageHandle string    `bun:",notnull" json:"storage_handle"`
	Filename      string    `bun:",notnull" json:"filename"`
	MimeType      string    `bun:",notnull" json:"mime_type"`
	SizeBytes     int64     `bun:",notnull" json:"size_bytes"`
	Width         int       `bun:",notnull,default:0" json:"width"`
	Height        int       `bun:",notnull,default:0" json:"height"`
	IsPrimary     bool      `bun:",notnull,default:false" json:"is_primary"`
	DisplayOrder  int       `bun:",notnull,default:0" json:"display_order"`
	UploadedAt    time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"uploaded_at"`

	URL string `bun:"-" json:"url,omitempty"`
}
