package models

import (
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var SlugPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

type Product struct {
	bun.BaseModel `bun:"table:products"`

	ID              uuid.UUID `bun:",pk,type:uuid" json:"id"`
	Slug            string    `bun:",notnull,unique" json:"slug"`
	Name            string    `bun:",notnull" json:"name"`
	Description     string    `bun:",nullzero" json:"description,omitempty"`
	Category        string    `bun:",nullzero" json:"category,omitempty"`
	Tags            []string  `bun:",type:jsonb" json:"tags"`
	IsActive        bool      `bun:",notnull,default:true" json:"is_active"`
	LastSpecVersion int       `bun:",notnull,default:0" json:"-"`
	CreatedAt       time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt       time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

func NewProduct(slug, name string) *Product {
	now := time.Now().UTC()
	return &Product{
		ID:        uuid.Must(uuid.NewRandom()),
		Slug:      slug,
		Name:      name,
		Tags:      []string{},
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
