package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

type GenerationJob struct {
	bun.BaseModel `bun:"table:generation_jobs"`

	ID                   uuid.UUID  `bun:",pk,type:uuid" json:"id"`
	ProductID            uuid.UUID  `bun:",type:uuid,notnull" json:"product_id"`
	SpecificationID      *uuid.UUID `bun:",type:uuid" json:"specification_id"`
	Prompt               string     `bun:",notnull" json:"prompt"`
	CustomPromptOverride string     `bun:",nullzero" json:"custom_prompt_override,omitempty"`
	AspectRatio          string     `bun:",notnull" json:"aspect_ratio"`
	Resolution           string     `bun:",notnull" json:"resolution"`
	RequestedCount       int        `bun:",notnull" json:"requested_count"`
	ArtifactCount        int        `bun:",notnull,default:0" json:"artifact_count"`
	ReferenceHandles     []string   `bun:",type:jsonb" json:"reference_handles"`
	Status               JobStatus  `bun:",notnull" json:"status"`
	ErrorDetail          string     `bun:",nullzero" json:"error_detail,omitempty"`
	CreatedAt            time.Time  `bun:",nullzero,notnull,default:current_timestamp" json:"created_at"`
	StartedAt            *time.Time `bun:"," json:"started_at,omitempty"`
	CompletedAt          *time.Time `bun:"," json:"completed_at,omitempty"`

	Artifacts []*GeneratedArtifact `bun:"rel:has-many,join:id=job_id" json:"artifacts,omitempty"`
}
