package generation

import "time"

type JobStatus string

const (
	JobStatusStarting   JobStatus = "starting"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSucceeded  JobStatus = "succeeded"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCanceled   JobStatus = "canceled"
)

func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed || s == JobStatusCanceled
}

// NonTerminalJobStatuses are the statuses a terminal transition may start from.
var NonTerminalJobStatuses = []JobStatus{JobStatusStarting, JobStatusProcessing}

// Job is the provenance row for one provider prediction. ID is the provider's id.
type Job struct {
	ID                  string     `gorm:"column:id;primaryKey" json:"id"`
	Prompt              string     `gorm:"column:prompt" json:"prompt,omitempty"`
	Status              JobStatus  `gorm:"column:status;not null;index" json:"status"`
	ArtifactKey         string     `gorm:"column:artifact_key" json:"artifact_key,omitempty"`
	OriginalArtifactKey string     `gorm:"column:original_artifact_key" json:"original_artifact_key,omitempty"`
	OwnerID             *string    `gorm:"column:owner_id;index" json:"owner_id,omitempty"`
	Error               string     `gorm:"column:error" json:"error,omitempty"`
	CreatedAt           time.Time  `gorm:"column:created_at;not null" json:"created_at"`
	CompletedAt         *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	UpdatedAt           time.Time  `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (Job) TableName() string { return "generation_jobs" }
