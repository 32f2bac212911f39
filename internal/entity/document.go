package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Document is the persisted output of one successful pipeline run.
// Immutable after creation; only its owner may delete it.
type Document struct {
	ID             uuid.UUID       `json:"id"`
	UserID         uuid.UUID       `json:"user_id"`
	SourceType     string          `json:"source_type"` // constants.PDF | constants.IMAGE
	PageCount      int             `json:"page_count"`  // pages actually billed
	ExtractedText  string          `json:"extracted_text"`
	StructuredData json.RawMessage `json:"structured_data"`
	CreatedAt      time.Time       `json:"created_at"`
}
