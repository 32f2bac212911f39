package llm

import (
	"context"
	"encoding/json"
)

// ExtractRequest carries one structuring call: recognized source text plus
// an optional literal user instruction. When Schema is non-nil the decoded
// result is additionally validated against it; by default the extractor
// accepts whatever valid JSON the model returns.
type ExtractRequest struct {
	Text       string
	UserPrompt string
	Schema     map[string]any
}

// StructuredExtractor turns free text into a JSON document. The raw bytes
// are returned unmodified (apart from code-fence stripping) so downstream
// consumers can preserve the model's key order.
type StructuredExtractor interface {
	Extract(ctx context.Context, req ExtractRequest) (json.RawMessage, error)
}
