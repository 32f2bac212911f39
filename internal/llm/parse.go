package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sheetsnap/sheetsnap/internal/common"
)

// ParseStructured validates a model response body as JSON and returns it
// with surrounding noise removed. The bytes themselves are not re-encoded,
// so object key order survives for downstream serialization. Malformed or
// missing JSON fails with ErrExtractionParse; the caller must never receive
// partial or guessed data.
func ParseStructured(content []byte) (json.RawMessage, error) {
	trimmed := stripFences(strings.TrimSpace(string(content)))
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty response", common.ErrExtractionParse)
	}
	if !json.Valid([]byte(trimmed)) {
		return nil, fmt.Errorf("%w: response is not valid json", common.ErrExtractionParse)
	}
	return json.RawMessage(trimmed), nil
}

// stripFences removes a markdown code fence wrapper (``` or ```json) that
// models sometimes emit despite the JSON-only instruction.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	body := strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		// drop the language tag line, e.g. "json"
		body = body[i+1:]
	}
	body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	return strings.TrimSpace(body)
}
