package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/sheetsnap/sheetsnap/internal/common"
	"github.com/sheetsnap/sheetsnap/internal/llm"
)

const systemPrompt = "You are a document structuring engine. Return ONLY JSON, with no prose and no markdown. " +
	"Extract every table, list and structured field you can find in the provided text. " +
	"Tables and repeated records become a JSON array of objects with one object per row; " +
	"a single form or label/value document becomes one JSON object. " +
	"Preserve the reading order of columns and fields. Never invent data that is not in the text."

const defaultInstruction = "Extract all structured data from the following text."

// Extract implements llm.StructuredExtractor over the chat/completions API
// with a JSON-constrained response mode. Transport problems (network,
// rate limits, non-2xx) surface as ErrModelUnavailable and may be retried;
// an unparseable payload surfaces as ErrExtractionParse and is final for
// this prompt.
func (c *Client) Extract(ctx context.Context, req llm.ExtractRequest) (json.RawMessage, error) {
	rid := uuid.New().String()
	start := time.Now()

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrModelUnavailable, err)
	}
	defer c.sem.Release(1)

	c.logger.Info("llm.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"text_len", len(req.Text),
		"has_user_prompt", req.UserPrompt != "",
	)

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": c.buildUserPrompt(req)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, status, err := llm.SendJSON(ctx, c.http, endpoint, body, map[string]string{
		"Authorization": "Bearer " + c.cfg.APIKey,
	}, c.logger)
	if err != nil {
		c.logger.Error("llm.extract.http_error",
			"req_id", rid, "status", status, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, fmt.Errorf("%w: %v", common.ErrModelUnavailable, err)
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.extract.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, fmt.Errorf("%w: decode completion envelope: %v", common.ErrModelUnavailable, err)
	}
	if len(cc.Choices) == 0 {
		c.logger.Error("llm.extract.no_choices",
			"req_id", rid,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, fmt.Errorf("%w: no choices in completion", common.ErrModelUnavailable)
	}

	result, err := llm.ParseStructured([]byte(cc.Choices[0].Message.Content))
	if err != nil {
		c.logger.Error("llm.extract.parse_failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	if req.Schema != nil {
		if err := llm.ValidateJSONAgainstSchema(req.Schema, result); err != nil {
			c.logger.Error("llm.extract.schema_validation_failed",
				"req_id", rid, "error", err,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return nil, fmt.Errorf("%w: %v", common.ErrExtractionParse, err)
		}
	}

	c.logger.Info("llm.extract.ok",
		"req_id", rid,
		"result_bytes", len(result),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (c *Client) buildUserPrompt(req llm.ExtractRequest) string {
	instruction := strings.TrimSpace(req.UserPrompt)
	if instruction == "" {
		instruction = defaultInstruction
	}
	text := truncateToRune(req.Text, c.cfg.MaxTextLen)
	var b strings.Builder
	b.WriteString(instruction)
	b.WriteString("\n\nSource text:\n")
	b.WriteString(text)
	return b.String()
}

// truncateToRune cuts s to at most max bytes, backing off to the nearest
// rune boundary so the payload stays valid UTF-8.
func truncateToRune(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
