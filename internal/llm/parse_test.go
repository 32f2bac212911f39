package llm

import (
	"errors"
	"testing"

	"github.com/sheetsnap/sheetsnap/internal/common"
)

func TestParseStructuredPassesValidJSONThrough(t *testing.T) {
	in := `[{"name":"A","age":5}]`
	out, err := ParseStructured([]byte(in))
	if err != nil {
		t.Fatalf("ParseStructured() error = %v", err)
	}
	if string(out) != in {
		t.Fatalf("output = %s, want bytes passed through unchanged", out)
	}
}

func TestParseStructuredStripsFences(t *testing.T) {
	cases := map[string]string{
		"plain fence":   "```\n{\"a\":1}\n```",
		"json fence":    "```json\n{\"a\":1}\n```",
		"padded fence":  "  ```json\n{\"a\":1}\n```  ",
		"trailing text": "```json\n{\"a\":1}\n```",
	}
	for name, in := range cases {
		out, err := ParseStructured([]byte(in))
		if err != nil {
			t.Fatalf("%s: ParseStructured() error = %v", name, err)
		}
		if string(out) != `{"a":1}` {
			t.Fatalf("%s: output = %s", name, out)
		}
	}
}

func TestParseStructuredRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "{not json", "```json\nnot json\n```", "sure, here is the data:"} {
		if _, err := ParseStructured([]byte(in)); !errors.Is(err, common.ErrExtractionParse) {
			t.Fatalf("ParseStructured(%q) error = %v, want ErrExtractionParse", in, err)
		}
	}
}

func TestParseStructuredPreservesKeyOrder(t *testing.T) {
	in := `{"zulu":1,"alpha":2}`
	out, err := ParseStructured([]byte(in))
	if err != nil {
		t.Fatalf("ParseStructured() error = %v", err)
	}
	if string(out) != in {
		t.Fatalf("key order not preserved: %s", out)
	}
}
