package spreadsheet

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/sheetsnap/sheetsnap/internal/common"
)

// Field is one key/value entry of a JSON object with its position preserved.
type Field struct {
	Key   string
	Value any
}

// Record is a JSON object in declared key order. encoding/json maps cannot
// represent order, so objects are re-decoded from the token stream.
type Record []Field

// Keys returns the field names in declared order.
func (r Record) Keys() []string {
	out := make([]string, len(r))
	for i, f := range r {
		out[i] = f.Key
	}
	return out
}

// Kind tags the supported top-level shapes of structured data.
type Kind int

const (
	// KindRecords is an ordered sequence of objects, one spreadsheet row each.
	KindRecords Kind = iota + 1
	// KindSingle is one object serialized as field/value rows.
	KindSingle
)

// Shape is the tagged union produced by explicit inspection of the model
// output. Anything that is not a sequence-of-objects or a single object is
// rejected up front rather than hopefully cast.
type Shape struct {
	Kind    Kind
	Records []Record
	Single  Record
}

// InspectShape decodes raw JSON into a Shape, preserving object key order.
// Scalars, null, and sequences containing non-objects fail with
// ErrUnsupportedDataShape.
func InspectShape(raw []byte) (Shape, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return Shape{}, fmt.Errorf("%w: %v", common.ErrUnsupportedDataShape, err)
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return Shape{}, fmt.Errorf("%w: top-level %T", common.ErrUnsupportedDataShape, tok)
	}

	switch delim {
	case '{':
		rec, err := decodeObject(dec)
		if err != nil {
			return Shape{}, err
		}
		return Shape{Kind: KindSingle, Single: rec}, nil
	case '[':
		records := []Record{}
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return Shape{}, fmt.Errorf("%w: %v", common.ErrUnsupportedDataShape, err)
			}
			if d, ok := tok.(json.Delim); !ok || d != '{' {
				return Shape{}, fmt.Errorf("%w: sequence element is not an object", common.ErrUnsupportedDataShape)
			}
			rec, err := decodeObject(dec)
			if err != nil {
				return Shape{}, err
			}
			records = append(records, rec)
		}
		if _, err := dec.Token(); err != nil { // closing ']'
			return Shape{}, fmt.Errorf("%w: %v", common.ErrUnsupportedDataShape, err)
		}
		return Shape{Kind: KindRecords, Records: records}, nil
	default:
		return Shape{}, fmt.Errorf("%w: top-level delimiter %q", common.ErrUnsupportedDataShape, delim)
	}
}

// decodeObject reads an object body whose opening brace was already consumed.
func decodeObject(dec *json.Decoder) (Record, error) {
	var rec Record
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrUnsupportedDataShape, err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: object key %T", common.ErrUnsupportedDataShape, keyTok)
		}
		val, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		rec = append(rec, Field{Key: key, Value: val})
	}
	if _, err := dec.Token(); err != nil { // closing '}'
		return nil, fmt.Errorf("%w: %v", common.ErrUnsupportedDataShape, err)
	}
	return rec, nil
}

// decodeValue reads one value. Nested containers are decoded to generic
// maps/slices; their internal order is not significant for cell rendering.
func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrUnsupportedDataShape, err)
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil // string, json.Number, bool or nil
	}
	switch delim {
	case '{':
		m := map[string]any{}
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", common.ErrUnsupportedDataShape, err)
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("%w: object key %T", common.ErrUnsupportedDataShape, keyTok)
			}
			val, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			m[key] = val
		}
		if _, err := dec.Token(); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrUnsupportedDataShape, err)
		}
		return m, nil
	case '[':
		var s []any
		for dec.More() {
			val, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			s = append(s, val)
		}
		if _, err := dec.Token(); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrUnsupportedDataShape, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unexpected delimiter %q", common.ErrUnsupportedDataShape, delim)
	}
}
