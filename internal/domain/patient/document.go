package patient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Document is the whole record store: every patient's stored value as raw
// JSON, keyed by id, in the order the ids appear in the store. Values are
// never re-encoded, so records a request does not touch are written back
// exactly as they were read.
type Document struct {
	ids     []string
	records map[string]json.RawMessage
}

func NewDocument() *Document {
	return &Document{records: make(map[string]json.RawMessage)}
}

func (d *Document) Len() int {
	return len(d.ids)
}

// IDs returns the patient ids in store order.
func (d *Document) IDs() []string {
	out := make([]string, len(d.ids))
	copy(out, d.ids)
	return out
}

func (d *Document) Get(id string) (json.RawMessage, bool) {
	raw, ok := d.records[id]
	return raw, ok
}

// Set stores raw under id. A new id goes to the end; an existing id keeps its
// position.
func (d *Document) Set(id string, raw json.RawMessage) {
	if _, ok := d.records[id]; !ok {
		d.ids = append(d.ids, id)
	}
	d.records[id] = append(json.RawMessage(nil), raw...)
}

// MarshalJSON writes the ids in store order with each value as stored.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range d.ids {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := encodeJSON(id)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if raw := d.records[id]; len(raw) > 0 {
			buf.Write(raw)
		} else {
			buf.WriteString("null")
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object token by token so the key order
// survives. A repeated key keeps its first position and its last value.
func (d *Document) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("not a JSON object")
	}

	doc := NewDocument()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		id, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected object key %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("record %s: %w", id, err)
		}
		doc.Set(id, raw)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*d = *doc
	return nil
}

// encodeJSON marshals v without HTML escaping and without the trailing
// newline json.Encoder adds.
func encodeJSON(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
