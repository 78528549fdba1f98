package ir

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// FieldAddedBy is the field every cart record must carry.
const FieldAddedBy = "addedBy"

// Record is one keyed entry of a collection.
type Record struct {
	Key    string `json:"key"`
	Fields Fields `json:"fields"`
	Seq    int64  `json:"seq"`
}

// ChildEvent is a "child added" notification delivered by a store.
//
// Value is the raw JSON of the child. It is not guaranteed to be a mapping:
// a writer may store a primitive, which consumers must treat as a shape
// mismatch rather than a failure.
type ChildEvent struct {
	Collection string          `json:"collection"`
	Key        string          `json:"key"`
	Value      json.RawMessage `json:"value"`
	Seq        int64           `json:"seq"`
	Replay     bool            `json:"replay"` // delivered during the subscription's initial replay
}

// ChildHandler receives child-added events.
type ChildHandler func(ChildEvent)

// ShapeError reports a payload that does not decode as a mapping.
type ShapeError struct {
	Field   string // empty when the payload itself is not an object
	Message string
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("shape mismatch at field %q: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("shape mismatch: %s", e.Message)
}

// IsShapeError returns true if err is (or wraps) a ShapeError.
func IsShapeError(err error) bool {
	var se *ShapeError
	return errors.As(err, &se)
}

// ParseFields decodes a raw child payload into Fields.
//
// The payload must be a JSON object. Scalar members decode to their Value;
// nested objects and arrays decode to Opaque. A payload that is not an
// object yields a *ShapeError.
func ParseFields(raw []byte) (Fields, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, &ShapeError{Message: "empty payload"}
	}
	if raw[0] != '{' {
		return nil, &ShapeError{Message: fmt.Sprintf("payload is not a mapping: %s", truncate(raw, 32))}
	}

	var members map[string]json.RawMessage
	if err := json.Unmarshal(raw, &members); err != nil {
		return nil, &ShapeError{Message: err.Error()}
	}

	fields := make(Fields, len(members))
	for name, member := range members {
		v, err := decodeMember(member)
		if err != nil {
			return nil, &ShapeError{Field: name, Message: err.Error()}
		}
		fields[name] = v
	}
	return fields, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
