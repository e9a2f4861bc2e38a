package boards

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ElementKind enumerates the drawing primitives a board can hold.
type ElementKind string

const (
	ElementKindLine      ElementKind = "line"
	ElementKindRectangle ElementKind = "rectangle"
	ElementKindCircle    ElementKind = "circle"
	ElementKindArrow     ElementKind = "arrow"
	ElementKindBrush     ElementKind = "brush"
	ElementKindText      ElementKind = "text"
	// ElementKindUnknown marks an element whose type tag is missing or unrecognised.
	ElementKindUnknown ElementKind = "unknown"
)

var (
	// ErrInvalidElement indicates that an element payload is not a JSON object.
	ErrInvalidElement = errors.New("boards: invalid element")
)

var elementKindAliases = map[string]ElementKind{
	"line":      ElementKindLine,
	"rectangle": ElementKindRectangle,
	"rect":      ElementKindRectangle,
	"circle":    ElementKindCircle,
	"ellipse":   ElementKindCircle,
	"arrow":     ElementKindArrow,
	"brush":     ElementKindBrush,
	"freehand":  ElementKindBrush,
	"stroke":    ElementKindBrush,
	"text":      ElementKindText,
}

// ParseElementKind maps a client type tag onto an ElementKind.
func ParseElementKind(tag string) ElementKind {
	if kind, ok := elementKindAliases[strings.ToLower(strings.TrimSpace(tag))]; ok {
		return kind
	}
	return ElementKindUnknown
}

// Element is one drawn primitive. The shape-specific fields stay in the raw
// JSON object exactly as the client sent them; only the type tag is decoded.
type Element struct {
	kind ElementKind
	raw  json.RawMessage
}

// NewElement validates a raw JSON object and wraps it as an Element.
func NewElement(raw []byte) (Element, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Element{}, fmt.Errorf("%w: expected json object", ErrInvalidElement)
	}
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(trimmed, &tag); err != nil {
		return Element{}, fmt.Errorf("%w: %v", ErrInvalidElement, err)
	}
	return Element{
		kind: ParseElementKind(tag.Type),
		raw:  append(json.RawMessage(nil), trimmed...),
	}, nil
}

// Kind returns the decoded type tag.
func (e Element) Kind() ElementKind {
	if e.kind == "" {
		return ElementKindUnknown
	}
	return e.kind
}

// Raw returns a copy of the element's JSON object.
func (e Element) Raw() json.RawMessage {
	return append(json.RawMessage(nil), e.raw...)
}

// MarshalJSON emits the element verbatim.
func (e Element) MarshalJSON() ([]byte, error) {
	if len(e.raw) == 0 {
		return []byte("{}"), nil
	}
	return e.raw, nil
}

// UnmarshalJSON decodes the type tag and keeps the object verbatim.
func (e *Element) UnmarshalJSON(data []byte) error {
	element, err := NewElement(data)
	if err != nil {
		return err
	}
	*e = element
	return nil
}

// EncodeElements serialises an element list for storage. A nil list encodes as "[]".
func EncodeElements(elements []Element) (string, error) {
	if elements == nil {
		elements = []Element{}
	}
	encoded, err := json.Marshal(elements)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// DecodeElements parses a stored element list. Blank input decodes as an empty list.
func DecodeElements(encoded string) ([]Element, error) {
	if strings.TrimSpace(encoded) == "" {
		return []Element{}, nil
	}
	var elements []Element
	if err := json.Unmarshal([]byte(encoded), &elements); err != nil {
		return nil, err
	}
	if elements == nil {
		elements = []Element{}
	}
	return elements, nil
}

// CloneElements returns an independent copy of the list.
func CloneElements(elements []Element) []Element {
	if elements == nil {
		return nil
	}
	cloned := make([]Element, len(elements))
	copy(cloned, elements)
	return cloned
}
