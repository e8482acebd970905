package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// localPrefix marks local ids in their string form. Text ids may not use it.
const localPrefix = "local:"

// IDKind distinguishes the representations a document id can take.
type IDKind uint8

const (
	// IDNone is the zero id.
	IDNone IDKind = iota
	// IDNumeric is an integer id assigned by a document store.
	IDNumeric
	// IDText is an opaque string id assigned by a document store.
	IDText
	// IDLocal marks a placeholder document that has no remote counterpart yet.
	IDLocal
)

// DocID identifies a document. Stores may assign numeric or string ids; the
// variant keeps the two apart instead of inferring at use sites.
type DocID struct {
	kind IDKind
	num  int64
	text string
}

// NumericID returns a numeric document id.
func NumericID(n int64) DocID {
	return DocID{kind: IDNumeric, num: n}
}

// TextID returns an opaque string document id.
func TextID(s string) DocID {
	return DocID{kind: IDText, text: s}
}

// LocalID returns an id for a document that only exists in memory.
func LocalID(name string) DocID {
	return DocID{kind: IDLocal, text: name}
}

// Kind reports the id representation.
func (id DocID) Kind() IDKind { return id.kind }

// IsZero reports whether the id is unset.
func (id DocID) IsZero() bool { return id.kind == IDNone }

// IsLocal reports whether the id has no remote counterpart.
func (id DocID) IsLocal() bool { return id.kind == IDLocal }

// IsStored reports whether a store could have assigned the id: numeric, or
// text outside the local namespace.
func (id DocID) IsStored() bool {
	switch id.kind {
	case IDNumeric:
		return true
	case IDText:
		return id.text != "" && !strings.HasPrefix(id.text, localPrefix)
	default:
		return false
	}
}

// Numeric returns the integer value for numeric ids.
func (id DocID) Numeric() (int64, bool) {
	if id.kind != IDNumeric {
		return 0, false
	}
	return id.num, true
}

// String renders the id for logs, URLs and user input.
func (id DocID) String() string {
	switch id.kind {
	case IDNumeric:
		return strconv.FormatInt(id.num, 10)
	case IDText:
		return id.text
	case IDLocal:
		return localPrefix + id.text
	default:
		return ""
	}
}

// ParseDocID parses user or URL input. Integers become numeric ids, a
// "local:" prefix yields a local id, anything else is a text id.
func ParseDocID(raw string) (DocID, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return DocID{}, ErrInvalidID
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return NumericID(n), nil
	}
	if name, ok := strings.CutPrefix(value, localPrefix); ok {
		if name == "" {
			return DocID{}, ErrInvalidID
		}
		return LocalID(name), nil
	}
	return TextID(value), nil
}

// MarshalJSON encodes numeric ids as numbers and other ids as strings. A
// text id inside the local namespace would decode as a local id and is
// rejected.
func (id DocID) MarshalJSON() ([]byte, error) {
	switch id.kind {
	case IDNumeric:
		return []byte(strconv.FormatInt(id.num, 10)), nil
	case IDNone:
		return []byte("null"), nil
	case IDText:
		if strings.HasPrefix(id.text, localPrefix) {
			return nil, fmt.Errorf("%w: text id %q uses the local prefix", ErrInvalidID, id.text)
		}
		return json.Marshal(id.text)
	default:
		return json.Marshal(id.String())
	}
}

// UnmarshalJSON accepts a JSON number or string.
func (id *DocID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = DocID{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseDocID(s)
		if err != nil {
			return err
		}
		if parsed.kind == IDNumeric {
			// quoted numbers stay opaque strings
			parsed = TextID(strings.TrimSpace(s))
		}
		*id = parsed
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidID, data)
	}
	*id = NumericID(n)
	return nil
}

// Document is a persisted text document.
type Document struct {
	ID        DocID     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Role identifies the author of a chat message.
type Role string

const (
	// RoleUser marks a message typed by the user.
	RoleUser Role = "user"
	// RoleAssistant marks a reply from the assistant.
	RoleAssistant Role = "assistant"
)

// ChatMessage is one entry of the append-only chat log.
type ChatMessage struct {
	ID        string    `json:"id,omitempty"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
