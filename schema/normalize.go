package schema

import "strings"

// NormalizeTitle trims a document title and rejects blank or multi-line titles.
func NormalizeTitle(title string) (string, error) {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return "", ErrInvalidRequest
	}
	if strings.ContainsAny(trimmed, "\r\n") {
		return "", ErrInvalidRequest
	}
	return trimmed, nil
}

// NormalizeMessage trims chat input and rejects blank messages.
func NormalizeMessage(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyMessage
	}
	return text, nil
}
