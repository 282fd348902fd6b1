package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Limits for storage-encoded sequences.
const (
	MaxSequenceItems   = 64
	MaxSequenceItemLen = 512
)

var (
	// ErrCorruptSequence indicates stored text is not a JSON string array.
	ErrCorruptSequence = errors.New("corrupt stored sequence")
	// ErrInvalidSequence indicates a sequence cannot be stored losslessly.
	ErrInvalidSequence = errors.New("invalid sequence")
)

// EncodeSequence serializes an ordered list of strings to compact JSON text.
// A nil list encodes as "[]".
func EncodeSequence(items []string) (string, error) {
	if err := ValidateSequence(items); err != nil {
		return "", err
	}
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encode sequence: %w", err)
	}
	return string(b), nil
}

// DecodeSequence parses text produced by EncodeSequence.
// Empty text decodes to an empty, non-nil list.
func DecodeSequence(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return []string{}, nil
	}
	var items []string
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSequence, err)
	}
	if items == nil {
		items = []string{}
	}
	return items, nil
}

// ValidateSequence rejects items that would not survive a round trip.
func ValidateSequence(items []string) error {
	if len(items) > MaxSequenceItems {
		return fmt.Errorf("%w: at most %d items", ErrInvalidSequence, MaxSequenceItems)
	}
	for i, item := range items {
		if len(item) > MaxSequenceItemLen {
			return fmt.Errorf("%w: item %d exceeds %d bytes", ErrInvalidSequence, i, MaxSequenceItemLen)
		}
		if !utf8.ValidString(item) {
			return fmt.Errorf("%w: item %d is not valid UTF-8", ErrInvalidSequence, i)
		}
		if strings.IndexFunc(item, unicode.IsControl) >= 0 {
			return fmt.Errorf("%w: item %d contains control characters", ErrInvalidSequence, i)
		}
	}
	return nil
}
