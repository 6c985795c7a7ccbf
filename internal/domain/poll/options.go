package poll

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	maxQuestionLen    = 500
	maxDescriptionLen = 1000
	maxOptionTextLen  = 200
	maxOptionSlugLen  = 50
)

var (
	ErrTooFewOptions     = errors.New("poll must have at least 2 options")
	ErrDuplicateOption   = errors.New("duplicate option text")
	ErrDuplicateOptionID = errors.New("duplicate option id")
	ErrEmptyOptionText   = errors.New("option text is required")
	ErrOptionTextTooLong = fmt.Errorf("option text exceeds %d characters", maxOptionTextLen)
)

type OptionInput struct {
	ID   string `json:"id,omitempty"`
	Text string `json:"text"`
}

// slugify derives a URL-safe option id from its text: lowercased,
// whitespace runs collapsed to hyphens, truncated on a rune boundary
// so multi-byte text never yields an invalid id.
func slugify(text string) string {
	s := strings.Join(strings.Fields(strings.ToLower(text)), "-")
	if len(s) > maxOptionSlugLen {
		cut := maxOptionSlugLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return s
}

// buildOptions normalizes raw option inputs into stored options,
// rejecting blank or oversized texts and duplicates. Text uniqueness is
// case-insensitive after trimming; ids must be unique verbatim.
func buildOptions(inputs []OptionInput) ([]Option, error) {
	if len(inputs) < 2 {
		return nil, ErrTooFewOptions
	}

	opts := make([]Option, 0, len(inputs))
	seenText := make(map[string]struct{}, len(inputs))
	seenID := make(map[string]struct{}, len(inputs))

	for _, in := range inputs {
		text := strings.TrimSpace(in.Text)
		if text == "" {
			return nil, ErrEmptyOptionText
		}
		if len(text) > maxOptionTextLen {
			return nil, ErrOptionTextTooLong
		}

		key := strings.ToLower(text)
		if _, dup := seenText[key]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateOption, text)
		}
		seenText[key] = struct{}{}

		id := strings.TrimSpace(in.ID)
		if id == "" {
			id = slugify(text)
		}
		if _, dup := seenID[id]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateOptionID, id)
		}
		seenID[id] = struct{}{}

		opts = append(opts, Option{ID: id, Text: text})
	}

	return opts, nil
}
