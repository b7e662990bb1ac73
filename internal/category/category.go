// Package category defines the closed document taxonomy that attachments are
// filed under, and the total mapping from untrusted label text onto it.
package category

import (
	"errors"
	"fmt"
	"strings"
)

// Category is one label from the closed classification taxonomy.
type Category string

const (
	Financial     Category = "Financial"
	Legal         Category = "Legal"
	Technical     Category = "Technical"
	Personal      Category = "Personal"
	Other         Category = "Other"
	Uncategorized Category = "Uncategorized"
)

// ErrUnknownLabel is returned by Parse when a label is outside the taxonomy.
var ErrUnknownLabel = errors.New("label is not part of the category taxonomy")

// all is ordered; Uncategorized stays last.
var all = []Category{Financial, Legal, Technical, Personal, Other, Uncategorized}

// All returns the categories in their canonical order.
func All() []Category {
	out := make([]Category, len(all))
	copy(out, all)
	return out
}

// Assignable returns the categories a classifier may choose from. It excludes
// Uncategorized, which is reserved for fallbacks.
func Assignable() []Category {
	return All()[:len(all)-1]
}

// Valid reports whether c is a member of the taxonomy.
func (c Category) Valid() bool {
	for _, known := range all {
		if c == known {
			return true
		}
	}
	return false
}

// FolderName returns the storage folder name used for c. Invalid values map to
// the Uncategorized folder so raw labels never reach storage.
func (c Category) FolderName() string {
	if !c.Valid() {
		return string(Uncategorized)
	}
	return string(c)
}

func (c Category) String() string {
	return string(c)
}

// Parse maps label text onto the taxonomy. Surrounding whitespace, quotes,
// trailing punctuation and letter case are ignored, as is a leading
// "Category:" prefix. Anything else is an ErrUnknownLabel.
func Parse(label string) (Category, error) {
	normalized := normalize(label)
	if normalized == "" {
		return Uncategorized, fmt.Errorf("empty label: %w", ErrUnknownLabel)
	}
	for _, c := range all {
		if strings.EqualFold(normalized, string(c)) {
			return c, nil
		}
	}
	return Uncategorized, fmt.Errorf("%q: %w", truncate(label, 64), ErrUnknownLabel)
}

// FromLabel is the total form of Parse: unknown labels become Uncategorized.
func FromLabel(label string) Category {
	c, err := Parse(label)
	if err != nil {
		return Uncategorized
	}
	return c
}

func normalize(label string) string {
	s := strings.TrimSpace(label)
	if i := strings.Index(s, ":"); i >= 0 && strings.EqualFold(strings.TrimSpace(s[:i]), "category") {
		s = strings.TrimSpace(s[i+1:])
	}
	return strings.Trim(s, " \t\r\n\"'`*.!")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
