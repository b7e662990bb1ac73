package gmail

import (
	"fmt"
	"strings"
	"time"
)

// DateRange restricts a message search. Either bound may be nil.
type DateRange struct {
	Start *time.Time
	End   *time.Time
}

// Inverted reports whether both bounds are set and Start is after End.
// No message can match an inverted range.
func (r DateRange) Inverted() bool {
	return r.Start != nil && r.End != nil && r.Start.After(*r.End)
}

// ParseDate parses an ISO date ("2024-01-31") or an RFC 3339 timestamp.
// Empty input returns nil.
func ParseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid date %q: expected YYYY-MM-DD or RFC 3339", s)
}

// BuildQuery returns the Gmail search query for messages with attachments in r.
// Bounds are expressed as unix seconds, which Gmail accepts for after:/before:.
func BuildQuery(r DateRange) string {
	terms := []string{"has:attachment"}
	if r.Start != nil {
		terms = append(terms, fmt.Sprintf("after:%d", r.Start.Unix()))
	}
	if r.End != nil {
		terms = append(terms, fmt.Sprintf("before:%d", r.End.Unix()))
	}
	return strings.Join(terms, " ")
}
