package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/attachsort/internal/gmail"
)

func TestScanner_Scan(t *testing.T) {
	mail := newFakeMail().add("m1").add("m2").add("m3")
	s := NewScanner(mail, 2, fastRetry(), nil)

	dr, err := ParseDateRange("2024-01-01", "2024-02-01")
	require.NoError(t, err)

	ids, err := s.Scan(context.Background(), dr)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, ids)
	assert.Equal(t, int64(2), mail.maxRequested)
	require.Len(t, mail.queries, 1)
	assert.Equal(t, gmail.BuildQuery(dr), mail.queries[0])
	assert.Contains(t, mail.queries[0], "has:attachment")
}

func TestScanner_DefaultMaxMessages(t *testing.T) {
	mail := newFakeMail()
	s := NewScanner(mail, 0, fastRetry(), nil)

	_, err := s.Scan(context.Background(), gmail.DateRange{})
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultMaxMessages), mail.maxRequested)
}

func TestScanner_InvertedRange(t *testing.T) {
	mail := newFakeMail().add("m1")
	s := NewScanner(mail, 10, fastRetry(), nil)

	dr, err := ParseDateRange("2024-03-01", "2024-01-01")
	require.NoError(t, err)

	ids, err := s.Scan(context.Background(), dr)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Zero(t, mail.listCalls)
}

func TestScanner_ErrorIsUpstream(t *testing.T) {
	mail := newFakeMail()
	mail.listErr = errors.New("unavailable")
	s := NewScanner(mail, 10, fastRetry(), nil)

	ids, err := s.Scan(context.Background(), gmail.DateRange{})
	assert.Nil(t, ids)

	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, StageScan, upErr.Stage)
	assert.ErrorIs(t, err, mail.listErr)
}

func TestParseDateRange(t *testing.T) {
	tests := []struct {
		name      string
		start     string
		end       string
		wantField string
		wantStart bool
		wantEnd   bool
	}{
		{name: "both empty"},
		{name: "start only", start: "2024-01-01", wantStart: true},
		{name: "end only", end: "2024-01-31", wantEnd: true},
		{name: "rfc3339", start: "2024-01-01T10:00:00Z", end: "2024-01-02T00:00:00Z", wantStart: true, wantEnd: true},
		{name: "bad start", start: "yesterday", wantField: "startDate"},
		{name: "bad end", start: "2024-01-01", end: "01/31/2024", wantField: "endDate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dr, err := ParseDateRange(tt.start, tt.end)
			if tt.wantField != "" {
				var vErr *ValidationError
				require.ErrorAs(t, err, &vErr)
				assert.Equal(t, tt.wantField, vErr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, dr.Start != nil)
			assert.Equal(t, tt.wantEnd, dr.End != nil)
		})
	}
}
