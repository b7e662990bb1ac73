package classify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/attachsort/internal/category"
)

type fakeCompleter struct {
	mu      sync.Mutex
	answer  string
	err     error
	delay   time.Duration
	calls   int
	systems []string
	inputs  []string
}

func (f *fakeCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.systems = append(f.systems, system)
	f.inputs = append(f.inputs, user)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.answer, f.err
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		answer    string
		err       error
		text      string
		want      category.Category
		wantCalls int
	}{
		{name: "exact label", answer: "Financial", text: "Invoice #123 Total $50", want: category.Financial, wantCalls: 1},
		{name: "decorated label", answer: "  Category: \"legal\".\n", text: "NDA", want: category.Legal, wantCalls: 1},
		{name: "unknown label", answer: "Recipes", text: "pancakes", want: category.Uncategorized, wantCalls: 1},
		{name: "sentence label", answer: "I think this is Financial", text: "bill", want: category.Uncategorized, wantCalls: 1},
		{name: "service error", err: errors.New("503"), text: "anything", want: category.Uncategorized, wantCalls: 1},
		{name: "empty text", answer: "Financial", text: "", want: category.Uncategorized, wantCalls: 0},
		{name: "whitespace text", answer: "Financial", text: " \n\t ", want: category.Uncategorized, wantCalls: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completer := &fakeCompleter{answer: tt.answer, err: tt.err}
			c := New(completer, Config{})

			got := c.Classify(context.Background(), tt.text)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantCalls, completer.calls)
			assert.True(t, got.Valid())
		})
	}
}

func TestClassify_SendsTaxonomyAndTruncates(t *testing.T) {
	completer := &fakeCompleter{answer: "Technical"}
	c := New(completer, Config{MaxInputBytes: 10})

	got := c.Classify(context.Background(), strings.Repeat("k8s ", 20))
	assert.Equal(t, category.Technical, got)

	require.Len(t, completer.inputs, 1)
	assert.Len(t, completer.inputs[0], 10)
	for _, name := range []string{"Financial", "Legal", "Technical", "Personal", "Other"} {
		assert.Contains(t, completer.systems[0], name)
	}
	assert.NotContains(t, completer.systems[0], "Uncategorized")
}

func TestClassify_Timeout(t *testing.T) {
	completer := &fakeCompleter{answer: "Legal", delay: time.Second}
	c := New(completer, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.Equal(t, category.Uncategorized, c.Classify(ctx, "contract"))
}

func TestClassify_RateLimited(t *testing.T) {
	completer := &fakeCompleter{answer: "Personal"}
	c := New(completer, Config{RatePerSecond: 1, Burst: 1})

	assert.Equal(t, category.Personal, c.Classify(context.Background(), "holiday photos"))

	// The next token is a second away; a short deadline makes Wait fail.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Equal(t, category.Uncategorized, c.Classify(ctx, "more photos"))
	assert.Equal(t, 1, completer.calls)
}

func TestClassify_NilCompleter(t *testing.T) {
	c := New(nil, Config{})
	assert.Equal(t, category.Uncategorized, c.Classify(context.Background(), "text"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "a", truncate("aé", 2))
}
