package category

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		label   string
		want    Category
		wantErr bool
	}{
		{name: "exact", label: "Financial", want: Financial},
		{name: "lower case", label: "legal", want: Legal},
		{name: "padded with period", label: "  Technical.\n", want: Technical},
		{name: "quoted", label: `"Personal"`, want: Personal},
		{name: "prefixed", label: "Category: Other", want: Other},
		{name: "quoted then period", label: "Category: \"legal\".", want: Legal},
		{name: "bold markdown", label: "**Financial**", want: Financial},
		{name: "explicit uncategorized", label: "Uncategorized", want: Uncategorized},
		{name: "empty", label: "", want: Uncategorized, wantErr: true},
		{name: "whitespace", label: "   ", want: Uncategorized, wantErr: true},
		{name: "hallucinated", label: "Medical", want: Uncategorized, wantErr: true},
		{name: "sentence", label: "This document is Financial in nature", want: Uncategorized, wantErr: true},
		{name: "path traversal", label: "../Financial", want: Uncategorized, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.label)
			assert.Equal(t, tt.want, got)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrUnknownLabel))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFromLabelIsTotal(t *testing.T) {
	inputs := []string{"", "Financial", "financial!", "{}", "Legal\nTechnical", "\x00", "Other."}
	for _, in := range inputs {
		assert.True(t, FromLabel(in).Valid(), "FromLabel(%q) returned a value outside the taxonomy", in)
	}
}

func TestFolderName(t *testing.T) {
	assert.Equal(t, "Legal", Legal.FolderName())
	assert.Equal(t, "Uncategorized", Category("Invoices/2024").FolderName())
}

func TestAssignableExcludesFallback(t *testing.T) {
	assignable := Assignable()
	assert.Len(t, assignable, 5)
	assert.NotContains(t, assignable, Uncategorized)
	assert.Equal(t, Uncategorized, All()[len(All())-1])
}
