package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/attachsort/internal/gmail"
	"github.com/teemow/attachsort/internal/google"
)

func TestRunSort_RequiresStoredToken(t *testing.T) {
	store := google.NewFileTokenProvider(t.TempDir())
	var out bytes.Buffer

	err := runSort(context.Background(), &out, &pipelineOptions{}, store, "work", gmail.DateRange{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "attachsort login --account work")
	assert.Empty(t, out.String())
}

func TestSortCmd_RejectsMalformedDates(t *testing.T) {
	cmd := newSortCmd()
	cmd.SetArgs([]string{"--start-date", "yesterday", "--token-dir", t.TempDir()})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "startDate")
}

func TestVersionCmd(t *testing.T) {
	SetVersion("1.2.3")
	t.Cleanup(func() { SetVersion("dev") })

	var out bytes.Buffer
	cmd := newVersionCmd()
	cmd.SetOut(&out)
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "attachsort version 1.2.3\n", out.String())
}
