package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/attachsort/internal/dedup"
	"github.com/teemow/attachsort/internal/gmail"
)

func TestExtractor_PartsAndFetch(t *testing.T) {
	mail := newFakeMail().add("m1",
		fakePart{filename: "../../etc/report.txt", mimeType: "text/plain", data: []byte("quarterly report")},
		fakePart{filename: "broken.pdf", mimeType: "application/pdf", getErr: errors.New("gone")},
	)
	e := NewExtractor(mail, fastRetry(), nil)
	ctx := context.Background()

	parts, err := e.Parts(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, parts, 2)

	att, err := e.Fetch(ctx, parts[0])
	require.NoError(t, err)
	assert.Equal(t, "m1", att.SourceMessageID)
	assert.Equal(t, "1", att.PartID)
	assert.Equal(t, gmail.SanitizeFilename("../../etc/report.txt"), att.Filename)
	assert.NotContains(t, att.Filename, "/")
	assert.Equal(t, []byte("quarterly report"), att.Data)
	assert.Equal(t, dedup.ContentHash([]byte("quarterly report")), att.ContentHash)
	assert.Contains(t, att.MimeType, "text/plain")

	_, err = e.Fetch(ctx, parts[1])
	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, StageFetch, upErr.Stage)
}

func TestExtractor_MessageFailure(t *testing.T) {
	mail := newFakeMail().add("m1")
	mail.messageErr["m1"] = errors.New("not found")
	e := NewExtractor(mail, fastRetry(), nil)

	_, err := e.Parts(context.Background(), "m1")
	require.Error(t, err)

	res := messageFailure("m1", err)
	assert.Equal(t, "m1", res.MessageID)
	assert.Equal(t, StateFetchFailed, res.State)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Error, "fetch: not found")
}

func TestExtractor_FetchRejectsOversizedParts(t *testing.T) {
	mail := newFakeMail()
	e := NewExtractor(mail, fastRetry(), nil)

	_, err := e.Fetch(context.Background(), &gmail.AttachmentInfo{
		MessageID:    "m1",
		AttachmentID: "a1",
		Filename:     "huge.bin",
		Size:         gmail.MaxAttachmentSize + 1,
	})

	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, StageFetch, upErr.Stage)
	assert.Zero(t, mail.getCalls)
}
