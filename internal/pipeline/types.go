package pipeline

import (
	"fmt"
	"sort"
	"sync"

	"github.com/teemow/attachsort/internal/category"
	"github.com/teemow/attachsort/internal/dedup"
	"github.com/teemow/attachsort/internal/folders"
)

// Status is the externally visible outcome of one attachment
type Status string

const (
	StatusUploaded  Status = "uploaded"
	StatusDuplicate Status = "duplicate"
	StatusFailed    Status = "failed"
)

// State is a position in the per-attachment state machine
type State string

const (
	StateFetched        State = "Fetched"
	StateHashed         State = "Hashed"
	StateDuplicate      State = "Duplicate"
	StateUnique         State = "Unique"
	StateUploaded       State = "Uploaded"
	StateTextExtracted  State = "TextExtracted"
	StateClassified     State = "Classified"
	StateFolderResolved State = "FolderResolved"
	StateMoved          State = "Moved"
	StateDone           State = "Done"

	StateFetchFailed   State = "FetchFailed"
	StateDedupFailed   State = "DedupFailed"
	StateUploadFailed  State = "UploadFailed"
	StateResolveFailed State = "ResolveFailed"
	StateMoveFailed    State = "MoveFailed"
)

// Terminal reports whether no further transition leaves s
func (s State) Terminal() bool {
	switch s {
	case StateDone, StateDuplicate,
		StateFetchFailed, StateDedupFailed, StateUploadFailed, StateResolveFailed, StateMoveFailed:
		return true
	}
	return false
}

// Attachment is one decoded attachment part
type Attachment struct {
	SourceMessageID string
	PartID          string
	Filename        string
	MimeType        string
	Data            []byte
	ContentHash     string
}

// NewAttachment builds an Attachment and derives its content hash from data
func NewAttachment(messageID, partID, filename, mimeType string, data []byte) Attachment {
	return Attachment{
		SourceMessageID: messageID,
		PartID:          partID,
		Filename:        filename,
		MimeType:        mimeType,
		Data:            data,
		ContentHash:     dedup.ContentHash(data),
	}
}

// Result is the recorded outcome of one attachment. Resumed marks an upload
// left unfiled by an earlier run that this run moved into its folder.
type Result struct {
	MessageID   string            `json:"messageId"`
	PartID      string            `json:"partId,omitempty"`
	Filename    string            `json:"filename,omitempty"`
	ContentHash string            `json:"contentHash,omitempty"`
	Status      Status            `json:"status"`
	State       State             `json:"state"`
	Category    category.Category `json:"category,omitempty"`
	FileID      string            `json:"fileId,omitempty"`
	FolderID    string            `json:"folderId,omitempty"`
	Resumed     bool              `json:"resumed,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// Counts tallies results by status
type Counts struct {
	Uploaded  int `json:"uploaded"`
	Duplicate int `json:"duplicate"`
	Failed    int `json:"failed"`
}

// Total is the number of attachments with a recorded outcome
func (c Counts) Total() int {
	return c.Uploaded + c.Duplicate + c.Failed
}

// Report summarizes one run
type Report struct {
	Account    string           `json:"account"`
	Messages   int              `json:"messages"`
	Results    []Result         `json:"results"`
	Counts     Counts           `json:"counts"`
	Folders    []folders.Record `json:"folders,omitempty"`
	Incomplete bool             `json:"incomplete,omitempty"`
}

// Message is a one-line human summary of the run
func (r *Report) Message() string {
	var msg string
	switch {
	case len(r.Results) == 0:
		msg = "No attachments found."
	case r.Counts.Failed == 0:
		msg = fmt.Sprintf("Processed %d attachments successfully.", len(r.Results))
	default:
		msg = fmt.Sprintf("Processed %d attachments with %d failures.", len(r.Results), r.Counts.Failed)
	}
	if r.Incomplete {
		msg += " The run deadline was reached before all attachments were processed."
	}
	return msg
}

// collector gathers results from concurrent workers and restores a stable
// order (message order, then part order) when the report is built
type collector struct {
	mu         sync.Mutex
	entries    []entry
	incomplete bool
}

type entry struct {
	seq    int
	result Result
}

func (c *collector) add(seq int, r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry{seq: seq, result: r})
}

func (c *collector) markIncomplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.incomplete = true
}

func (c *collector) build(account string, messages int) *Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	sort.SliceStable(c.entries, func(i, j int) bool { return c.entries[i].seq < c.entries[j].seq })

	report := &Report{
		Account:    account,
		Messages:   messages,
		Results:    make([]Result, 0, len(c.entries)),
		Incomplete: c.incomplete,
	}
	for _, e := range c.entries {
		report.Results = append(report.Results, e.result)
		switch e.result.Status {
		case StatusUploaded:
			report.Counts.Uploaded++
		case StatusDuplicate:
			report.Counts.Duplicate++
		case StatusFailed:
			report.Counts.Failed++
		}
	}
	return report
}
