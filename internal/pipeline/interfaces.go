package pipeline

import (
	"context"
	"io"

	"github.com/teemow/attachsort/internal/category"
	"github.com/teemow/attachsort/internal/drive"
	"github.com/teemow/attachsort/internal/gmail"
)

// MailSource is the read-only mailbox surface. *gmail.Client implements it.
type MailSource interface {
	ListMessageIDs(ctx context.Context, q string, maxResults int64) ([]string, error)
	ListAttachments(ctx context.Context, messageID string) ([]*gmail.AttachmentInfo, error)
	GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)
}

// Storage is the file storage surface. *drive.Client implements it.
type Storage interface {
	UploadFile(ctx context.Context, name string, content io.Reader, options *drive.UploadOptions) (*drive.FileInfo, error)
	AddParent(ctx context.Context, fileID, folderID string) (*drive.FileInfo, error)
	FindFolder(ctx context.Context, name, parentID string) (*drive.FileInfo, error)
	CreateFolder(ctx context.Context, name string, parentFolders []string) (*drive.FileInfo, error)
}

// TextExtractor returns the text of an attachment, or "" when none can be read.
// *ocr.Extractor implements it.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, mimeType string) string
}

// Classifier maps text onto the taxonomy. It never fails.
// *classify.Classifier implements it.
type Classifier interface {
	Classify(ctx context.Context, text string) category.Category
}

type noText struct{}

func (noText) Extract(context.Context, []byte, string) string { return "" }

type uncategorized struct{}

func (uncategorized) Classify(context.Context, string) category.Category {
	return category.Uncategorized
}
