package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/teemow/attachsort/internal/category"
	"github.com/teemow/attachsort/internal/drive"
	"github.com/teemow/attachsort/internal/gmail"
)

type fakePart struct {
	filename string
	mimeType string
	data     []byte
	getErr   error
}

type fakeMail struct {
	mu sync.Mutex

	order    []string
	messages map[string][]fakePart

	listErr      error
	messageErr   map[string]error
	partsDelay   time.Duration
	queries      []string
	listCalls    int
	getCalls     int
	partsCalls   int
	maxRequested int64
}

func newFakeMail() *fakeMail {
	return &fakeMail{
		messages:   make(map[string][]fakePart),
		messageErr: make(map[string]error),
	}
}

func (m *fakeMail) add(id string, parts ...fakePart) *fakeMail {
	m.order = append(m.order, id)
	m.messages[id] = parts
	return m
}

func (m *fakeMail) ListMessageIDs(_ context.Context, q string, maxResults int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	m.queries = append(m.queries, q)
	m.maxRequested = maxResults
	if m.listErr != nil {
		return nil, m.listErr
	}
	ids := append([]string(nil), m.order...)
	if int64(len(ids)) > maxResults {
		ids = ids[:maxResults]
	}
	return ids, nil
}

func (m *fakeMail) ListAttachments(_ context.Context, messageID string) ([]*gmail.AttachmentInfo, error) {
	m.mu.Lock()
	m.partsCalls++
	delay := m.partsDelay
	err := m.messageErr[messageID]
	parts := m.messages[messageID]
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}

	infos := make([]*gmail.AttachmentInfo, 0, len(parts))
	for i, p := range parts {
		infos = append(infos, &gmail.AttachmentInfo{
			MessageID:    messageID,
			PartID:       fmt.Sprint(i + 1),
			AttachmentID: fmt.Sprintf("%s-att-%d", messageID, i+1),
			Filename:     p.filename,
			MimeType:     p.mimeType,
			Size:         int64(len(p.data)),
		})
	}
	return infos, nil
}

func (m *fakeMail) GetAttachment(_ context.Context, messageID, attachmentID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	for i, p := range m.messages[messageID] {
		if attachmentID == fmt.Sprintf("%s-att-%d", messageID, i+1) {
			if p.getErr != nil {
				return nil, p.getErr
			}
			return p.data, nil
		}
	}
	return nil, errors.New("attachment not found")
}

type fakeStorage struct {
	mu sync.Mutex

	nextID  int
	files   map[string]*drive.FileInfo
	content map[string][]byte
	folders map[string]string

	uploadErr    func(name string) error
	findErr      error
	createErr    error
	addParentErr error

	uploads      int
	folderCreate map[string]int
	moves        int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		files:        make(map[string]*drive.FileInfo),
		content:      make(map[string][]byte),
		folders:      make(map[string]string),
		folderCreate: make(map[string]int),
	}
}

func (s *fakeStorage) id(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%d", prefix, s.nextID)
}

func (s *fakeStorage) UploadFile(_ context.Context, name string, content io.Reader, options *drive.UploadOptions) (*drive.FileInfo, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadErr != nil {
		if err := s.uploadErr(name); err != nil {
			return nil, err
		}
	}
	s.uploads++
	f := &drive.FileInfo{ID: s.id("file"), Name: name, MimeType: options.MimeType, Size: int64(len(data)), Parents: []string{"root"}}
	s.files[f.ID] = f
	s.content[f.ID] = data
	return f, nil
}

func (s *fakeStorage) AddParent(_ context.Context, fileID, folderID string) (*drive.FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addParentErr != nil {
		return nil, s.addParentErr
	}
	f, ok := s.files[fileID]
	if !ok {
		return nil, errors.New("file not found")
	}
	s.moves++
	f.Parents = []string{folderID}
	return f, nil
}

func (s *fakeStorage) FindFolder(_ context.Context, name, _ string) (*drive.FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	if id, ok := s.folders[name]; ok {
		return &drive.FileInfo{ID: id, Name: name, MimeType: drive.FolderMimeType}, nil
	}
	return nil, nil
}

func (s *fakeStorage) CreateFolder(_ context.Context, name string, _ []string) (*drive.FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.folderCreate[name]++
	id := s.id("folder")
	s.folders[name] = id
	return &drive.FileInfo{ID: id, Name: name, MimeType: drive.FolderMimeType}, nil
}

func (s *fakeStorage) parentOf(fileID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.files[fileID]; ok && len(f.Parents) == 1 {
		return f.Parents[0]
	}
	return ""
}

// textOCR returns the attachment bytes as text
type textOCR struct{}

func (textOCR) Extract(_ context.Context, data []byte, _ string) string { return string(data) }

type fakeClassifier struct {
	mu     sync.Mutex
	labels map[string]category.Category
	calls  int
}

func (c *fakeClassifier) Classify(_ context.Context, text string) category.Category {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if text == "" {
		return category.Uncategorized
	}
	if cat, ok := c.labels[text]; ok {
		return cat
	}
	return category.Other
}

// fakeCompleter stands in for the completion service behind classify.Classifier
type fakeCompleter struct {
	mu    sync.Mutex
	reply string
	err   error
	hang  bool
	calls int
}

func (f *fakeCompleter) Complete(ctx context.Context, _, _ string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.hang {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.reply, f.err
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
