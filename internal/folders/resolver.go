// Package folders resolves categories to storage folder IDs, creating each
// category folder at most once per run.
package folders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/teemow/attachsort/internal/category"
	"github.com/teemow/attachsort/internal/drive"
	"github.com/teemow/attachsort/internal/instrumentation"
	"github.com/teemow/attachsort/internal/logging"
	"github.com/teemow/attachsort/internal/retry"
)

// Backend is the storage surface the resolver needs. *drive.Client implements it.
type Backend interface {
	FindFolder(ctx context.Context, name, parentID string) (*drive.FileInfo, error)
	CreateFolder(ctx context.Context, name string, parentFolders []string) (*drive.FileInfo, error)
}

// Record maps a category to the folder holding its files
type Record struct {
	Category category.Category `json:"category"`
	FolderID string            `json:"folderId"`
	Created  bool              `json:"created"`
}

// Config configures a Resolver
type Config struct {
	// RootFolderID places category folders under this folder. Empty means the Drive root.
	RootFolderID string

	// Timeout bounds one shared lookup-or-create. Zero means DefaultTimeout.
	Timeout time.Duration

	Retry   retry.Policy
	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// DefaultTimeout bounds a shared folder lookup when Config.Timeout is unset
const DefaultTimeout = 30 * time.Second

// Resolver caches category folder IDs for the lifetime of one run.
// It is safe for concurrent use.
type Resolver struct {
	backend Backend
	root    string
	timeout time.Duration
	policy  retry.Policy
	metrics *instrumentation.Metrics
	logger  *slog.Logger

	group singleflight.Group

	mu    sync.RWMutex
	cache map[category.Category]Record
}

// NewResolver creates a Resolver with an empty cache
func NewResolver(backend Backend, cfg Config) *Resolver {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Resolver{
		backend: backend,
		root:    cfg.RootFolderID,
		timeout: cfg.Timeout,
		policy:  cfg.Retry,
		metrics: cfg.Metrics,
		logger:  logging.WithStage(cfg.Logger, "resolve"),
		cache:   make(map[category.Category]Record),
	}
}

// Resolve returns the folder ID for c, looking it up or creating it on
// first use. Concurrent calls for the same category share one lookup and at
// most one creation. Values outside the taxonomy resolve to the
// Uncategorized folder.
func (r *Resolver) Resolve(ctx context.Context, c category.Category) (string, error) {
	c = category.Category(c.FolderName())

	if rec, ok := r.cached(c); ok {
		return rec.FolderID, nil
	}

	// The shared call outlives any single caller: it runs detached from ctx
	// under its own timeout, and each caller stops waiting when its own ctx ends.
	ch := r.group.DoChan(string(c), func() (any, error) {
		if rec, ok := r.cached(c); ok {
			return rec.FolderID, nil
		}

		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		rec, err := r.findOrCreate(shared, c)
		if err != nil {
			return "", err
		}

		r.mu.Lock()
		r.cache[c] = rec
		r.mu.Unlock()
		return rec.FolderID, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", fmt.Errorf("resolve folder %q: %w", c.FolderName(), ctx.Err())
	}
}

// Records returns the resolved folders in category order
func (r *Resolver) Records() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order := make(map[category.Category]int)
	for i, c := range category.All() {
		order[c] = i
	}

	records := make([]Record, 0, len(r.cache))
	for _, rec := range r.cache {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return order[records[i].Category] < order[records[j].Category]
	})
	return records
}

func (r *Resolver) cached(c category.Category) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.cache[c]
	return rec, ok
}

// findOrCreate looks the folder up and creates it when missing. The lookup is
// repeated on each retry so a creation that succeeded upstream but failed to
// report back is found instead of duplicated.
func (r *Resolver) findOrCreate(ctx context.Context, c category.Category) (Record, error) {
	name := c.FolderName()
	var parents []string
	if r.root != "" {
		parents = []string{r.root}
	}

	return retry.Do(ctx, r.policy, func(ctx context.Context) (Record, error) {
		found, lookupErr := r.observe(ctx, instrumentation.OperationSearch, func(ctx context.Context) (*drive.FileInfo, error) {
			return r.backend.FindFolder(ctx, name, r.root)
		})
		if lookupErr == nil && found != nil {
			return Record{Category: c, FolderID: found.ID}, nil
		}
		if lookupErr != nil {
			r.logger.Warn("folder lookup failed, creating folder", logging.Category(name), logging.Err(lookupErr))
		}

		created, err := r.observe(ctx, instrumentation.OperationCreate, func(ctx context.Context) (*drive.FileInfo, error) {
			return r.backend.CreateFolder(ctx, name, parents)
		})
		if err != nil {
			return Record{}, fmt.Errorf("resolve folder %q: %w", name, errors.Join(lookupErr, err))
		}

		r.metrics.RecordFolderCreated(ctx, name)
		r.logger.Info("created category folder", logging.Category(name))
		return Record{Category: c, FolderID: created.ID, Created: true}, nil
	})
}

// observe records one Drive folder call under operation
func (r *Resolver) observe(ctx context.Context, operation string, fn func(context.Context) (*drive.FileInfo, error)) (*drive.FileInfo, error) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceDrive, operation)
	defer span.End()

	start := time.Now()
	info, err := fn(ctx)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	}
	r.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceDrive, operation, status, time.Since(start))
	return info, err
}
