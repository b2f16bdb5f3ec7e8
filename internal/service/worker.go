package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vanshika/iamgraph/internal/domain"
)

// TaskError accumulates multiple errors produced during bulk ingestion.
type TaskError struct {
	Errors []error
}

func (e *TaskError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d errors: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e *TaskError) Unwrap() []error {
	return e.Errors
}

// UserStore persists users. It is satisfied by *repository.Repository.
type UserStore interface {
	InsertUser(ctx context.Context, user domain.User) ([]domain.User, error)
}

// BulkIngestor inserts large user datasets with a bounded number of concurrent
// write transactions, one per user.
type BulkIngestor struct {
	store   UserStore
	workers int
	logger  *slog.Logger
}

// NewBulkIngestor creates a new BulkIngestor instance with the provided concurrency.
func NewBulkIngestor(store UserStore, workers int, logger *slog.Logger) *BulkIngestor {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BulkIngestor{
		store:   store,
		workers: workers,
		logger:  logger,
	}
}

// IngestUsers processes the provided user inputs concurrently. Every failure is
// collected into a *TaskError; cancellation stops scheduling and returns ctx.Err().
func (bi *BulkIngestor) IngestUsers(ctx context.Context, users []UserInput) (int, error) {
	if len(users) == 0 {
		return 0, nil
	}

	var (
		g        errgroup.Group
		mu       sync.Mutex
		taskErr  TaskError
		inserted int
	)
	g.SetLimit(bi.workers)

	for i, input := range users {
		if ctx.Err() != nil {
			break
		}
		i, input := i, input // per-iteration copies (go 1.21 loop semantics)
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			err := bi.ingestUser(ctx, input)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
					taskErr.Errors = append(taskErr.Errors, fmt.Errorf("user %d: %w", i+1, err))
				}
				return nil
			}
			inserted++
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return inserted, err
	}
	bi.logger.Debug("bulk ingest finished", "inserted", inserted, "failed", len(taskErr.Errors))
	if len(taskErr.Errors) > 0 {
		return inserted, &taskErr
	}
	return inserted, nil
}

func (bi *BulkIngestor) ingestUser(ctx context.Context, input UserInput) error {
	user, err := input.ToDomain()
	if err != nil {
		return err
	}
	_, err = bi.store.InsertUser(ctx, user)
	return err
}
