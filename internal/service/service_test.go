package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanshika/iamgraph/internal/domain"
	"github.com/vanshika/iamgraph/internal/graph"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeRepository struct {
	users    []domain.User
	direct   []domain.FileMatch
	inferred []domain.FileMatch
	updated  int
	failOn   string

	inserted []domain.User
	deleted  []string
}

func (f *fakeRepository) FetchAllUsers(context.Context) ([]domain.User, error) {
	if f.failOn == "fetch" {
		return nil, domain.ErrNoUsers
	}
	return f.users, nil
}

func (f *fakeRepository) InsertUser(_ context.Context, user domain.User) ([]domain.User, error) {
	f.inserted = append(f.inserted, user)
	return []domain.User{user}, nil
}

func (f *fakeRepository) FilesViewableBy(_ context.Context, name string, infer bool) (domain.FileSearch, error) {
	res := domain.FileSearch{User: name, Inferred: infer, Files: f.direct}
	if infer {
		res.Files = f.inferred
	}
	return res, nil
}

func (f *fakeRepository) UpdateFilePath(_ context.Context, oldPath, newPath string) (domain.FileUpdate, error) {
	return domain.FileUpdate{OldPath: oldPath, NewPath: newPath, Updated: f.updated}, nil
}

func (f *fakeRepository) DeleteFile(_ context.Context, path string) error {
	if f.failOn == "delete" {
		return fmt.Errorf("%w: 0", domain.ErrFileCount)
	}
	f.deleted = append(f.deleted, path)
	return nil
}

func sampleRepository() *fakeRepository {
	files := make([]domain.FileMatch, 10)
	for i := range files {
		files[i] = domain.FileMatch{Index: i + 1, Path: fmt.Sprintf("file%02d.java", i)}
	}
	return &fakeRepository{
		users: []domain.User{
			{FullName: "Kevin Morrison", Email: "kevin.morrison@vaticle.com"},
			{FullName: "Pearle Goodman", Email: "pearle.goodman@vaticle.com"},
			{FullName: "Masako Holley", Email: "masako.holley@vaticle.com"},
		},
		inferred: files,
		updated:  1,
	}
}

func TestSampleRunnerRunsAllRequests(t *testing.T) {
	repo := sampleRepository()
	var out bytes.Buffer

	err := NewSampleRunner(repo, &out, DefaultExpectations(), discardLogger).Run(context.Background())
	require.NoError(t, err)

	text := out.String()
	for i := 1; i <= 6; i++ {
		assert.Contains(t, text, fmt.Sprintf("Request %d of 6:", i))
	}
	assert.Contains(t, text, `User #1: {"fullName":"Kevin Morrison","email":"kevin.morrison@vaticle.com"}`)
	assert.Contains(t, text, "Added new user. Name: Jack Keeper, E-mail: jk@vaticle.com")
	assert.Contains(t, text, "No files found. Try enabling inference.")
	assert.Contains(t, text, "Total number of paths updated: 1")
	assert.Contains(t, text, "File has been deleted.")

	require.Len(t, repo.inserted, 1)
	assert.Equal(t, "jk@vaticle.com", repo.inserted[0].Email)
	assert.Equal(t, []string{SampleNewPath}, repo.deleted)
}

func TestSampleRunnerExpectationMismatch(t *testing.T) {
	repo := sampleRepository()
	repo.inferred = repo.inferred[:4]
	var out bytes.Buffer

	err := NewSampleRunner(repo, &out, DefaultExpectations(), discardLogger).Run(context.Background())
	require.Error(t, err)

	var expErr *ExpectationError
	require.True(t, errors.As(err, &expErr))
	assert.Equal(t, "Request 4 of 6", expErr.Request)
	assert.Equal(t, 10, expErr.Expected)
	assert.Equal(t, 4, expErr.Observed)
	assert.ErrorIs(t, err, domain.ErrVerification)
	assert.NotContains(t, out.String(), "Request 5 of 6", "runner stops at the first failure")
}

func TestSampleRunnerPropagatesRepositoryErrors(t *testing.T) {
	repo := sampleRepository()
	repo.failOn = "delete"

	err := NewSampleRunner(repo, io.Discard, DefaultExpectations(), discardLogger).Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrFileCount)
}

type fakeStore struct {
	mu       sync.Mutex
	users    []domain.User
	fail     string
	inflight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeStore) InsertUser(_ context.Context, user domain.User) ([]domain.User, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if f.fail != "" && strings.Contains(user.Email, f.fail) {
		return nil, errors.New("constraint violation")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = append(f.users, user)
	return []domain.User{user}, nil
}

func ingestInputs(n int) []UserInput {
	inputs := make([]UserInput, n)
	for i := range inputs {
		inputs[i] = UserInput{FullName: fmt.Sprintf("  User   %d ", i), Email: fmt.Sprintf("User%d@Example.com", i)}
	}
	return inputs
}

func TestBulkIngestorInsertsAll(t *testing.T) {
	store := &fakeStore{}
	ingestor := NewBulkIngestor(store, 3, discardLogger)

	n, err := ingestor.IngestUsers(context.Background(), ingestInputs(20))
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	assert.Len(t, store.users, 20)
	assert.LessOrEqual(t, store.peak.Load(), int32(3))

	for _, u := range store.users {
		assert.Equal(t, strings.ToLower(u.Email), u.Email)
		assert.NotContains(t, u.FullName, "  ")
	}
}

func TestBulkIngestorAggregatesFailures(t *testing.T) {
	store := &fakeStore{fail: "user1"}
	inputs := append(ingestInputs(12), UserInput{FullName: "No Mail"})

	n, err := NewBulkIngestor(store, 4, discardLogger).IngestUsers(context.Background(), inputs)
	require.Error(t, err)

	var taskErr *TaskError
	require.True(t, errors.As(err, &taskErr))
	// user1, user10 and user11 hit the store failure; the last input fails validation.
	assert.Len(t, taskErr.Errors, 4)
	assert.Equal(t, 9, n)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestBulkIngestorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := &fakeStore{}
	n, err := NewBulkIngestor(store, 2, discardLogger).IngestUsers(ctx, ingestInputs(5))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
	assert.Empty(t, store.users)
}

func TestBulkIngestorEmpty(t *testing.T) {
	n, err := NewBulkIngestor(&fakeStore{}, 0, nil).IngestUsers(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUserInputToDomain(t *testing.T) {
	user, err := UserInput{FullName: " Jack\tKeeper ", Email: " JK@Vaticle.com "}.ToDomain()
	require.NoError(t, err)
	assert.Equal(t, domain.User{FullName: "Jack Keeper", Email: "jk@vaticle.com"}, user)

	_, err = UserInput{FullName: "Jack Keeper"}.ToDomain()
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestQuickstart(t *testing.T) {
	ctx := context.Background()
	drv := graph.NewMemoryDriver()
	drv.PushReadResult(graph.Row{"name": graph.String("Alice")}, graph.Row{"name": graph.String("Bob")})

	names, err := Quickstart(ctx, drv, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice", "Bob"}, names)

	db, ok := drv.Database(QuickstartDatabase)
	require.True(t, ok)
	assert.Len(t, db.Schema, 2)
	require.Len(t, db.Data, 2)
	assert.Equal(t, "Alice", db.Data[0].Params["name"])
	assert.Equal(t, "Bob", db.Data[1].Params["name"])
}

func TestQuickstartDefineFailure(t *testing.T) {
	drv := graph.NewMemoryDriver().FailOn(graph.OpDefine, "person_name", errors.New("unsupported constraint"))

	_, err := Quickstart(context.Background(), drv, "")
	require.Error(t, err)
	assert.Empty(t, drv.CallsFor(graph.OpInsert))
}
