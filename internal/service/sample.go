package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/vanshika/iamgraph/internal/console"
	"github.com/vanshika/iamgraph/internal/domain"
)

// Inputs of the sample requests.
const (
	SampleNewUserName  = "Jack Keeper"
	SampleNewUserEmail = "jk@vaticle.com"
	SampleUserName     = "Kevin Morrison"
	SampleOldPath      = "lzfkn.java"
	SampleNewPath      = "lzfkn2.java"
)

// SampleRepository is the storage contract required by the sample requests.
type SampleRepository interface {
	FetchAllUsers(ctx context.Context) ([]domain.User, error)
	InsertUser(ctx context.Context, user domain.User) ([]domain.User, error)
	FilesViewableBy(ctx context.Context, name string, infer bool) (domain.FileSearch, error)
	UpdateFilePath(ctx context.Context, oldPath, newPath string) (domain.FileUpdate, error)
	DeleteFile(ctx context.Context, path string) error
}

// Expectations are the result sizes the sample requests must produce against the
// shipped IAM dataset.
type Expectations struct {
	Users         int
	Inserted      int
	DirectFiles   int
	InferredFiles int
	Updated       int
}

// DefaultExpectations matches data/iam-data.cypher.
func DefaultExpectations() Expectations {
	return Expectations{
		Users:         3,
		Inserted:      1,
		DirectFiles:   0,
		InferredFiles: 10,
		Updated:       1,
	}
}

// ExpectationError reports a sample request whose result size was not the expected one.
type ExpectationError struct {
	Request  string
	Expected int
	Observed int
}

func (e *ExpectationError) Error() string {
	return fmt.Sprintf("%s: expected %d results, observed %d", e.Request, e.Expected, e.Observed)
}

// Is lets errors.Is(err, domain.ErrVerification) match.
func (e *ExpectationError) Is(target error) bool {
	return target == domain.ErrVerification
}

// SampleRunner runs the six sample requests in order and checks each result.
type SampleRunner struct {
	repo   SampleRepository
	out    io.Writer
	expect Expectations
	logger *slog.Logger
}

// NewSampleRunner returns a runner printing its results to out.
func NewSampleRunner(repo SampleRepository, out io.Writer, expect Expectations, logger *slog.Logger) *SampleRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &SampleRunner{repo: repo, out: out, expect: expect, logger: logger}
}

// Run executes the requests, stopping at the first failure.
func (s *SampleRunner) Run(ctx context.Context) error {
	steps := []struct {
		title string
		run   func(context.Context, string) error
	}{
		{"Fetch all users as JSON objects with full names and emails", s.fetchUsers},
		{fmt.Sprintf("Add a new user with the full-name %s and email %s", SampleNewUserName, SampleNewUserEmail), s.insertUser},
		{fmt.Sprintf("Find all files that the user %s has access to view (no inference)", SampleUserName), s.filesWithoutInference},
		{fmt.Sprintf("Find all files that the user %s has access to view (with inference)", SampleUserName), s.filesWithInference},
		{fmt.Sprintf("Update the path of a file from %s to %s", SampleOldPath, SampleNewPath), s.updatePath},
		{fmt.Sprintf("Delete the file with path %s", SampleNewPath), s.deleteFile},
	}

	for i, step := range steps {
		request := fmt.Sprintf("Request %d of %d", i+1, len(steps))
		fmt.Fprintf(s.out, "%s: %s\n", request, step.title)
		if err := step.run(ctx, request); err != nil {
			s.logger.Error("sample request failed", "request", i+1, "error", err)
			return err
		}
	}
	return nil
}

func (s *SampleRunner) check(request string, expected, observed int) error {
	if expected != observed {
		return &ExpectationError{Request: request, Expected: expected, Observed: observed}
	}
	return nil
}

func (s *SampleRunner) fetchUsers(ctx context.Context, request string) error {
	users, err := s.repo.FetchAllUsers(ctx)
	if err != nil {
		return err
	}
	for i, u := range users {
		payload, err := json.Marshal(u)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "User #%d: %s\n", i+1, payload)
	}
	return s.check(request, s.expect.Users, len(users))
}

func (s *SampleRunner) insertUser(ctx context.Context, request string) error {
	user, err := UserInput{FullName: SampleNewUserName, Email: SampleNewUserEmail}.ToDomain()
	if err != nil {
		return err
	}
	inserted, err := s.repo.InsertUser(ctx, user)
	if err != nil {
		return err
	}
	for _, u := range inserted {
		fmt.Fprintf(s.out, "Added new user. Name: %s, E-mail: %s\n", u.FullName, u.Email)
	}
	return s.check(request, s.expect.Inserted, len(inserted))
}

func (s *SampleRunner) filesWithoutInference(ctx context.Context, request string) error {
	return s.files(ctx, request, false, s.expect.DirectFiles)
}

func (s *SampleRunner) filesWithInference(ctx context.Context, request string) error {
	return s.files(ctx, request, true, s.expect.InferredFiles)
}

func (s *SampleRunner) files(ctx context.Context, request string, infer bool, expected int) error {
	res, err := s.repo.FilesViewableBy(ctx, SampleUserName, infer)
	if err != nil {
		return err
	}
	if res.Extended {
		fmt.Fprintln(s.out, "Warning: No users found with that name. Extending search for full-names containing the provided search string.")
	}
	if len(res.Files) == 0 {
		fmt.Fprintln(s.out, "No files found. Try enabling inference.")
	} else if err := console.RenderFiles(s.out, res.Files); err != nil {
		return err
	}
	return s.check(request, expected, len(res.Files))
}

func (s *SampleRunner) updatePath(ctx context.Context, request string) error {
	update, err := s.repo.UpdateFilePath(ctx, SampleOldPath, SampleNewPath)
	if err != nil {
		return err
	}
	if update.Updated > 0 {
		fmt.Fprintf(s.out, "Total number of paths updated: %d\n", update.Updated)
	} else {
		fmt.Fprintln(s.out, "No matched paths: nothing to update")
	}
	return s.check(request, s.expect.Updated, update.Updated)
}

func (s *SampleRunner) deleteFile(ctx context.Context, _ string) error {
	if err := s.repo.DeleteFile(ctx, SampleNewPath); err != nil {
		return err
	}
	fmt.Fprintln(s.out, "File has been deleted.")
	return nil
}
