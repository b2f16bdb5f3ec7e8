package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanshika/iamgraph/internal/domain"
	"github.com/vanshika/iamgraph/internal/graph"
)

const testDatabase = "iam-test"

func newTestRepository(t *testing.T) (*Repository, *graph.MemoryDriver) {
	t.Helper()
	mem := graph.NewMemoryDriver()
	require.NoError(t, mem.CreateDatabase(context.Background(), testDatabase))
	return New(mem, testDatabase, slog.New(slog.NewTextHandler(io.Discard, nil))), mem
}

func userRow(name, email string) graph.Row {
	return graph.Row{"fullName": graph.String(name), "email": graph.String(email)}
}

func pathRows(paths ...string) []graph.Row {
	rows := make([]graph.Row, 0, len(paths))
	for _, p := range paths {
		rows = append(rows, graph.Row{"path": graph.String(p)})
	}
	return rows
}

func TestRepository_FetchAllUsers(t *testing.T) {
	repo, mem := newTestRepository(t)
	mem.PushReadResult(
		userRow("Kevin Morrison", "kevin.morrison@vaticle.com"),
		userRow("Masako Holley", "masako.holley@vaticle.com"),
		userRow("Pearle Goodman", "pearle.goodman@vaticle.com"),
	)

	users, err := repo.FetchAllUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, domain.User{FullName: "Kevin Morrison", Email: "kevin.morrison@vaticle.com"}, users[0])

	queries := mem.CallsFor(graph.OpQuery)
	require.Len(t, queries, 1)
	assert.Equal(t, graph.TxRead, queries[0].Transaction)
	assert.Equal(t, graph.SessionData, queries[0].Session)
}

func TestRepository_FetchAllUsersEmpty(t *testing.T) {
	repo, _ := newTestRepository(t)
	_, err := repo.FetchAllUsers(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoUsers)
}

func TestRepository_FetchAllUsersWrongKind(t *testing.T) {
	repo, mem := newTestRepository(t)
	mem.PushReadResult(graph.Row{"fullName": graph.Long(1), "email": graph.String("x@y.z")})

	_, err := repo.FetchAllUsers(context.Background())
	var kindErr *graph.KindError
	assert.True(t, errors.As(err, &kindErr))
}

func TestRepository_InsertUser(t *testing.T) {
	repo, mem := newTestRepository(t)
	mem.PushWriteResult(userRow("Jack Keeper", "jk@vaticle.com"))

	inserted, err := repo.InsertUser(context.Background(), domain.User{FullName: "Jack Keeper", Email: "jk@vaticle.com"})
	require.NoError(t, err)
	require.Len(t, inserted, 1)
	assert.Equal(t, "Jack Keeper", inserted[0].FullName)

	db, _ := mem.Database(testDatabase)
	require.Len(t, db.Data, 1, "insert must be committed")
	assert.Equal(t, "jk@vaticle.com", db.Data[0].Params["email"])
	assert.NotContains(t, db.Data[0].Query, "jk@vaticle.com", "values travel as parameters")
}

func TestRepository_InsertUserInvalid(t *testing.T) {
	repo, mem := newTestRepository(t)

	_, err := repo.InsertUser(context.Background(), domain.User{FullName: "Jack Keeper", Email: "not-an-email"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, mem.CallsFor(graph.OpInsert))
}

func TestRepository_InsertUserNoRowsDiscards(t *testing.T) {
	repo, mem := newTestRepository(t)

	_, err := repo.InsertUser(context.Background(), domain.User{FullName: "Jack Keeper", Email: "jk@vaticle.com"})
	assert.ErrorIs(t, err, domain.ErrInsert)

	db, _ := mem.Database(testDatabase)
	assert.Empty(t, db.Data)
}

func TestRepository_FilesViewableBy(t *testing.T) {
	tests := []struct {
		name      string
		infer     bool
		wantQuery string
	}{
		{"direct grants", false, "-[:CAN {action: $action}]->(f:File)"},
		{"with inference", true, "MEMBER_OF*0..5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mem := newTestRepository(t)
			mem.PushReadResult(graph.Row{"email": graph.String("kevin.morrison@vaticle.com")})
			mem.PushReadResult(pathRows("iopvu.java", "lzfkn.java")...)

			res, err := repo.FilesViewableBy(context.Background(), "Kevin Morrison", tt.infer)
			require.NoError(t, err)
			assert.False(t, res.Extended)
			assert.Equal(t, tt.infer, res.Inferred)
			assert.Equal(t, []domain.FileMatch{{Index: 1, Path: "iopvu.java"}, {Index: 2, Path: "lzfkn.java"}}, res.Files)

			queries := mem.CallsFor(graph.OpQuery)
			require.Len(t, queries, 2)
			assert.Contains(t, queries[1].Query, tt.wantQuery)
			assert.Contains(t, queries[1].Query, "u.fullName = $name")
			assert.Equal(t, domain.ActionViewFile, queries[1].Params["action"])
		})
	}
}

func TestRepository_FilesViewableByAmbiguous(t *testing.T) {
	repo, mem := newTestRepository(t)
	mem.PushReadResult(
		graph.Row{"email": graph.String("a@vaticle.com")},
		graph.Row{"email": graph.String("b@vaticle.com")},
	)

	_, err := repo.FilesViewableBy(context.Background(), "Kevin Morrison", false)
	assert.ErrorIs(t, err, domain.ErrAmbiguousUser)
	assert.Len(t, mem.CallsFor(graph.OpQuery), 1)
}

func TestRepository_FilesViewableByExtendsSearch(t *testing.T) {
	repo, mem := newTestRepository(t)
	mem.PushReadResult()
	mem.PushReadResult(pathRows("payroll.csv")...)

	res, err := repo.FilesViewableBy(context.Background(), "Masako", false)
	require.NoError(t, err)
	assert.True(t, res.Extended)
	assert.Len(t, res.Files, 1)

	queries := mem.CallsFor(graph.OpQuery)
	require.Len(t, queries, 2)
	assert.Contains(t, queries[1].Query, "CONTAINS $name")
}

func TestRepository_FilesViewableByRejectsBlankName(t *testing.T) {
	repo, _ := newTestRepository(t)
	_, err := repo.FilesViewableBy(context.Background(), "  ", true)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRepository_UpdateFilePath(t *testing.T) {
	repo, mem := newTestRepository(t)
	mem.PushWriteResult(pathRows("lzfkn2.java")...)

	update, err := repo.UpdateFilePath(context.Background(), "lzfkn.java", "lzfkn2.java")
	require.NoError(t, err)
	assert.Equal(t, 1, update.Updated)

	db, _ := mem.Database(testDatabase)
	require.Len(t, db.Data, 1)
	assert.Equal(t, graph.OpUpdate, db.Data[0].Op)
}

func TestRepository_UpdateFilePathNoMatchDoesNotCommit(t *testing.T) {
	repo, mem := newTestRepository(t)

	update, err := repo.UpdateFilePath(context.Background(), "missing.java", "other.java")
	require.NoError(t, err)
	assert.Zero(t, update.Updated)
	assert.Empty(t, mem.CallsFor(graph.OpCommit))
	assert.Len(t, mem.CallsFor(graph.OpDiscard), 1)
}

func fileCount(n int64) graph.AggregateFunc {
	return func(_ graph.MemoryDatabase, stmt string, _ map[string]any) (graph.Value, error) {
		if strings.Contains(stmt, "(f:File") {
			return graph.Long(n), nil
		}
		return graph.Null(), nil
	}
}

func TestRepository_DeleteFile(t *testing.T) {
	repo, mem := newTestRepository(t)
	mem.WithAggregate(fileCount(1))

	require.NoError(t, repo.DeleteFile(context.Background(), "lzfkn2.java"))

	db, _ := mem.Database(testDatabase)
	require.Len(t, db.Data, 1)
	assert.Equal(t, graph.OpDelete, db.Data[0].Op)
	assert.Equal(t, "lzfkn2.java", db.Data[0].Params["path"])
}

func TestRepository_DeleteFileWrongCount(t *testing.T) {
	for _, n := range []int64{0, 2} {
		repo, mem := newTestRepository(t)
		mem.WithAggregate(fileCount(n))

		err := repo.DeleteFile(context.Background(), "lzfkn2.java")
		assert.ErrorIs(t, err, domain.ErrFileCount)
		assert.Empty(t, mem.CallsFor(graph.OpDelete))
	}
}

func TestRepository_CountUsers(t *testing.T) {
	repo, mem := newTestRepository(t)
	mem.WithAggregate(func(graph.MemoryDatabase, string, map[string]any) (graph.Value, error) {
		return graph.Long(3), nil
	})

	n, err := repo.CountUsers(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestFilesQueryValidatesParams(t *testing.T) {
	q, err := filesQuery(matchContains, true, "Kev")
	require.NoError(t, err)
	assert.Equal(t, "Kev", q.Params["name"])
	assert.Contains(t, q.Text, "IN_COLLECTION*0..5")
}
