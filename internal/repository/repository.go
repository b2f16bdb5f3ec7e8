package repository

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vanshika/iamgraph/internal/cypher"
	"github.com/vanshika/iamgraph/internal/domain"
	"github.com/vanshika/iamgraph/internal/graph"
)

// Repository runs the IAM sample requests. Every call opens its own data session and
// transaction on the database it was constructed for.
type Repository struct {
	driver   graph.Driver
	database string
	logger   *slog.Logger
}

// New instantiates a Repository backed by driver and bound to database.
func New(driver graph.Driver, database string, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{driver: driver, database: database, logger: logger}
}

// Database returns the name of the database the repository reads and writes.
func (r *Repository) Database() string {
	return r.database
}

// FetchAllUsers returns every user ordered by full name. An empty database yields
// domain.ErrNoUsers.
func (r *Repository) FetchAllUsers(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	err := r.read(ctx, graph.TxOptions{}, func(tx graph.Transaction) error {
		rows, err := tx.Query(ctx, fetchUsersCypher, nil)
		if err != nil {
			return err
		}
		users, err = usersFromRows(rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch users: %w", err)
	}
	if len(users) == 0 {
		return nil, domain.ErrNoUsers
	}
	return users, nil
}

// InsertUser creates a user and returns the inserted rows.
func (r *Repository) InsertUser(ctx context.Context, user domain.User) ([]domain.User, error) {
	if err := user.Validate(); err != nil {
		return nil, err
	}
	q, err := cypher.New(insertUserCypher, cypher.Params{"fullName": user.FullName, "email": user.Email})
	if err != nil {
		return nil, err
	}

	var inserted []domain.User
	err = r.write(ctx, func(tx graph.Transaction) (bool, error) {
		rows, err := tx.Insert(ctx, q.Text, q.Params)
		if err != nil {
			return false, err
		}
		if inserted, err = usersFromRows(rows); err != nil {
			return false, err
		}
		if len(inserted) == 0 {
			return false, domain.NewError(domain.CodeInsert, "insert returned no users")
		}
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("insert user %s: %w", user.Email, err)
	}
	r.logger.Debug("user inserted", "fullName", user.FullName, "email", user.Email)
	return inserted, nil
}

// CountUsers returns the number of users in the database.
func (r *Repository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := r.read(ctx, graph.TxOptions{}, func(tx graph.Transaction) error {
		v, err := tx.Aggregate(ctx, countUsersCypher, nil)
		if err != nil {
			return err
		}
		count, err = v.AsLong()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

// FilesViewableBy lists the files the named user may view, sorted by path. The name
// must match exactly one user; when it matches none the search widens to names
// containing it. With infer, grants reach files through group membership and
// directory collections.
func (r *Repository) FilesViewableBy(ctx context.Context, name string, infer bool) (domain.FileSearch, error) {
	result := domain.FileSearch{User: name, Inferred: infer}
	if strings.TrimSpace(name) == "" {
		return result, fmt.Errorf("%w: user name is required", domain.ErrInvalidInput)
	}

	err := r.read(ctx, graph.TxOptions{Infer: infer}, func(tx graph.Transaction) error {
		matches, err := tx.Query(ctx, findUsersByNameCypher, map[string]any{"name": name})
		if err != nil {
			return err
		}

		mode := matchExact
		switch {
		case len(matches) > 1:
			return fmt.Errorf("%w: %q matched %d users", domain.ErrAmbiguousUser, name, len(matches))
		case len(matches) == 0:
			r.logger.Warn("no users found with that name, extending search to names containing it", "name", name)
			mode = matchContains
			result.Extended = true
		}

		q, err := filesQuery(mode, tx.Options().Infer, name)
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, q.Text, q.Params)
		if err != nil {
			return err
		}
		for i, row := range rows {
			path, err := row.GetString("path")
			if err != nil {
				return err
			}
			result.Files = append(result.Files, domain.FileMatch{Index: i + 1, Path: path})
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("files viewable by %s: %w", name, err)
	}
	return result, nil
}

// UpdateFilePath renames every file at oldPath. The transaction commits only when
// at least one file was updated.
func (r *Repository) UpdateFilePath(ctx context.Context, oldPath, newPath string) (domain.FileUpdate, error) {
	update := domain.FileUpdate{OldPath: oldPath, NewPath: newPath}
	if strings.TrimSpace(oldPath) == "" || strings.TrimSpace(newPath) == "" {
		return update, fmt.Errorf("%w: both paths are required", domain.ErrInvalidInput)
	}
	q, err := cypher.New(updateFilePathCypher, cypher.Params{"old": oldPath, "new": newPath})
	if err != nil {
		return update, err
	}

	err = r.write(ctx, func(tx graph.Transaction) (bool, error) {
		rows, err := tx.Update(ctx, q.Text, q.Params)
		if err != nil {
			return false, err
		}
		update.Updated = len(rows)
		return update.Updated > 0, nil
	})
	if err != nil {
		return update, fmt.Errorf("update file path %s: %w", oldPath, err)
	}
	return update, nil
}

// DeleteFile removes the file at path. Exactly one file must match, otherwise
// domain.ErrFileCount is returned and nothing is deleted.
func (r *Repository) DeleteFile(ctx context.Context, path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: path is required", domain.ErrInvalidInput)
	}
	params := map[string]any{"path": path}

	err := r.write(ctx, func(tx graph.Transaction) (bool, error) {
		v, err := tx.Aggregate(ctx, countFilesCypher, params)
		if err != nil {
			return false, err
		}
		n, err := v.AsLong()
		if err != nil {
			return false, err
		}
		if n != 1 {
			return false, fmt.Errorf("%w: %d", domain.ErrFileCount, n)
		}
		if _, err := tx.Delete(ctx, deleteFileCypher, params); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("delete file %s: %w", path, err)
	}
	return nil
}

func (r *Repository) read(ctx context.Context, opts graph.TxOptions, fn func(graph.Transaction) error) error {
	sess, err := r.driver.OpenSession(ctx, r.database, graph.SessionData)
	if err != nil {
		return err
	}
	defer sess.Close(ctx)

	tx, err := sess.Transaction(ctx, graph.TxRead, opts)
	if err != nil {
		return err
	}
	defer tx.Close(ctx)
	return fn(tx)
}

// write runs fn in a write transaction and commits when fn reports true.
func (r *Repository) write(ctx context.Context, fn func(graph.Transaction) (bool, error)) error {
	sess, err := r.driver.OpenSession(ctx, r.database, graph.SessionData)
	if err != nil {
		return err
	}
	defer sess.Close(ctx)

	tx, err := sess.Transaction(ctx, graph.TxWrite, graph.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Close(ctx)

	commit, err := fn(tx)
	if err != nil {
		return err
	}
	if !commit {
		return nil
	}
	return tx.Commit(ctx)
}

func usersFromRows(rows []graph.Row) ([]domain.User, error) {
	users := make([]domain.User, 0, len(rows))
	for _, row := range rows {
		name, err := row.GetString("fullName")
		if err != nil {
			return nil, err
		}
		email, err := row.GetString("email")
		if err != nil {
			return nil, err
		}
		users = append(users, domain.User{FullName: name, Email: email})
	}
	return users, nil
}

type matchMode int

const (
	matchExact matchMode = iota
	matchContains
)

// filesQuery builds the access query. Without inference only direct user grants on
// files count; with it, grants held through groups on files or enclosing directories
// count as well.
func filesQuery(mode matchMode, infer bool, name string) (cypher.Query, error) {
	where := "u.fullName = $name"
	if mode == matchContains {
		where = "u.fullName CONTAINS $name"
	}

	var text string
	if infer {
		text = fmt.Sprintf(inferredFilesCypher, where)
	} else {
		text = fmt.Sprintf(directFilesCypher, where)
	}
	return cypher.New(text, cypher.Params{"name": name, "action": domain.ActionViewFile})
}

const fetchUsersCypher = `
MATCH (u:User)
RETURN u.fullName AS fullName, u.email AS email
ORDER BY fullName, email
`

const insertUserCypher = `
CREATE (u:User {fullName: $fullName, email: $email})
RETURN u.fullName AS fullName, u.email AS email
`

const countUsersCypher = `MATCH (u:User) RETURN count(u) AS count`

const findUsersByNameCypher = `
MATCH (u:User {fullName: $name})
RETURN u.email AS email
`

const directFilesCypher = `
MATCH (u:User)-[:CAN {action: $action}]->(f:File)
WHERE %s
RETURN DISTINCT f.path AS path
ORDER BY path
`

const inferredFilesCypher = `
MATCH (u:User)
WHERE %s
MATCH (u)-[:MEMBER_OF*0..5]->(subject)-[:CAN {action: $action}]->(object)
MATCH (f:File)-[:IN_COLLECTION*0..5]->(object)
RETURN DISTINCT f.path AS path
ORDER BY path
`

const updateFilePathCypher = `
MATCH (f:File {path: $old})
SET f.path = $new
RETURN f.path AS path
`

const countFilesCypher = `MATCH (f:File {path: $path}) RETURN count(f) AS count`

const deleteFileCypher = `
MATCH (f:File {path: $path})
DETACH DELETE f
`
