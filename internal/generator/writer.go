package generator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vanshika/iamgraph/internal/cypher"
	"github.com/vanshika/iamgraph/internal/service"
)

// Output file names written by WriteDataset.
const (
	SchemaFileName = "iam-schema.cypher"
	DataFileName   = "iam-data.cypher"
	UsersFileName  = "users.json"
)

// SchemaScript is the schema every generated dataset loads against. It matches
// data/iam-schema.cypher.
const SchemaScript = `// IAM sample schema: identities, groups, the file tree and the actions granted on it.

CREATE CONSTRAINT user_email IF NOT EXISTS
FOR (u:User) REQUIRE u.email IS UNIQUE;

CREATE CONSTRAINT user_group_name IF NOT EXISTS
FOR (g:UserGroup) REQUIRE g.name IS UNIQUE;

CREATE CONSTRAINT directory_path IF NOT EXISTS
FOR (d:Directory) REQUIRE d.path IS UNIQUE;

CREATE CONSTRAINT file_path IF NOT EXISTS
FOR (f:File) REQUIRE f.path IS UNIQUE;

CREATE CONSTRAINT action_name IF NOT EXISTS
FOR (a:Action) REQUIRE a.name IS UNIQUE;

CREATE INDEX user_full_name IF NOT EXISTS
FOR (u:User) ON (u.fullName);
`

// WriteDataset writes the schema script, the data script and a users.json roster usable
// by the ingest command into dir.
func WriteDataset(dataset Dataset, dir string, batchSize int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	if err := writeFile(filepath.Join(dir, SchemaFileName), SchemaScript); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dir, DataFileName), DataScript(dataset, batchSize)); err != nil {
		return err
	}

	roster := make([]service.UserInput, 0, len(dataset.Users))
	for _, u := range dataset.Users {
		roster = append(roster, service.UserInput{FullName: u.FullName, Email: u.Email})
	}
	return writeJSON(filepath.Join(dir, UsersFileName), roster)
}

// DataScript renders dataset as a Cypher script of UNWIND batches, each holding at most
// batchSize rows. Statements are separated by semicolons so the bootstrap loader can
// run them one by one inside a single transaction.
func DataScript(dataset Dataset, batchSize int) string {
	if batchSize <= 0 {
		batchSize = DefaultConfig().BatchSize
	}
	var b strings.Builder
	fmt.Fprintf(&b, "// Generated IAM dataset: %d users, %d groups, %d directories, %d files.\n\n",
		len(dataset.Users), len(dataset.Groups), len(dataset.Directories), len(dataset.Files))

	actions := make([]string, 0, len(Actions))
	for _, a := range Actions {
		actions = append(actions, cypher.QuoteString(a))
	}
	fmt.Fprintf(&b, "UNWIND [%s] AS name\nCREATE (:Action {name: name});\n\n", strings.Join(actions, ", "))

	rows := make([]string, 0, len(dataset.Groups))
	for _, g := range dataset.Groups {
		rows = append(rows, mapLiteral("id", g.ID, "name", g.Name))
	}
	writeBatches(&b, rows, batchSize, "CREATE (:UserGroup {id: row.id, name: row.name})")

	rows = rows[:0]
	for _, u := range dataset.Users {
		rows = append(rows, mapLiteral("id", u.ID, "fullName", u.FullName, "email", u.Email))
	}
	writeBatches(&b, rows, batchSize, "CREATE (:User {id: row.id, fullName: row.fullName, email: row.email})")

	rows = rows[:0]
	for _, m := range dataset.Memberships {
		rows = append(rows, mapLiteral("email", m.Email, "group", m.Group))
	}
	writeBatches(&b, rows, batchSize, "MATCH (u:User {email: row.email}), (g:UserGroup {name: row.group})\nCREATE (u)-[:MEMBER_OF]->(g)")

	rows = rows[:0]
	for _, d := range dataset.Directories {
		rows = append(rows, mapLiteral("id", d.ID, "path", d.Path))
	}
	writeBatches(&b, rows, batchSize, "CREATE (:Directory {id: row.id, path: row.path})")

	rows = rows[:0]
	for _, d := range dataset.Directories {
		if d.Parent == "" {
			continue
		}
		rows = append(rows, mapLiteral("path", d.Path, "parent", d.Parent))
	}
	writeBatches(&b, rows, batchSize, "MATCH (d:Directory {path: row.path}), (p:Directory {path: row.parent})\nCREATE (d)-[:IN_COLLECTION]->(p)")

	rows = rows[:0]
	for _, f := range dataset.Files {
		rows = append(rows, mapLiteral("id", f.ID, "path", f.Path, "directory", f.Directory))
	}
	writeBatches(&b, rows, batchSize, "MATCH (d:Directory {path: row.directory})\nCREATE (:File {id: row.id, path: row.path})-[:IN_COLLECTION]->(d)")

	rows = rows[:0]
	for _, g := range dataset.GroupGrants {
		rows = append(rows, mapLiteral("group", g.Group, "directory", g.Directory, "action", g.Action))
	}
	writeBatches(&b, rows, batchSize, "MATCH (g:UserGroup {name: row.group}), (d:Directory {path: row.directory})\nCREATE (g)-[:CAN {action: row.action}]->(d)")

	rows = rows[:0]
	for _, g := range dataset.UserGrants {
		rows = append(rows, mapLiteral("email", g.Email, "file", g.File, "action", g.Action))
	}
	writeBatches(&b, rows, batchSize, "MATCH (u:User {email: row.email}), (f:File {path: row.file})\nCREATE (u)-[:CAN {action: row.action}]->(f)")

	return b.String()
}

func writeBatches(b *strings.Builder, rows []string, size int, body string) {
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		b.WriteString("UNWIND [\n  ")
		b.WriteString(strings.Join(rows[start:end], ",\n  "))
		b.WriteString("\n] AS row\n")
		b.WriteString(body)
		b.WriteString(";\n\n")
	}
}

// mapLiteral renders alternating keys and values as a Cypher map of string literals.
func mapLiteral(kv ...string) string {
	parts := make([]string, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		parts = append(parts, kv[i]+": "+cypher.QuoteString(kv[i+1]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func writeFile(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func writeJSON(path string, data any) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encode json for %s: %w", path, err)
	}
	return nil
}
