package generator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanshika/iamgraph/internal/cypher"
	"github.com/vanshika/iamgraph/internal/service"
)

func smallConfig() Config {
	return Config{
		NumUsers:          40,
		NumGroups:         3,
		NumDirectories:    5,
		FilesPerDirectory: 4,
		MembershipChance:  0.5,
		GrantChance:       0.5,
		DirectGrantChance: 0.5,
		BatchSize:         16,
		Seed:              7,
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	ctx := context.Background()
	first, err := New(smallConfig()).Generate(ctx)
	require.NoError(t, err)
	second, err := New(smallConfig()).Generate(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, DataScript(first, 16), DataScript(second, 16))
}

func TestGenerateShape(t *testing.T) {
	cfg := smallConfig()
	ds, err := New(cfg).Generate(context.Background())
	require.NoError(t, err)

	assert.Len(t, ds.Users, cfg.NumUsers)
	assert.Len(t, ds.Groups, cfg.NumGroups)
	assert.Len(t, ds.Directories, 1+cfg.NumGroups+cfg.NumDirectories)
	assert.Len(t, ds.Files, (cfg.NumGroups+cfg.NumDirectories)*cfg.FilesPerDirectory)
	assert.Equal(t, RootDirectory, ds.Directories[0].Path)
	assert.Empty(t, ds.Directories[0].Parent)

	dirs := make(map[string]bool)
	for _, d := range ds.Directories {
		dirs[d.Path] = true
	}
	for _, d := range ds.Directories[1:] {
		assert.True(t, dirs[d.Parent], "parent of %s must exist", d.Path)
		assert.True(t, strings.HasPrefix(d.Path, d.Parent+"/"))
	}

	paths := make(map[string]bool)
	for _, f := range ds.Files {
		assert.False(t, paths[f.Path], "duplicate file path %s", f.Path)
		paths[f.Path] = true
		assert.True(t, dirs[f.Directory])
	}

	emails := make(map[string]bool)
	for _, u := range ds.Users {
		assert.False(t, emails[u.Email], "duplicate email %s", u.Email)
		emails[u.Email] = true
	}

	member := make(map[string]bool)
	for _, m := range ds.Memberships {
		member[m.Email] = true
	}
	assert.Len(t, member, cfg.NumUsers, "every user belongs to a group")

	for _, g := range ds.GroupGrants {
		assert.True(t, dirs[g.Directory])
		assert.Contains(t, Actions, g.Action)
	}
	for _, g := range ds.UserGrants {
		assert.True(t, paths[g.File])
		assert.True(t, emails[g.Email])
	}
}

func TestGenerateGroupNamesStayUnique(t *testing.T) {
	cfg := smallConfig()
	cfg.NumGroups = 20
	ds, err := New(cfg).Generate(context.Background())
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, g := range ds.Groups {
		assert.False(t, names[g.Name], "duplicate group %s", g.Name)
		names[g.Name] = true
	}
}

func TestGenerateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(smallConfig()).Generate(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStableID(t *testing.T) {
	assert.Equal(t, StableID("user", "a@example.com"), StableID("user", "a@example.com"))
	assert.NotEqual(t, StableID("user", "a@example.com"), StableID("file", "a@example.com"))
	assert.Len(t, StableID("file", "x.java"), 36)
}

func TestDataScript(t *testing.T) {
	ds := Dataset{
		Users: []User{
			{ID: "u1", FullName: "Siobhan O'Brien", Email: "siobhan@example.com"},
			{ID: "u2", FullName: "Jane Doe", Email: "jane@example.com"},
			{ID: "u3", FullName: "John Doe", Email: "john@example.com"},
		},
		Groups:      []Group{{ID: "g1", Name: "engineering"}},
		Directories: []Directory{{ID: "d1", Path: "root"}, {ID: "d2", Path: "root/engineering", Parent: "root"}},
		Files:       []File{{ID: "f1", Path: "main.go", Directory: "root/engineering"}},
		Memberships: []Membership{{Email: "jane@example.com", Group: "engineering"}},
		GroupGrants: []GroupGrant{{Group: "engineering", Directory: "root/engineering", Action: "view_file"}},
	}

	script := DataScript(ds, 2)
	assert.Contains(t, script, `fullName: 'Siobhan O\'Brien'`)

	statements := cypher.SplitStatements(script)
	// actions, groups, users (2 batches), memberships, directories, parents, files, group grants
	require.Len(t, statements, 9)
	for _, stmt := range statements {
		assert.True(t, strings.HasPrefix(stmt, "UNWIND ["), stmt)
	}
	assert.NotContains(t, script, "(u)-[:CAN", "no user grants in dataset")
}

func TestSchemaScriptMatchesShippedSchema(t *testing.T) {
	shipped, err := os.ReadFile(filepath.Join("..", "..", "data", "iam-schema.cypher"))
	require.NoError(t, err)
	assert.Equal(t, string(shipped), SchemaScript)
	assert.Len(t, cypher.SplitStatements(SchemaScript), 6)
}

func TestWriteDataset(t *testing.T) {
	ds, err := New(smallConfig()).Generate(context.Background())
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "out")
	require.NoError(t, WriteDataset(ds, dir, 10))

	for _, name := range []string{SchemaFileName, DataFileName, UsersFileName} {
		_, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
	}

	raw, err := os.ReadFile(filepath.Join(dir, UsersFileName))
	require.NoError(t, err)
	var roster []service.UserInput
	require.NoError(t, json.Unmarshal(raw, &roster))
	require.Len(t, roster, len(ds.Users))
	assert.Equal(t, ds.Users[0].Email, roster[0].Email)
}
