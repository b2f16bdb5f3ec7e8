package console

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanshika/iamgraph/internal/domain"
)

func TestReporterPlainOutput(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, false)

	r.Info("Setting up the database: sample-app-db")
	r.Step("Creating new database...")
	r.OK()
	r.Step("Defining schema...")
	r.Fail(errors.New("[SCHEMA_ERROR] define schema: bad input"))

	assert.Equal(t, "Setting up the database: sample-app-db\n"+
		"Creating new database...OK\n"+
		"Defining schema...FAILED\n"+
		"  [SCHEMA_ERROR] define schema: bad input\n", buf.String())
}

func TestReporterClosesDanglingStep(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, false)

	r.Step("Loading data...")
	r.Success("Success: Program complete!")

	assert.Equal(t, "Loading data...\nSuccess: Program complete!\n", buf.String())
}

func TestRenderUsers(t *testing.T) {
	var buf bytes.Buffer
	err := RenderUsers(&buf, []domain.User{
		{FullName: "Kevin Morrison", Email: "kevin.morrison@vaticle.com"},
		{FullName: "Pearle Goodman", Email: "pearle.goodman@vaticle.com"},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "full name")
	assert.Contains(t, out, "Kevin Morrison")
	assert.Contains(t, out, "pearle.goodman@vaticle.com")
}

func TestRenderFiles(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderFiles(&buf, []domain.FileMatch{{Index: 1, Path: "lzfkn.java"}}))
	assert.Contains(t, buf.String(), "lzfkn.java")
}
