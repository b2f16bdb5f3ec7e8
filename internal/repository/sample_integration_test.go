//go:build integration

package repository_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tsuite "github.com/stretchr/testify/suite"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/vanshika/iamgraph/internal/bootstrap"
	"github.com/vanshika/iamgraph/internal/domain"
	"github.com/vanshika/iamgraph/internal/graph"
	"github.com/vanshika/iamgraph/internal/repository"
	"github.com/vanshika/iamgraph/internal/service"
)

const sampleDatabase = "iam-sample"

// SampleDatasetSuite loads data/iam-schema.cypher and data/iam-data.cypher into a real
// Neo4j Enterprise server and runs the repository queries against them.
type SampleDatasetSuite struct {
	tsuite.Suite
	ctx    context.Context
	ctr    tc.Container
	drv    graph.Driver
	logger *slog.Logger
}

func TestSampleDatasetSuite(t *testing.T) {
	tsuite.Run(t, new(SampleDatasetSuite))
}

func (suite *SampleDatasetSuite) SetupSuite() {
	suite.ctx = context.Background()
	suite.logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	ctr, err := tc.GenericContainer(suite.ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "neo4j:5-enterprise",
			ExposedPorts: []string{"7687/tcp"},
			Env: map[string]string{
				"NEO4J_ACCEPT_LICENSE_AGREEMENT": "yes",
				"NEO4J_AUTH":                     "none",
			},
			WaitingFor: wait.ForLog("Started.").WithStartupTimeout(3 * time.Minute),
		},
		Started: true,
	})
	suite.Require().NoError(err)
	suite.ctr = ctr

	host, err := ctr.Host(suite.ctx)
	suite.Require().NoError(err)
	port, err := ctr.MappedPort(suite.ctx, "7687/tcp")
	suite.Require().NoError(err)

	drv, err := graph.NewNeo4jDriver(suite.ctx, suite.logger, graph.Options{
		URI:              fmt.Sprintf("bolt://%s:%s", host, port.Port()),
		MaxConnections:   10,
		ConnectTimeout:   10 * time.Second,
		RetryMaxAttempts: 5,
		RetryInitial:     500 * time.Millisecond,
		RetryMaxElapsed:  30 * time.Second,
	})
	suite.Require().NoError(err)
	suite.drv = drv
}

func (suite *SampleDatasetSuite) TearDownSuite() {
	if suite.drv != nil {
		_ = suite.drv.Close(suite.ctx)
	}
	if suite.ctr != nil {
		_ = suite.ctr.Terminate(suite.ctx)
	}
}

func samplePlan() bootstrap.Plan {
	return bootstrap.Plan{
		Database:      sampleDatabase,
		SchemaFile:    filepath.Join("..", "..", "data", "iam-schema.cypher"),
		DataFile:      filepath.Join("..", "..", "data", "iam-data.cypher"),
		ExpectedCount: 3,
	}
}

func (suite *SampleDatasetSuite) TestSampleRequestsAgainstShippedDataset() {
	t := suite.T()
	ctx := suite.ctx

	require.NoError(t, bootstrap.Run(ctx, suite.drv, samplePlan(), nil))
	exists, err := suite.drv.DatabaseExists(ctx, sampleDatabase)
	require.NoError(t, err)
	assert.True(t, exists)

	repo := repository.New(suite.drv, sampleDatabase, suite.logger)
	var out bytes.Buffer
	runner := service.NewSampleRunner(repo, &out, service.DefaultExpectations(), suite.logger)
	require.NoError(t, runner.Run(ctx), out.String())
	assert.Contains(t, out.String(), "Request 6 of 6")

	count, err := repo.CountUsers(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 4, count, "the sample requests add one user")

	// A second run replaces the mutated database: Jack Keeper is gone and lzfkn.java is back.
	require.NoError(t, bootstrap.Run(ctx, suite.drv, samplePlan(), nil))

	users, err := repo.FetchAllUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 3)

	direct, err := repo.FilesViewableBy(ctx, service.SampleUserName, false)
	require.NoError(t, err)
	assert.Empty(t, direct.Files)

	inferred, err := repo.FilesViewableBy(ctx, service.SampleUserName, true)
	require.NoError(t, err)
	require.Len(t, inferred.Files, 10)
	paths := make([]string, 0, len(inferred.Files))
	for _, f := range inferred.Files {
		paths = append(paths, f.Path)
	}
	assert.Contains(t, paths, service.SampleOldPath)
	assert.NotContains(t, paths, "payroll.csv")

	update, err := repo.UpdateFilePath(ctx, service.SampleOldPath, service.SampleNewPath)
	require.NoError(t, err)
	assert.Equal(t, 1, update.Updated)
	require.NoError(t, repo.DeleteFile(ctx, service.SampleNewPath))
	assert.ErrorIs(t, repo.DeleteFile(ctx, service.SampleNewPath), domain.ErrFileCount)
}

func (suite *SampleDatasetSuite) TestDatasetWithoutUsersVerifiesAgainstZero() {
	t := suite.T()
	plan := samplePlan()
	plan.Database = "iam-empty"
	plan.DataFile = filepath.Join(t.TempDir(), "groups.cypher")
	require.NoError(t, os.WriteFile(plan.DataFile, []byte("CREATE (:UserGroup {name: 'engineers'});\n"), 0o600))
	plan.ExpectedCount = 0
	defer suite.drv.DeleteDatabase(suite.ctx, plan.Database)

	require.NoError(t, bootstrap.Run(suite.ctx, suite.drv, plan, nil))
}
