package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

type PostgresSuite struct {
	suite.Suite
	container *postgres.PostgresContainer
	db        *Postgres
}

func (s *PostgresSuite) SetupSuite() {
	ctx := context.Background()
	pg, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("coop"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(2*time.Minute),
		),
	)
	if err != nil {
		s.T().Skipf("postgres container unavailable: %v", err)
	}
	s.container = pg
	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(s.T(), err)
	s.db, err = OpenPostgres(ctx, dsn)
	require.NoError(s.T(), err)
}

func (s *PostgresSuite) TearDownSuite() {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.container != nil {
		_ = testcontainers.TerminateContainer(s.container)
	}
}

func (s *PostgresSuite) TestContract() {
	runStoreSuite(s.T(), s.db)
}

func (s *PostgresSuite) TestMigrateIdempotent() {
	ctx := context.Background()
	require.NoError(s.T(), s.db.Migrate(ctx))
	require.NoError(s.T(), s.db.Migrate(ctx))
}

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test; skipped with -short")
	}
	suite.Run(t, new(PostgresSuite))
}
