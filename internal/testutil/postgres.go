// Package testutil starts throwaway infrastructure for integration tests.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ovaphlow/pitchfork/service-tips-go/pkg/database"
)

// PostgresImage is the server the repositories are tested against.
const PostgresImage = "postgres:16-alpine"

// StartPostgres runs a Postgres container for the duration of the test and
// returns a connected handle. Requires a reachable Docker daemon.
func StartPostgres(t *testing.T) *sqlx.DB {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	req := testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "tips",
			"POSTGRES_PASSWORD": "tips",
			"POSTGRES_DB":       "tips",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithDeadline(90 * time.Second),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}

	cfg := database.Config{
		DSN:      fmt.Sprintf("postgres://tips:tips@%s:%s/tips?sslmode=disable", host, port.Port()),
		MaxConns: 10,
		Timeout:  10 * time.Second,
		TimeZone: "UTC",
	}
	db, err := database.ConnectX(cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
