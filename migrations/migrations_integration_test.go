//go:build integration
// +build integration

package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestApply_ConcurrentCallers(t *testing.T) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:15-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "testdb",
			},
			WaitingFor: wait.ForAll(
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
				wait.ForListeningPort("5432/tcp"),
			).WithDeadline(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start PostgreSQL container")
	defer container.Terminate(ctx)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	connStr := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	// One pool per caller, like two binaries starting side by side.
	const callers = 4
	pools := make([]*sql.DB, callers)
	for i := range pools {
		db, err := sql.Open("postgres", connStr)
		require.NoError(t, err)
		defer db.Close()
		require.Eventually(t, func() bool { return db.PingContext(ctx) == nil }, 10*time.Second, 200*time.Millisecond)
		pools[i] = db
	}

	var wg sync.WaitGroup
	errs := make([]error, callers)
	start := make(chan struct{})
	for i, db := range pools {
		wg.Add(1)
		go func(i int, db *sql.DB) {
			defer wg.Done()
			<-start
			errs[i] = Apply(ctx, db)
		}(i, db)
	}
	close(start)
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "caller %d", i)
	}

	var tables int
	require.NoError(t, pools[0].QueryRowContext(ctx,
		`SELECT count(*) FROM information_schema.tables WHERE table_name IN ('users', 'products', 'messages')`).Scan(&tables))
	assert.Equal(t, 3, tables)

	require.NoError(t, Apply(ctx, pools[0]), "re-applying must be a no-op")
}
