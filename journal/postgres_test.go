package journal

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/arena/order"
)

func TestPostgresDSN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opt  PostgresOption
		want string
	}{
		{"defaults", PostgresOption{}, "postgres://localhost:5432?sslmode=disable"},
		{
			"full",
			PostgresOption{Host: "db", Port: 6543, User: "arena", Password: "pw", Database: "ledger", SSLMode: "require"},
			"postgres://arena:pw@db:6543/ledger?sslmode=require",
		},
		{"conn string wins", PostgresOption{ConnString: "postgres://x/y", Host: "db"}, "postgres://x/y"},
		{
			"params",
			PostgresOption{User: "arena", Params: map[string]string{"application_name": "arena", "": "skip"}},
			"postgres://arena@localhost:5432?application_name=arena&sslmode=disable",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.opt.dsn())
		})
	}
}

// Runs against a real database when ARENA_TEST_POSTGRES_DSN is set.
func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("ARENA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ARENA_TEST_POSTGRES_DSN not set")
	}

	j, err := NewPostgres(PostgresOption{ConnString: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	ctx := context.Background()
	require.NoError(t, j.SaveAgent(ctx, AgentRecord{ID: "pg-A1", OwnerID: "u", Profile: "moderate", Symbols: []string{"X"}, Status: "active", CreatedAt: ts}))
	require.NoError(t, j.RecordTrade(TradeRecord{ID: "pg-" + ts.String(), AgentID: "pg-A1", Side: order.Buy, Quantity: 1, Price: 1, Time: ts}))

	agents, err := j.LoadAgents(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, agents)
}
