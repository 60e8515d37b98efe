package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchyard/internal/config"
	"switchyard/internal/logger"
)

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresDSN(config.PostgresConfig{
		Host:     "db",
		Port:     5432,
		User:     "svc",
		Password: "p@ss word",
		DBName:   "events",
	})
	assert.Equal(t, "postgres://svc:p%40ss%20word@db:5432/events?sslmode=disable", dsn)
}

func TestDatabaseConnector_OptionalStores(t *testing.T) {
	dc := NewDatabaseConnector(&config.Config{}, logger.NewTest(t))
	ctx := context.Background()

	rdb, err := dc.InitRedis(ctx)
	require.NoError(t, err)
	assert.Nil(t, rdb)

	db, err := dc.InitPostgreSQL(ctx)
	require.NoError(t, err)
	assert.Nil(t, db)

	client, mdb, err := dc.InitMongoDB(ctx)
	require.NoError(t, err)
	assert.Nil(t, client)
	assert.Nil(t, mdb)

	assert.Empty(t, dc.ShutdownDatabases(ctx, nil, nil, nil))
}

func TestBase_WithoutBrokers(t *testing.T) {
	b := NewBase(&config.Config{}, logger.NewTest(t))

	require.NoError(t, b.InitProducer())
	assert.Nil(t, b.Producer)
	assert.False(t, b.BrokerConfigured())

	_, err := b.NewConsumer(config.SourceConfig{Topic: "raw"}, "switchyard")
	require.Error(t, err)

	ran := false
	require.NoError(t, b.Shutdown(context.Background(), func(context.Context) []error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
}
