package sink

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"switchyard/internal/node"
	"switchyard/internal/testinfra"
	"switchyard/pkg/migrations"
	"switchyard/pkg/models"
)

func TestPostgresSink_InsertsOncePerMessage(t *testing.T) {
	db := testinfra.Postgres(t)
	require.NoError(t, migrations.MigratePostgres(db))

	reg := node.NewRegistry()
	require.NoError(t, Register(reg, Deps{Postgres: db, Retry: fastRetry(1)}))
	b, err := reg.Create(params("store", TypePostgres, nil))
	require.NoError(t, err)
	require.NoError(t, b.Bind(node.References{}))

	msg := message("HI")
	msg.SetField("region", "eu")
	msg.AppendError("forwarding.noRule", "classify", "process", "no rule")

	ctx := context.Background()
	require.NoError(t, b.Process(ctx, msg))
	require.NoError(t, b.Process(ctx, msg))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM events WHERE id = $1`, msg.ID).Scan(&count))
	assert.Equal(t, 1, count)

	var content, pipelineID, nodeID string
	var fieldsRaw, stackRaw []byte
	err = db.QueryRow(`SELECT content, pipeline_id, node_id, fields, error_stack FROM events WHERE id = $1`, msg.ID).
		Scan(&content, &pipelineID, &nodeID, &fieldsRaw, &stackRaw)
	require.NoError(t, err)
	assert.Equal(t, "HI", content)
	assert.Equal(t, "p1", pipelineID)
	assert.Equal(t, "store", nodeID)

	var fields map[string]string
	require.NoError(t, json.Unmarshal(fieldsRaw, &fields))
	assert.Equal(t, "eu", fields["region"])

	var stack []models.Error
	require.NoError(t, json.Unmarshal(stackRaw, &stack))
	require.Len(t, stack, 1)
	assert.Equal(t, "forwarding.noRule", stack[0].Key)
}

func TestMongoSink_InsertsDocument(t *testing.T) {
	db := testinfra.Mongo(t)
	ctx := context.Background()
	require.NoError(t, migrations.EnsureMongoCollection(ctx, db, "processed"))

	reg := node.NewRegistry()
	require.NoError(t, Register(reg, Deps{Mongo: db, Retry: fastRetry(1)}))
	b, err := reg.Create(params("store", TypeMongoDB, map[string]string{"collection": "processed"}))
	require.NoError(t, err)
	require.NoError(t, b.Bind(node.References{}))

	msg := message("HI")
	require.NoError(t, b.Process(ctx, msg))
	require.NoError(t, b.Process(ctx, msg), "duplicate insert is ignored")

	n, err := db.Collection("processed").CountDocuments(ctx, bson.M{"id": msg.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var doc bson.M
	require.NoError(t, db.Collection("processed").FindOne(ctx, bson.M{"id": msg.ID}).Decode(&doc))
	assert.Equal(t, "HI", doc["content"])
	assert.Equal(t, "store", doc["node_id"])
}
