package docstore

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ARENA_TEST_MONGO_URI points at a replica set; change streams need one.
const mongoURIEnv = "ARENA_TEST_MONGO_URI"

func mongoClient(t *testing.T) *mongo.Client {
	t.Helper()
	uri := strings.TrimSpace(os.Getenv(mongoURIEnv))
	if uri == "" {
		t.Skipf("%s not set", mongoURIEnv)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	require.NoError(t, client.Ping(ctx, nil))
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	return client
}

// newMongoStore opens a throwaway database per test.
func newMongoStore(t *testing.T, client *mongo.Client) *Mongo {
	t.Helper()
	name := "arena_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	t.Cleanup(func() { _ = client.Database(name).Drop(context.Background()) })
	return NewMongo(client, name)
}

func TestStore_Mongo(t *testing.T) {
	client := mongoClient(t)
	runStoreCases(t, func(t *testing.T) Store { return newMongoStore(t, client) })
}

func TestMongo_WaitingCountFollowsJoins(t *testing.T) {
	client := mongoClient(t)
	st := newMongoStore(t, client)
	ctx := context.Background()

	count := func() int {
		var doc struct {
			Waiting int `bson:"waiting"`
		}
		err := st.buckets.FindOne(ctx, bson.M{"_id": query().BucketKey()}).Decode(&doc)
		require.NoError(t, err)
		return doc.Waiting
	}

	created, err := st.CreateWaiting(ctx, waitingSession("g1", "alice"), true)
	require.NoError(t, err)
	assert.Equal(t, 1, count())

	_, err = st.CreateWaiting(ctx, waitingSession("g2", "bob"), false)
	require.NoError(t, err)
	assert.Equal(t, 2, count())

	_, err = st.Update(ctx, joinAs(created, "carol"), created.Revision)
	require.NoError(t, err)
	assert.Equal(t, 1, count())
}
