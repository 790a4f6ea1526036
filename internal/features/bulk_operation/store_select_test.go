package bulk_operation

import (
	"context"
	"testing"

	"go-bulkops/internal/config"
	"go-bulkops/internal/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectStore(t *testing.T) {
	noMongo, noPG := &database.MongodbDB{}, &database.PostgresDB{}

	store, err := SelectStore(&config.Config{StoreDriver: config.StoreDriverMemory}, noMongo, noPG)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)
	assert.NoError(t, PrepareStore(context.Background(), store))

	_, err = SelectStore(&config.Config{StoreDriver: config.StoreDriverMongo}, noMongo, noPG)
	assert.Error(t, err)
	_, err = SelectStore(&config.Config{StoreDriver: config.StoreDriverPostgres}, noMongo, noPG)
	assert.Error(t, err)
	_, err = SelectStore(&config.Config{StoreDriver: "cassandra"}, noMongo, noPG)
	assert.Error(t, err)
}
