package pricecache

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwchen/keeper/internal/database"
	"github.com/jwchen/keeper/internal/domain"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := database.NewInMemory("pricecache_" + t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo, err := NewRepository(db.Conn(), zerolog.Nop())
	require.NoError(t, err)
	return repo
}

func TestUpsertAndGet(t *testing.T) {
	repo := newTestRepo(t)
	now := time.Now().UTC().Truncate(time.Second)

	err := repo.Upsert(domain.ConsensusPrice{
		Symbol:     "AAPL",
		Price:      187.42,
		Method:     domain.ConsensusAverage,
		Sources:    []string{"yahoo", "alphavantage"},
		ResolvedAt: now,
	})
	require.NoError(t, err)

	got, err := repo.Get("aapl")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 187.42, got.Price)
	assert.Equal(t, domain.ConsensusAverage, got.Method)
	assert.Equal(t, []string{"yahoo", "alphavantage"}, got.Sources)
	assert.False(t, got.LowConfidence)
	assert.Equal(t, now, got.UpdatedAt)
}

func TestUpsertReplacesExisting(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.Upsert(domain.ConsensusPrice{
		Symbol: "BTC", Price: 40000, Method: domain.ConsensusAverage,
	}))
	require.NoError(t, repo.Upsert(domain.ConsensusPrice{
		Symbol: "BTC", Price: 43000, Method: domain.ConsensusSingleSource,
		Sources: []string{"binance"}, LowConfidence: true,
	}))

	got, err := repo.Get("BTC")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 43000.0, got.Price)
	assert.True(t, got.LowConfidence)
}

func TestGetMissingReturnsNil(t *testing.T) {
	repo := newTestRepo(t)

	got, err := repo.Get("GHOST")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetAll(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.Upsert(domain.ConsensusPrice{Symbol: "AAPL", Price: 180, Method: domain.ConsensusAverage}))
	require.NoError(t, repo.Upsert(domain.ConsensusPrice{Symbol: "BTC", Price: 43000, Method: domain.ConsensusAverage}))

	all, err := repo.GetAll()
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, 180.0, all["AAPL"].Price)
}
