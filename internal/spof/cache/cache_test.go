package cache

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
	clocktesting "k8s.io/utils/clock/testing"
)

type payload struct {
	Stars int    `json:"stars"`
	Name  string `json:"name"`
}

func newTestCache(t *testing.T, clk *clocktesting.FakeClock) *Cache {
	t.Helper()
	c, err := Open(t.TempDir(), time.Hour,
		WithClock(clk),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSetGet(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	c := newTestCache(t, clk)

	require.NoError(t, c.Set("github_repo_metrics:psf/requests", payload{Stars: 50000, Name: "requests"}))

	var got payload
	ok, err := c.Get("github_repo_metrics:psf/requests", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, payload{Stars: 50000, Name: "requests"}, got)

	ok, err = c.Get("missing", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExpiry(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	c := newTestCache(t, clk)

	require.NoError(t, c.Set("depsdev:npm:express", payload{Stars: 1}))

	clk.Step(59 * time.Minute)
	var got payload
	ok, err := c.Get("depsdev:npm:express", &got)
	require.NoError(t, err)
	assert.True(t, ok)

	clk.Step(2 * time.Minute)
	ok, err = c.Get("depsdev:npm:express", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	stats, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Entries, "expired entry must be removed")
}

func TestCorruptEntryRemoved(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Now())
	c := newTestCache(t, clk)

	err := c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte("bad"), []byte("{not json"))
	})
	require.NoError(t, err)

	var got payload
	ok, err := c.Get("bad", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	stats, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Entries)
}

func TestClearAndStats(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Now())
	c := newTestCache(t, clk)

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, c.Set(k, payload{Name: k}))
	}

	stats, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Entries)
	assert.True(t, stats.Enabled)
	assert.Positive(t, stats.SizeBytes)

	n, err := c.Clear()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	stats, err = c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Entries)
}

func TestDisable(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Now())
	c := newTestCache(t, clk)

	require.NoError(t, c.Set("k", payload{Name: "before"}))
	c.Disable()

	var got payload
	ok, err := c.Get("k", &got)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, c.Set("k2", payload{Name: "ignored"}))

	c.Enable()
	ok, err = c.Get("k2", &got)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = c.Get("k", &got)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReopenKeepsEntries(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir, time.Hour)
	require.NoError(t, err)
	require.NoError(t, c.Set("sbom:acme/api", []string{"x"}))
	require.NoError(t, c.Close())

	c, err = Open(dir, time.Hour)
	require.NoError(t, err)
	defer c.Close()

	var got []string
	ok, err := c.Get("sbom:acme/api", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"x"}, got)
}

func TestOpenLocked(t *testing.T) {
	dir := t.TempDir()
	first, err := Open(dir, time.Hour)
	require.NoError(t, err)
	defer first.Close()

	_, err = Open(dir, time.Hour)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLocked)
}
