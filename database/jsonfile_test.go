package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newTestFile(t *testing.T) *JSONFile[record] {
	t.Helper()
	return NewJSONFile[record](filepath.Join(t.TempDir(), "records.json"))
}

func TestJSONFile_MissingFileReadsEmpty(t *testing.T) {
	f := newTestFile(t)
	ctx := context.Background()

	_, ok, err := f.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	keys, err := f.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestJSONFile_MalformedFileReadsEmpty(t *testing.T) {
	f := newTestFile(t)
	require.NoError(t, os.WriteFile(f.Path(), []byte("{not json"), 0o644))

	_, ok, err := f.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJSONFile_PutGetRoundTrip(t *testing.T) {
	f := newTestFile(t)
	ctx := context.Background()

	require.NoError(t, f.Put(ctx, "b", record{Name: "bee", Count: 2}))
	require.NoError(t, f.Put(ctx, "a", record{Name: "ä", Count: 1}))

	got, ok, err := f.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, record{Name: "ä", Count: 1}, got)

	keys, err := f.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)

	raw, err := os.ReadFile(f.Path())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"ä"`)
	assert.Contains(t, string(raw), "\n  \"a\"")
}

func TestJSONFile_ReloadsExternalEdits(t *testing.T) {
	f := newTestFile(t)
	require.NoError(t, os.WriteFile(f.Path(), []byte(`{"x":{"name":"edited","count":9}}`), 0o644))

	got, ok, err := f.Get(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 9, got.Count)
}

func TestJSONFile_Update(t *testing.T) {
	f := newTestFile(t)
	ctx := context.Background()

	got, err := f.Update(ctx, "a", func(cur record, exists bool) (record, error) {
		assert.False(t, exists)
		cur.Count++
		return cur, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, got.Count)

	t.Run("skip write keeps record", func(t *testing.T) {
		got, err := f.Update(ctx, "a", func(cur record, exists bool) (record, error) {
			assert.True(t, exists)
			cur.Count = 100
			return cur, ErrSkipWrite
		})
		require.NoError(t, err)
		assert.Equal(t, 1, got.Count)
	})

	t.Run("error aborts", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := f.Update(ctx, "a", func(cur record, exists bool) (record, error) {
			cur.Count = 100
			return cur, boom
		})
		assert.ErrorIs(t, err, boom)

		stored, _, _ := f.Get(ctx, "a")
		assert.Equal(t, 1, stored.Count)
	})
}

func TestJSONFile_ConcurrentUpdatesDoNotLoseWrites(t *testing.T) {
	f := newTestFile(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.Update(ctx, "counter", func(cur record, _ bool) (record, error) {
				cur.Count++
				return cur, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, _, err := f.Get(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, 20, got.Count)
}

func TestJSONFile_WriteFailureIsSwallowed(t *testing.T) {
	f := NewJSONFile[record](filepath.Join(t.TempDir(), "missing-dir", "records.json"))

	got, err := f.Update(context.Background(), "a", func(cur record, _ bool) (record, error) {
		cur.Count = 5
		return cur, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, got.Count)

	_, ok, err := f.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.False(t, ok)
}
