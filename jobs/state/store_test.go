package state_test

import (
	"context"
	"testing"
	"time"

	"github.com/hashicorp/go-memdb"
	"github.com/nrwiersma/worker/jobs/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, entries ...*state.Entry) *state.Store {
	t.Helper()

	s, err := state.New()
	require.NoError(t, err)

	for _, e := range entries {
		require.NoError(t, s.Insert(e))
	}
	return s
}

func TestStore_InsertGet(t *testing.T) {
	s := newStore(t, &state.Entry{ID: 1, Group: 2, Name: "a", Value: "job"})

	got, err := s.Get(1)

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a", got.Name)
	assert.Equal(t, "job", got.Value)
}

func TestStore_GetMissing(t *testing.T) {
	s := newStore(t)

	got, err := s.Get(1)

	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_Delete(t *testing.T) {
	s := newStore(t, &state.Entry{ID: 1}, &state.Entry{ID: 2})

	got, err := s.Delete(1)

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.ID)
	n, err := s.Len(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err = s.Delete(1)

	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_All(t *testing.T) {
	s := newStore(t,
		&state.Entry{ID: 3},
		&state.Entry{ID: 1},
		&state.Entry{ID: 2},
	)

	got, err := s.All(nil)

	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 1, got[0].ID)
	assert.Equal(t, 2, got[1].ID)
	assert.Equal(t, 3, got[2].ID)
}

func TestStore_ByGroup(t *testing.T) {
	s := newStore(t,
		&state.Entry{ID: 1, Group: -1},
		&state.Entry{ID: 2, Group: 5},
		&state.Entry{ID: 3, Group: -1},
	)

	got, err := s.ByGroup(-1)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].ID)
	assert.Equal(t, 3, got[1].ID)
}

func TestStore_ByTag(t *testing.T) {
	s := newStore(t,
		&state.Entry{ID: 1, Tags: []string{"a", "b"}},
		&state.Entry{ID: 2},
		&state.Entry{ID: 3, Tags: []string{"b"}},
	)

	got, err := s.ByTag("b")

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].ID)
	assert.Equal(t, 3, got[1].ID)
}

func TestStore_LenWatch(t *testing.T) {
	s := newStore(t, &state.Entry{ID: 1})

	ws := memdb.NewWatchSet()
	n, err := s.Len(ws)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_, _ = s.Delete(1)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err = ws.WatchCtx(ctx)

	assert.NoError(t, err)
	n, err = s.Len(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
