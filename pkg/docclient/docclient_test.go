package docclient_test

import (
	"context"
	"testing"

	"github.com/cuemby/strata/pkg/dataunit"
	"github.com/cuemby/strata/pkg/dataunit/objectid"
	"github.com/cuemby/strata/pkg/docclient"
	"github.com/cuemby/strata/pkg/docstore"
	"github.com/cuemby/strata/pkg/kvstore/boltkv"
	"github.com/cuemby/strata/pkg/taskrt"
	"github.com/stretchr/testify/require"
)

func noteSchema(t *testing.T) *dataunit.Schema {
	t.Helper()
	s, err := dataunit.NewSchema("note",
		dataunit.Field(1, "text", dataunit.TypeString).WithRequired(),
	)
	require.NoError(t, err)
	return s
}

func newTestStore(t *testing.T) (*docstore.Store, *dataunit.Schema) {
	t.Helper()
	schema := noteSchema(t)
	db, err := boltkv.Open(t.TempDir(), "notes")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := docstore.New(db)
	require.NoError(t, store.EnsureModel(context.Background(), &docstore.Model{Name: "note", Schema: schema}))
	return store, schema
}

func TestCallerModeRunsSynchronously(t *testing.T) {
	store, schema := newTestStore(t)
	client := docclient.New(store, nil, docclient.ModeCaller)

	u := dataunit.New(schema)
	require.NoError(t, u.SetByName("text", "hello"))

	var gotID objectid.ID
	var gotErr error
	client.Create(context.Background(), "note", "_default", u, func(id objectid.ID, err error) {
		gotID, gotErr = id, err
	})

	require.NoError(t, gotErr)
	require.False(t, gotID.IsZero())
}

func TestMappedModeRoundTrip(t *testing.T) {
	store, schema := newTestStore(t)
	rt := taskrt.New(taskrt.Config{Workers: 2})
	defer rt.Stop()
	client := docclient.New(store, rt, docclient.ModeMapped)

	u := dataunit.New(schema)
	require.NoError(t, u.SetByName("text", "hello"))

	created := make(chan objectid.ID, 1)
	client.Create(context.Background(), "note", "_default", u, func(id objectid.ID, err error) {
		require.NoError(t, err)
		created <- id
	})
	id := <-created

	read := make(chan *dataunit.Unit, 1)
	client.Read(context.Background(), "note", "_default", "_default", id, func(got *dataunit.Unit, err error) {
		require.NoError(t, err)
		read <- got
	})
	got := <-read
	text, ok := got.GetByName("text")
	require.True(t, ok)
	require.Equal(t, "hello", text)
}

func TestRegistryFallsBackWhenShardUnregistered(t *testing.T) {
	store, _ := newTestStore(t)
	fallback := docclient.New(store, nil, docclient.ModeCaller)
	reg := docclient.NewRegistry(fallback)

	c, err := reg.Client("unregistered-shard")
	require.NoError(t, err)
	require.Same(t, fallback, c)
}

func TestRegistryUsesRegisteredShard(t *testing.T) {
	store, _ := newTestStore(t)
	fallback := docclient.New(store, nil, docclient.ModeCaller)
	other := docclient.New(store, nil, docclient.ModeCaller)
	reg := docclient.NewRegistry(fallback)
	reg.Register("shard-a", other)

	c, err := reg.Client("shard-a")
	require.NoError(t, err)
	require.Same(t, other, c)
}
