package docstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/strata/pkg/dataunit"
	"github.com/cuemby/strata/pkg/dataunit/objectid"
	"github.com/cuemby/strata/pkg/docstore"
	"github.com/cuemby/strata/pkg/docstore/updatewire"
	"github.com/cuemby/strata/pkg/indexkey"
	"github.com/cuemby/strata/pkg/kvstore/boltkv"
	"github.com/stretchr/testify/require"
)

func userSchema(t *testing.T) *dataunit.Schema {
	t.Helper()
	s, err := dataunit.NewSchema("user",
		dataunit.Field(1, "name", dataunit.TypeString).WithRequired(),
		dataunit.Field(2, "age", dataunit.TypeInt32),
		dataunit.Field(3, "city", dataunit.TypeString),
		dataunit.Field(4, "created_at", dataunit.TypeDateTime),
	)
	require.NoError(t, err)
	return s
}

func openStore(t *testing.T) *docstore.Store {
	t.Helper()
	db, err := boltkv.Open(t.TempDir(), "users")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return docstore.New(db)
}

func userModel(t *testing.T, schema *dataunit.Schema) *docstore.Model {
	t.Helper()
	byCity, err := indexkey.NewIndexSpec("by_city", schema, "city", "age")
	require.NoError(t, err)
	return &docstore.Model{
		Name:    "user",
		Schema:  schema,
		Indexes: []*indexkey.IndexSpec{byCity},
	}
}

func TestCreateReadRoundTrip(t *testing.T) {
	schema := userSchema(t)
	store := openStore(t)
	model := userModel(t, schema)
	ctx := context.Background()
	require.NoError(t, store.EnsureModel(ctx, model))

	u := dataunit.New(schema)
	require.NoError(t, u.SetByName("name", "ada"))
	require.NoError(t, u.SetByName("age", int32(30)))
	require.NoError(t, u.SetByName("city", "london"))

	id, err := store.Create(ctx, "user", "_default", u)
	require.NoError(t, err)
	require.False(t, id.IsZero())

	got, err := store.ReadDefault(ctx, "user", "_default", id)
	require.NoError(t, err)
	name, ok := got.GetByName("name")
	require.True(t, ok)
	require.Equal(t, "ada", name)
}

func TestFindByIndexRange(t *testing.T) {
	schema := userSchema(t)
	store := openStore(t)
	model := userModel(t, schema)
	ctx := context.Background()
	require.NoError(t, store.EnsureModel(ctx, model))

	mk := func(name, city string, age int32) {
		u := dataunit.New(schema)
		require.NoError(t, u.SetByName("name", name))
		require.NoError(t, u.SetByName("age", age))
		require.NoError(t, u.SetByName("city", city))
		_, err := store.Create(ctx, "user", "_default", u)
		require.NoError(t, err)
	}
	mk("a", "london", 20)
	mk("b", "london", 30)
	mk("c", "london", 40)
	mk("d", "paris", 25)

	docs, err := store.Find(ctx, "user", "_default", "_default", docstore.Query{
		Index: "by_city",
		Predicates: []indexkey.Predicate{
			{Field: "city", Op: indexkey.OpEq, Operand: "london"},
			{Field: "age", Op: indexkey.OpGte, Operand: int32(30)},
		},
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
}

func TestUpdateRewritesIndexEntries(t *testing.T) {
	schema := userSchema(t)
	store := openStore(t)
	model := userModel(t, schema)
	ctx := context.Background()
	require.NoError(t, store.EnsureModel(ctx, model))

	u := dataunit.New(schema)
	require.NoError(t, u.SetByName("name", "ada"))
	require.NoError(t, u.SetByName("age", int32(30)))
	require.NoError(t, u.SetByName("city", "london"))
	id, err := store.Create(ctx, "user", "_default", u)
	require.NoError(t, err)

	next := dataunit.New(schema)
	require.NoError(t, next.SetByName("name", "ada"))
	require.NoError(t, next.SetByName("age", int32(30)))
	require.NoError(t, next.SetByName("city", "paris"))
	require.NoError(t, store.Update(ctx, "user", "_default", "_default", id, next))

	londonDocs, err := store.Find(ctx, "user", "_default", "_default", docstore.Query{
		Index:      "by_city",
		Predicates: []indexkey.Predicate{{Field: "city", Op: indexkey.OpEq, Operand: "london"}},
	})
	require.NoError(t, err)
	require.Empty(t, londonDocs)

	parisDocs, err := store.Find(ctx, "user", "_default", "_default", docstore.Query{
		Index:      "by_city",
		Predicates: []indexkey.Predicate{{Field: "city", Op: indexkey.OpEq, Operand: "paris"}},
	})
	require.NoError(t, err)
	require.Len(t, parisDocs, 1)
}

func TestDeleteRemovesDocumentAndIndexEntries(t *testing.T) {
	schema := userSchema(t)
	store := openStore(t)
	model := userModel(t, schema)
	ctx := context.Background()
	require.NoError(t, store.EnsureModel(ctx, model))

	u := dataunit.New(schema)
	require.NoError(t, u.SetByName("name", "ada"))
	require.NoError(t, u.SetByName("age", int32(30)))
	require.NoError(t, u.SetByName("city", "london"))
	id, err := store.Create(ctx, "user", "_default", u)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "user", "_default", "_default", id))
	_, err = store.ReadDefault(ctx, "user", "_default", id)
	require.Error(t, err)

	docs, err := store.Find(ctx, "user", "_default", "_default", docstore.Query{
		Index:      "by_city",
		Predicates: []indexkey.Predicate{{Field: "city", Op: indexkey.OpEq, Operand: "london"}},
	})
	require.NoError(t, err)
	require.Empty(t, docs)
}

func TestTTLFieldRegistersExpiry(t *testing.T) {
	schema, err := dataunit.NewSchema("session",
		dataunit.Field(1, "token", dataunit.TypeString).WithRequired(),
		dataunit.Field(2, "expires_at", dataunit.TypeDateTime),
	)
	require.NoError(t, err)

	db, err := boltkv.Open(t.TempDir(), "sessions", boltkv.WithTTLSweepInterval(10*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := docstore.New(db)

	model := &docstore.Model{Name: "session", Schema: schema, TTLField: "expires_at"}
	ctx := context.Background()
	require.NoError(t, store.EnsureModel(ctx, model))

	u := dataunit.New(schema)
	require.NoError(t, u.SetByName("token", "abc"))
	require.NoError(t, u.SetByName("expires_at", dataunit.DateTime{Unix: time.Now().Add(20 * time.Millisecond).Unix()}))
	id, err := store.Create(ctx, "session", "_default", u)
	require.NoError(t, err)

	_, err = store.ReadDefault(ctx, "session", "_default", id)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := store.ReadDefault(ctx, "session", "_default", id)
		return err != nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestDocumentsAreScopedByTopic(t *testing.T) {
	schema := userSchema(t)
	store := openStore(t)
	model := userModel(t, schema)
	ctx := context.Background()
	require.NoError(t, store.EnsureModel(ctx, model))

	mk := func(topic, city string) objectid.ID {
		u := dataunit.New(schema)
		require.NoError(t, u.SetByName("name", "ada"))
		require.NoError(t, u.SetByName("age", int32(30)))
		require.NoError(t, u.SetByName("city", city))
		id, err := store.Create(ctx, "user", topic, u)
		require.NoError(t, err)
		return id
	}
	idA := mk("tenant-a", "london")
	mk("tenant-b", "london")

	// A document created under one topic is invisible to a read under a
	// different topic, even with the same object id's key range.
	_, err := store.Read(ctx, "user", "tenant-b", "_default", idA)
	require.Error(t, err)
	got, err := store.Read(ctx, "user", "tenant-a", "_default", idA)
	require.NoError(t, err)
	require.NotNil(t, got)

	aDocs, err := store.Find(ctx, "user", "tenant-a", "_default", docstore.Query{
		Index:      "by_city",
		Predicates: []indexkey.Predicate{{Field: "city", Op: indexkey.OpEq, Operand: "london"}},
	})
	require.NoError(t, err)
	require.Len(t, aDocs, 1)

	topics, err := store.ListModelTopics(ctx, "user", "_default")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"tenant-a", "tenant-b"}, topics)

	require.NoError(t, store.Delete(ctx, "user", "tenant-a", "_default", idA))
	topics, err = store.ListModelTopics(ctx, "user", "_default")
	require.NoError(t, err)
	require.Equal(t, []string{"tenant-b"}, topics)
}

func TestFindOneFindAllAndUpdateMany(t *testing.T) {
	schema := userSchema(t)
	store := openStore(t)
	model := userModel(t, schema)
	ctx := context.Background()
	require.NoError(t, store.EnsureModel(ctx, model))

	mk := func(city string, age int32) {
		u := dataunit.New(schema)
		require.NoError(t, u.SetByName("name", "ada"))
		require.NoError(t, u.SetByName("age", age))
		require.NoError(t, u.SetByName("city", city))
		_, err := store.Create(ctx, "user", "_default", u)
		require.NoError(t, err)
	}
	mk("london", 20)
	mk("london", 30)
	mk("paris", 40)

	one, ok, err := store.FindOne(ctx, "user", "_default", "_default", docstore.Query{
		Index:      "by_city",
		Predicates: []indexkey.Predicate{{Field: "city", Op: indexkey.OpEq, Operand: "paris"}},
	})
	require.NoError(t, err)
	require.True(t, ok)
	age, _ := one.GetByName("age")
	require.Equal(t, int32(40), age)

	all, err := store.FindAll(ctx, "user", "_default", docstore.Query{Index: "by_city"})
	require.NoError(t, err)
	require.Len(t, all, 3)

	n, err := store.UpdateMany(ctx, "user", "_default", "_default", docstore.Query{
		Index:      "by_city",
		Predicates: []indexkey.Predicate{{Field: "city", Op: indexkey.OpEq, Operand: "london"}},
	}, updatewire.Request{{Path: "[city]", Kind: updatewire.KindSet, Type: dataunit.TypeString, Value: "berlin"}})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	remaining, err := store.Find(ctx, "user", "_default", "_default", docstore.Query{
		Index:      "by_city",
		Predicates: []indexkey.Predicate{{Field: "city", Op: indexkey.OpEq, Operand: "london"}},
	})
	require.NoError(t, err)
	require.Empty(t, remaining)

	deleted, err := store.DeleteMany(ctx, "user", "_default", "_default", docstore.Query{
		Index:      "by_city",
		Predicates: []indexkey.Predicate{{Field: "city", Op: indexkey.OpEq, Operand: "berlin"}},
	})
	require.NoError(t, err)
	require.Equal(t, 2, deleted)
}

func TestFindUpdateCreateUpsert(t *testing.T) {
	schema := userSchema(t)
	store := openStore(t)
	model := userModel(t, schema)
	ctx := context.Background()
	require.NoError(t, store.EnsureModel(ctx, model))

	q := docstore.Query{
		Index:      "by_city",
		Predicates: []indexkey.Predicate{{Field: "city", Op: indexkey.OpEq, Operand: "oslo"}},
	}
	req := updatewire.Request{{Path: "[age]", Kind: updatewire.KindInc, N: 1}}
	create := func() (*dataunit.Unit, error) {
		u := dataunit.New(schema)
		if err := u.SetByName("name", "grace"); err != nil {
			return nil, err
		}
		if err := u.SetByName("city", "oslo"); err != nil {
			return nil, err
		}
		return u, nil
	}

	id, created, err := store.FindUpdateCreate(ctx, "user", "_default", "_default", q, req, create)
	require.NoError(t, err)
	require.True(t, created)
	doc, err := store.ReadDefault(ctx, "user", "_default", id)
	require.NoError(t, err)
	age, _ := doc.GetByName("age")
	require.Equal(t, int32(1), age)

	id2, created2, err := store.FindUpdateCreate(ctx, "user", "_default", "_default", q, req, create)
	require.NoError(t, err)
	require.False(t, created2)
	require.Equal(t, id, id2)
	doc2, err := store.ReadDefault(ctx, "user", "_default", id2)
	require.NoError(t, err)
	age2, _ := doc2.GetByName("age")
	require.Equal(t, int32(2), age2)
}

func TestReadForUpdateRunsInWriteTransaction(t *testing.T) {
	schema := userSchema(t)
	store := openStore(t)
	model := userModel(t, schema)
	ctx := context.Background()
	require.NoError(t, store.EnsureModel(ctx, model))

	u := dataunit.New(schema)
	require.NoError(t, u.SetByName("name", "ada"))
	require.NoError(t, u.SetByName("city", "london"))
	id, err := store.Create(ctx, "user", "_default", u)
	require.NoError(t, err)

	got, err := store.Read(ctx, "user", "_default", "_default", id, docstore.WithForUpdate())
	require.NoError(t, err)
	name, _ := got.GetByName("name")
	require.Equal(t, "ada", name)
}

func TestDatePartitionAdminOperations(t *testing.T) {
	schema, err := dataunit.NewSchema("event",
		dataunit.Field(1, "day", dataunit.TypeDateTime).WithRequired(),
	)
	require.NoError(t, err)
	store := openStore(t)
	model := &docstore.Model{
		Name:           "event",
		Schema:         schema,
		Partition:      docstore.PartitionByDay,
		PartitionField: "day",
	}
	ctx := context.Background()
	require.NoError(t, store.EnsureModel(ctx, model))

	day1 := docstore.PartitionKeyForDay(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	day2 := docstore.PartitionKeyForDay(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	day3 := docstore.PartitionKeyForDay(time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, store.AddDatePartitions(ctx, "event", []string{day1, day2, day3}))

	days, err := store.ListDatePartitions(ctx, "event")
	require.NoError(t, err)
	require.Equal(t, []string{day1, day2, day3}, days)

	require.NoError(t, store.DeleteDatePartitions(ctx, "event", day3))
	days, err = store.ListDatePartitions(ctx, "event")
	require.NoError(t, err)
	require.Equal(t, []string{day3}, days)
}
