package outbox_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/strata/pkg/dataunit"
	"github.com/cuemby/strata/pkg/dataunit/objectid"
	"github.com/cuemby/strata/pkg/dataunit/wire"
	"github.com/cuemby/strata/pkg/docstore"
	"github.com/cuemby/strata/pkg/docstore/updatewire"
	"github.com/cuemby/strata/pkg/kvstore/boltkv"
	"github.com/cuemby/strata/pkg/outbox"
	"github.com/cuemby/strata/pkg/serr"
	"github.com/cuemby/strata/pkg/taskrt"
	"github.com/stretchr/testify/require"
)

func widgetSchema(t *testing.T) *dataunit.Schema {
	t.Helper()
	s, err := dataunit.NewSchema("widget",
		dataunit.Field(1, "name", dataunit.TypeString).WithRequired(),
		dataunit.Field(2, "count", dataunit.TypeInt32),
	)
	require.NoError(t, err)
	return s
}

// recordingTransport records every send and always reports success,
// unless told otherwise via outcomeFn.
type recordingTransport struct {
	mu        sync.Mutex
	sent      []*outbox.Message
	outcomeFn func(*outbox.Message) (outbox.Outcome, error)
}

func (tr *recordingTransport) Send(_ context.Context, msg *outbox.Message) (outbox.Outcome, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.sent = append(tr.sent, msg)
	if tr.outcomeFn != nil {
		return tr.outcomeFn(msg)
	}
	return outbox.OutcomeSent, nil
}

func (tr *recordingTransport) count() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.sent)
}

func newQueue(t *testing.T, transport outbox.Transport) (*outbox.Queue, *taskrt.Runtime) {
	t.Helper()
	db, err := boltkv.Open(t.TempDir(), "outbox")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := docstore.New(db)
	rt := taskrt.New(taskrt.Config{Workers: 2})
	t.Cleanup(rt.Stop)

	q, err := outbox.New(store, rt, transport, outbox.WithRetryInterval(10*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, q.EnsureModel(context.Background()))
	return q, rt
}

func TestCreateThenDeliverRemovesMessage(t *testing.T) {
	transport := &recordingTransport{}
	q, _ := newQueue(t, transport)
	ctx := context.Background()

	objID := objectid.New()
	require.NoError(t, q.Create(ctx, "producer-a", "widgets", "widget", objID, []byte("payload"), nil))

	require.Eventually(t, func() bool { return transport.count() == 1 }, time.Second, 5*time.Millisecond)

	left, err := q.ReadLocal(ctx, "widgets", "widget", nil)
	require.NoError(t, err)
	require.Empty(t, left)
}

func TestCreateRejectsDuplicateObjectID(t *testing.T) {
	transport := &recordingTransport{outcomeFn: func(*outbox.Message) (outbox.Outcome, error) {
		return outbox.OutcomeRetry, nil // keep the Create parked in-queue
	}}
	q, _ := newQueue(t, transport)
	ctx := context.Background()

	objID := objectid.New()
	require.NoError(t, q.Create(ctx, "producer-a", "widgets", "widget", objID, []byte("payload"), nil))

	err := q.Create(ctx, "producer-a", "widgets", "widget", objID, []byte("payload-2"), nil)
	require.Error(t, err)
	require.Equal(t, serr.DuplicateObjectID, serr.Of(err))
}

func TestUpdateCoalescesOntoStagedCreate(t *testing.T) {
	transport := &recordingTransport{outcomeFn: func(*outbox.Message) (outbox.Outcome, error) {
		return outbox.OutcomeRetry, nil // never actually deliver, so the create stays staged
	}}
	q, _ := newQueue(t, transport)
	ctx := context.Background()
	schema := widgetSchema(t)

	obj := dataunit.New(schema)
	require.NoError(t, obj.SetByName("name", "gadget"))
	require.NoError(t, obj.SetByName("count", int32(1)))
	payload, err := wire.Serialize(obj)
	require.NoError(t, err)

	objID := objectid.New()
	require.NoError(t, q.Create(ctx, "producer-a", "widgets", "widget", objID, payload, nil))

	req := updatewire.Request{
		{Path: "[count]", Kind: updatewire.KindSet, Type: dataunit.TypeInt32, Value: int32(5)},
	}
	require.NoError(t, q.Update(ctx, "producer-a", "widgets", "widget", schema, objID, req, nil))

	msgs, err := q.ReadLocal(ctx, "widgets", "widget", []objectid.ID{objID})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, outbox.OpCreate, msgs[0].Op)

	got, err := wire.Parse(schema, msgs[0].Payload)
	require.NoError(t, err)
	count, ok := got.GetByName("count")
	require.True(t, ok)
	require.Equal(t, int32(5), count)
}

func TestDeleteAbsorbsInQueueMessages(t *testing.T) {
	transport := &recordingTransport{outcomeFn: func(*outbox.Message) (outbox.Outcome, error) {
		return outbox.OutcomeRetry, nil
	}}
	q, _ := newQueue(t, transport)
	ctx := context.Background()

	objID := objectid.New()
	require.NoError(t, q.Create(ctx, "producer-a", "widgets", "widget", objID, []byte("payload"), nil))
	require.NoError(t, q.Delete(ctx, "producer-a", "widgets", "widget", objID, nil))

	msgs, err := q.ReadLocal(ctx, "widgets", "widget", []objectid.ID{objID})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, outbox.OpDelete, msgs[0].Op)
}

func TestFatalOutcomeMarksFailedAndRemoveLocalFailedClearsIt(t *testing.T) {
	transport := &recordingTransport{outcomeFn: func(*outbox.Message) (outbox.Outcome, error) {
		return outbox.OutcomeFatal, serr.New(serr.TransportFatal, "peer rejected message")
	}}
	q, _ := newQueue(t, transport)
	ctx := context.Background()

	objID := objectid.New()
	require.NoError(t, q.Create(ctx, "producer-a", "widgets", "widget", objID, []byte("payload"), nil))

	require.Eventually(t, func() bool {
		msgs, err := q.ReadLocal(ctx, "widgets", "widget", []objectid.ID{objID})
		return err == nil && len(msgs) == 1 && msgs[0].Failed
	}, time.Second, 5*time.Millisecond)

	n, err := q.RemoveLocalFailed(ctx, "widgets", "widget")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	left, err := q.ReadLocal(ctx, "widgets", "widget", nil)
	require.NoError(t, err)
	require.Empty(t, left)
}
