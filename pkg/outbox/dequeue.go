package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/strata/pkg/dataunit/objectid"
	"github.com/cuemby/strata/pkg/docstore"
	"github.com/cuemby/strata/pkg/indexkey"
	"github.com/cuemby/strata/pkg/metrics"
)

// topicJobs enforces at most one in-flight dequeue job per topic: a
// trigger for a topic already in the set is a no-op.
type topicJobs struct {
	mu sync.Mutex
	inUse map[string]bool
}

func newTopicJobs() *topicJobs {
	return &topicJobs{inUse: map[string]bool{}}
}

func (j *topicJobs) tryStart(topic string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.inUse[topic] {
		return false
	}
	j.inUse[topic] = true
	return true
}

func (j *topicJobs) finish(topic string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.inUse, topic)
}

// Start enumerates every topic with at least one unfailed queued
// message and kicks a dequeue job for each — used on process startup to resume
// draining messages posted before a restart.
func (q *Queue) Start(ctx context.Context) error {
	rows, err := q.store.FindRows(ctx, modelName, defaultTopic, defaultPartition, docstore.Query{Index: "by_dequeue"})
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, r := range rows {
		msg, err := fromUnit(r.Doc)
		if err != nil {
			return err
		}
		if msg.Failed || seen[msg.Topic] {
			continue
		}
		seen[msg.Topic] = true
		q.triggerDequeue(ctx, msg.Topic)
	}
	return nil
}

// triggerDequeue starts topic's dequeue job if one isn't already
// in-flight; otherwise it's a no-op.
func (q *Queue) triggerDequeue(ctx context.Context, topic string) {
	if !q.jobs.tryStart(topic) {
		return
	}
	q.rt.Submit(ctx, topic, func(ctx context.Context) { q.runTopic(ctx, topic) })
}

// runTopic drains topic: it repeatedly dequeues the oldest unfailed
// message and processes it until the queue for topic is empty or a
// retryable failure schedules a backoff, at which point the job
// returns without clearing topic from the in-flight set — the pending
// retry timer keeps the topic claimed until it fires.
func (q *Queue) runTopic(ctx context.Context, topic string) {
	for {
		row, ok, err := q.dequeueOne(ctx, topic)
		if err != nil {
			q.log.Error("outbox: dequeue failed", "topic", topic, "error", err)
			break
		}
		if !ok {
			break
		}
		if q.processOne(ctx, row) {
			q.rt.AfterFunc(ctx, q.retryInterval, topic, func(ctx context.Context) { q.runTopic(ctx, topic) })
			return
		}
	}
	q.jobs.finish(topic)
}

// dequeueOne fetches the single oldest unfailed message for topic, in
// producer-position order, via the by_dequeue index's (topic, failed,
// position) equality-prefix-then-natural-order scan.
func (q *Queue) dequeueOne(ctx context.Context, topic string) (docstore.Row, bool, error) {
	rows, err := q.store.FindRows(ctx, modelName, defaultTopic, defaultPartition, docstore.Query{
		Index: "by_dequeue",
		Predicates: []indexkey.Predicate{
			{Field: "topic", Op: indexkey.OpEq, Operand: topic},
			{Field: "failed", Op: indexkey.OpEq, Operand: false},
		},
		Limit: 1,
	})
	if err != nil {
		return docstore.Row{}, false, err
	}
	if len(rows) == 0 {
		return docstore.Row{}, false, nil
	}
	return rows[0], true, nil
}

// processOne delivers one message and applies the resulting state
// transition. It returns true if the caller should back off and retry
// topic later.
func (q *Queue) processOne(ctx context.Context, row docstore.Row) bool {
	msg, err := fromUnit(row.Doc)
	if err != nil {
		q.log.Error("outbox: parsing queued message failed", "error", err)
		return false
	}

	if !msg.ExpireAt.IsZero() && time.Now().After(msg.ExpireAt) {
		q.markFailed(ctx, row.ID, msg, "message expired before delivery")
		metrics.OutboxMessagesDelivered.WithLabelValues(msg.Topic, "expired").Inc()
		return false
	}

	timer := metrics.NewTimer()
	outcome, sendErr := q.transport.Send(ctx, msg)
	timer.ObserveDurationVec(metrics.OutboxDeliveryDuration, msg.Topic)
	switch outcome {
	case OutcomeSent:
		if err := q.store.Delete(ctx, modelName, defaultTopic, defaultPartition, row.ID); err != nil {
			q.log.Error("outbox: removing sent message failed", "error", err)
		}
		if q.notifier != nil {
			q.notifier.Sent(msg)
		}
		metrics.OutboxMessagesDelivered.WithLabelValues(msg.Topic, "sent").Inc()
		return false
	case OutcomeRetry:
		q.log.Warn("outbox: delivery retry scheduled", "topic", msg.Topic, "object_id", msg.ObjectID.String(), "error", sendErr)
		metrics.OutboxRetriesTotal.WithLabelValues(msg.Topic).Inc()
		return true
	default: // OutcomeFatal
		reason := "delivery failed"
		if sendErr != nil {
			reason = sendErr.Error()
		}
		q.markFailed(ctx, row.ID, msg, reason)
		metrics.OutboxMessagesDelivered.WithLabelValues(msg.Topic, "failed").Inc()
		return false
	}
}

func (q *Queue) markFailed(ctx context.Context, id objectid.ID, msg *Message, reason string) {
	msg.Failed = true
	msg.ErrorMessage = reason
	u, err := toUnit(q.schema, msg)
	if err != nil {
		q.log.Error("outbox: marking message failed errored", "error", err)
		return
	}
	if err := q.store.Update(ctx, modelName, defaultTopic, defaultPartition, id, u); err != nil {
		q.log.Error("outbox: persisting failed message errored", "error", err)
		return
	}
	if q.notifier != nil {
		q.notifier.Failed(msg, reason)
	}
}

// RemoveLocalFailed deletes every failed message for (topic,
// objectType) without attempting delivery.
func (q *Queue) RemoveLocalFailed(ctx context.Context, topic, objectType string) (int, error) {
	rows, err := q.failedRows(ctx, topic, objectType)
	if err != nil {
		return 0, err
	}
	for _, r := range rows {
		if err := q.store.Delete(ctx, modelName, defaultTopic, defaultPartition, r.ID); err != nil {
			return 0, err
		}
	}
	return len(rows), nil
}

// RemoveLocalPos deletes the single message at producer-position pos
// on topic, whether or not it has failed.
func (q *Queue) RemoveLocalPos(ctx context.Context, topic string, pos objectid.ID) error {
	rows, err := q.store.FindRows(ctx, modelName, defaultTopic, defaultPartition, docstore.Query{
		Index: "by_dequeue",
		Predicates: []indexkey.Predicate{
			{Field: "topic", Op: indexkey.OpEq, Operand: topic},
		},
	})
	if err != nil {
		return err
	}
	for _, r := range rows {
		msg, err := fromUnit(r.Doc)
		if err != nil {
			return err
		}
		if msg.Position == pos {
			return q.store.Delete(ctx, modelName, defaultTopic, defaultPartition, r.ID)
		}
	}
	return nil
}

// RemoveLocal deletes every message for (topic, objectType), optionally
// narrowed to a specific set of object ids.
func (q *Queue) RemoveLocal(ctx context.Context, topic, objectType string, ids []objectid.ID) (int, error) {
	rows, err := q.rowsFor(ctx, topic, objectType, ids)
	if err != nil {
		return 0, err
	}
	for _, r := range rows {
		if err := q.store.Delete(ctx, modelName, defaultTopic, defaultPartition, r.ID); err != nil {
			return 0, err
		}
	}
	return len(rows), nil
}

// ReadLocal returns every queued message for (topic, objectType),
// optionally narrowed to a specific set of object ids, without
// removing them.
func (q *Queue) ReadLocal(ctx context.Context, topic, objectType string, ids []objectid.ID) ([]*Message, error) {
	rows, err := q.rowsFor(ctx, topic, objectType, ids)
	if err != nil {
		return nil, err
	}
	out := make([]*Message, 0, len(rows))
	for _, r := range rows {
		msg, err := fromUnit(r.Doc)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

func (q *Queue) failedRows(ctx context.Context, topic, objectType string) ([]docstore.Row, error) {
	rows, err := q.store.FindRows(ctx, modelName, defaultTopic, defaultPartition, docstore.Query{
		Index: "by_dequeue",
		Predicates: []indexkey.Predicate{
			{Field: "topic", Op: indexkey.OpEq, Operand: topic},
			{Field: "failed", Op: indexkey.OpEq, Operand: true},
		},
	})
	if err != nil {
		return nil, err
	}
	return filterByObjectType(rows, objectType)
}

func (q *Queue) rowsFor(ctx context.Context, topic, objectType string, ids []objectid.ID) ([]docstore.Row, error) {
	rows, err := q.store.FindRows(ctx, modelName, defaultTopic, defaultPartition, docstore.Query{
		Index: "by_dequeue",
		Predicates: []indexkey.Predicate{
			{Field: "topic", Op: indexkey.OpEq, Operand: topic},
		},
	})
	if err != nil {
		return nil, err
	}
	rows, err = filterByObjectType(rows, objectType)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return rows, nil
	}
	want := make(map[objectid.ID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []docstore.Row
	for _, r := range rows {
		msg, err := fromUnit(r.Doc)
		if err != nil {
			return nil, err
		}
		if want[msg.ObjectID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func filterByObjectType(rows []docstore.Row, objectType string) ([]docstore.Row, error) {
	if objectType == "" {
		return rows, nil
	}
	var out []docstore.Row
	for _, r := range rows {
		msg, err := fromUnit(r.Doc)
		if err != nil {
			return nil, err
		}
		if msg.ObjectType == objectType {
			out = append(out, r)
		}
	}
	return out, nil
}
