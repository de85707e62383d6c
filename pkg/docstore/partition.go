package docstore

import (
	"fmt"
	"time"

	"github.com/cuemby/strata/pkg/dataunit"
	"github.com/cuemby/strata/pkg/serr"
)

const defaultPartitionKey = "_default"

// partitionKey returns the column-family suffix for u under m's
// partitioning rule: the zero-value "_default" partition for
// PartitionNone, or the UTC calendar day (YYYYMMDD) of m.PartitionField
// for PartitionByDay.
func partitionKey(m *Model, u *dataunit.Unit) (string, error) {
	if m.Partition == PartitionNone {
		return defaultPartitionKey, nil
	}
	f, _ := m.Schema.ByName(m.PartitionField)
	v, ok := u.Get(f.Tag)
	if !ok {
		return "", serr.Field(serr.FieldRequiredMissing, m.PartitionField,
			"docstore: model %q: partition field %q must be set to store a document", m.Name, m.PartitionField)
	}
	dt := v.(dataunit.DateTime)
	return dayKey(time.Unix(dt.Unix, 0).UTC()), nil
}

func dayKey(t time.Time) string { return t.Format("20060102") }

// PartitionKeyForDay is the partition key a caller would pass to
// DropPartition/scan-by-partition admin operations for day t,
// exported so callers can target "yesterday's partition" without
// reaching into package internals.
func PartitionKeyForDay(t time.Time) string { return dayKey(t) }

func primaryBucket(model, partition string) string {
	return fmt.Sprintf("doc$%s$%s", model, partition)
}

func indexBucket(model, partition, index string) string {
	return fmt.Sprintf("idx$%s$%s$%s", model, partition, index)
}

// topicsBucket holds the per-partition topic registry: one entry per
// distinct topic with any live document, refcounted so the last
// document leaving a topic removes it from ListModelTopics.
func topicsBucket(model, partition string) string {
	return fmt.Sprintf("topics$%s$%s", model, partition)
}

// datePartitionsBucket holds the set of day partitions a day-partitioned
// model has ever had provisioned via AddDatePartitions, independent of
// any particular partition (one registry per model, not per partition).
func datePartitionsBucket(model string) string {
	return fmt.Sprintf("dateparts$%s", model)
}
