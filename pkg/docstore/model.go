/*
Package docstore is the ordered-KV-backed document store:
schema-typed collections ("models") with a primary key and zero or
more secondary indexes, optional TTL expiry, and optional time-based
partitioning into column-family pairs. It is built directly on
pkg/kvstore (storage), pkg/indexkey (key encoding/query planning) and
pkg/dataunit (record shape/wire form), split across packages because
the document store has to support an open set of schemas rather than
a small fixed set of entity types.
*/
package docstore

import (
	"github.com/cuemby/strata/pkg/dataunit"
	"github.com/cuemby/strata/pkg/indexkey"
	"github.com/cuemby/strata/pkg/serr"
)

// PartitionMode selects how a Model's documents are split across
// column-family pairs.
type PartitionMode int

const (
	// PartitionNone keeps every document of a model in a single bucket
	// pair.
	PartitionNone PartitionMode = iota
	// PartitionByDay buckets documents by the UTC calendar day of
	// Model.PartitionField.
	PartitionByDay
)

// Model binds a schema to a collection name, its secondary indexes,
// and its partitioning/TTL behavior.
type Model struct {
	Name string
	Schema *dataunit.Schema
	Indexes []*indexkey.IndexSpec

	Partition PartitionMode
	// PartitionField names the TypeDateTime field partitioning keys off
	// of; required when Partition != PartitionNone.
	PartitionField string

	// TTLField, if set, names a TypeDateTime field whose value is the
	// absolute expiry time for a document.
	TTLField string
}

// Validate checks that a Model's field references resolve against its
// own schema.
func (m *Model) Validate() error {
	if m.Schema == nil {
		return serr.New(serr.ValidationFailed, "docstore: model %q has no schema", m.Name)
	}
	if m.Partition != PartitionNone {
		f, ok := m.Schema.ByName(m.PartitionField)
		if !ok || f.Type != dataunit.TypeDateTime {
			return serr.New(serr.ValidationFailed, "docstore: model %q: partition field %q must be a datetime field", m.Name, m.PartitionField)
		}
	}
	if m.TTLField != "" {
		f, ok := m.Schema.ByName(m.TTLField)
		if !ok || f.Type != dataunit.TypeDateTime {
			return serr.New(serr.ValidationFailed, "docstore: model %q: ttl field %q must be a datetime field", m.Name, m.TTLField)
		}
	}
	seen := map[string]bool{}
	for _, idx := range m.Indexes {
		if seen[idx.Name] {
			return serr.New(serr.ValidationFailed, "docstore: model %q: duplicate index name %q", m.Name, idx.Name)
		}
		seen[idx.Name] = true
	}
	return nil
}

// Index looks up one of the model's declared indexes by name.
func (m *Model) Index(name string) (*indexkey.IndexSpec, bool) {
	for _, idx := range m.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return nil, false
}
