/*
Package access implements the access checker:
cache → MAC pre-check → ACL relation/role resolution → subject- and
object-hierarchy traversal, stopping on the first Grant or the first
Deny reached while walking object parents.

The three ACL relation tables are ordinary docstore models
— acl_relation, acl_role_operation, acl_op_family_access — so the
checker is built the same way as pkg/outbox: schema-typed collections
with secondary indexes, no bespoke storage layer of its own. The
concurrency shape (dispatch each check onto the object's topic worker,
re-dispatching only when a hierarchy step crosses into another topic)
reuses pkg/taskrt the same way pkg/docclient does, and the in-memory
Cache implementation (MemoryCache) is a mutex-guarded map.
*/
package access

import (
	"context"

	"github.com/cuemby/strata/pkg/dataunit"
	"github.com/cuemby/strata/pkg/docstore"
	"github.com/cuemby/strata/pkg/indexkey"
	"github.com/cuemby/strata/pkg/metrics"
	"github.com/cuemby/strata/pkg/serr"
	"github.com/cuemby/strata/pkg/strlog"
	"github.com/cuemby/strata/pkg/taskrt"
)

// Decision is the outcome of a check.
type Decision int

const (
	Unknown Decision = iota
	Grant
	Deny
)

func (d Decision) String() string {
	switch d {
	case Grant:
		return "grant"
	case Deny:
		return "deny"
	default:
		return "unknown"
	}
}

// Identity names a subject or an object. Parent is honoured on the
// object passed to Check and on each object parent an ObjectHierarchy
// returns, naming the topic to start relation lookup from when the
// object is itself a topic descriptor.
type Identity struct {
	Topic string
	Model string
	ID string
	Parent string
}

// Operation is a singleton descriptor: a name, the family it belongs
// to, and the access bits it requires of a family grant.
type Operation struct {
	Name string
	Family string
	AccessMask uint64
}

// CacheKey identifies one cached decision.
type CacheKey struct {
	ObjectModel string
	ObjectID string
	SubjectID string
	Operation string
}

// Cache is an optional decision cache consulted first and populated on
// every non-Unknown resolution.
type Cache interface {
	Get(ctx context.Context, key CacheKey) (Decision, bool)
	Set(ctx context.Context, key CacheKey, d Decision)
}

// MAC is an optional mandatory-access pre-check. Returning a
// serr.MACForbidden error resolves the whole check to Deny; any other
// error aborts the check with Unknown.
type MAC interface {
	Check(ctx context.Context, subject, object Identity, op Operation) error
}

// SubjectHierarchy and ObjectHierarchy are external interfaces the
// checker consults when a direct/relation-based resolution is
// inconclusive.
type SubjectHierarchy interface {
	Parents(ctx context.Context, subject Identity) ([]Identity, error)
}

type ObjectHierarchy interface {
	Parents(ctx context.Context, object Identity) ([]Identity, error)
}

// Option configures a Checker at construction.
type Option func(*Checker)

func WithCache(c Cache) Option { return func(ch *Checker) { ch.cache = c } }
func WithMAC(m MAC) Option { return func(ch *Checker) { ch.mac = m } }
func WithSubjectHierarchy(h SubjectHierarchy) Option { return func(ch *Checker) { ch.subjects = h } }
func WithObjectHierarchy(h ObjectHierarchy) Option { return func(ch *Checker) { ch.objects = h } }
func WithLogger(l strlog.Logger) Option { return func(ch *Checker) { ch.log = l } }

// Checker resolves (subject, object, operation) access decisions
// against the ACL relation tables, an optional cache and MAC backend,
// and optional subject/object hierarchies.
type Checker struct {
	store *docstore.Store
	rt *taskrt.Runtime

	cache Cache
	mac MAC
	subjects SubjectHierarchy
	objects ObjectHierarchy

	schemas *schemas
	log strlog.Logger
}

// New builds a Checker. Call EnsureModels before the first Check.
func New(store *docstore.Store, rt *taskrt.Runtime, opts ...Option) (*Checker, error) {
	s, err := buildSchemas()
	if err != nil {
		return nil, err
	}
	ch := &Checker{store: store, rt: rt, schemas: s, log: strlog.Nop()}
	for _, o := range opts {
		o(ch)
	}
	return ch, nil
}

// EnsureModels provisions the three ACL relation tables.
func (ch *Checker) EnsureModels(ctx context.Context) error {
	for _, m := range ch.schemas.models() {
		if err := ch.store.EnsureModel(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// Check resolves subject's access to object for op. The
// whole resolution — including recursive subject/object-hierarchy
// traversal — is dispatched once, onto the worker mapped to object's
// topic, and runs to completion there; a recursive call that hops to
// an ancestor in a different topic re-dispatches onto that topic's
// worker in turn (see resolve's hierarchy steps), but a hop back onto
// the topic already running the current Check is resolved inline
// instead of re-entering SubmitWait, which would deadlock against the
// worker currently blocked waiting on this very call.
func (ch *Checker) Check(ctx context.Context, subject, object Identity, op Operation) (Decision, error) {
	timer := metrics.NewTimer()
	if object.Parent != "" {
		object = Identity{Topic: object.Parent, Model: object.Model, ID: object.ID}
	}

	var decision Decision
	var resolveErr error
	ch.rt.SubmitWait(ctx, object.Topic, func(ctx context.Context) {
		decision, resolveErr = ch.resolve(ctx, object.Topic, subject, object, op)
	})
	timer.ObserveDuration(metrics.AccessCheckDuration)
	metrics.AccessChecksTotal.WithLabelValues(decision.String()).Inc()
	return decision, resolveErr
}

// checkFrom continues resolution for (subject, object, op) during a
// hierarchy walk that started on runningTopic's worker. It redispatches
// through SubmitWait only when object's topic differs from the one
// already executing, avoiding a worker deadlocking against itself.
func (ch *Checker) checkFrom(ctx context.Context, runningTopic string, subject, object Identity, op Operation) (Decision, error) {
	if object.Topic == runningTopic {
		return ch.resolve(ctx, runningTopic, subject, object, op)
	}
	var decision Decision
	var resolveErr error
	ch.rt.SubmitWait(ctx, object.Topic, func(ctx context.Context) {
		decision, resolveErr = ch.resolve(ctx, object.Topic, subject, object, op)
	})
	return decision, resolveErr
}

func (ch *Checker) resolve(ctx context.Context, runningTopic string, subject, object Identity, op Operation) (Decision, error) {
	key := CacheKey{ObjectModel: object.Model, ObjectID: object.ID, SubjectID: subject.ID, Operation: op.Name}

	if ch.cache != nil {
		if d, ok := ch.cache.Get(ctx, key); ok && d != Unknown {
			metrics.AccessCacheHitsTotal.Inc()
			return d, nil
		}
	}

	if ch.mac != nil {
		if err := ch.mac.Check(ctx, subject, object, op); err != nil {
			if serr.Is(err, serr.MACForbidden) {
				ch.cacheSet(ctx, key, Deny)
				return Deny, nil
			}
			return Unknown, err
		}
	}

	roles, err := ch.rolesFor(ctx, object.Topic, object.ID, subject.ID)
	if err != nil {
		return Unknown, err
	}

	denied := false
	if len(roles) > 0 {
		granted, explicitDeny, err := ch.roleOperationGrants(ctx, roles, op.Name)
		if err != nil {
			return Unknown, err
		}
		if granted {
			ch.cacheSet(ctx, key, Grant)
			return Grant, nil
		}
		denied = explicitDeny

		granted, err = ch.opFamilyGrants(ctx, roles, op.Family, op.AccessMask)
		if err != nil {
			return Unknown, err
		}
		if granted {
			ch.cacheSet(ctx, key, Grant)
			return Grant, nil
		}
	}

	if ch.subjects != nil {
		parents, err := ch.subjects.Parents(ctx, subject)
		if err != nil {
			return Unknown, err
		}
		for _, parent := range parents {
			d, err := ch.checkFrom(ctx, runningTopic, parent, object, op)
			if err != nil {
				return Unknown, err
			}
			if d == Grant {
				ch.cacheSet(ctx, key, Grant)
				return Grant, nil
			}
		}
	}

	// An explicit deny from the role-operation rows ends resolution at
	// this object: its object parents are not consulted.
	if ch.objects != nil && !denied {
		parents, err := ch.objects.Parents(ctx, object)
		if err != nil {
			return Unknown, err
		}
		for _, parent := range parents {
			if parent.Parent != "" {
				parent = Identity{Topic: parent.Parent, Model: parent.Model, ID: parent.ID}
			}
			d, err := ch.checkFrom(ctx, runningTopic, subject, parent, op)
			if err != nil {
				return Unknown, err
			}
			if d == Grant {
				ch.cacheSet(ctx, key, Grant)
				return Grant, nil
			}
			if d == Deny {
				break // no appeal to further object parents once a deny is reached
			}
		}
	}

	ch.cacheSet(ctx, key, Deny)
	return Deny, nil
}

func (ch *Checker) cacheSet(ctx context.Context, key CacheKey, d Decision) {
	if ch.cache != nil {
		ch.cache.Set(ctx, key, d)
	}
}

func (ch *Checker) rolesFor(ctx context.Context, topic, objectID, subjectID string) ([]string, error) {
	docs, err := ch.store.Find(ctx, relationModel, topic, defaultPartition, docstore.Query{
		Index: byRelation,
		Predicates: []indexkey.Predicate{
			{Field: "topic", Op: indexkey.OpEq, Operand: topic},
			{Field: "object", Op: indexkey.OpEq, Operand: objectID},
			{Field: "subject", Op: indexkey.OpEq, Operand: subjectID},
		},
	})
	if err != nil {
		return nil, err
	}
	roles := make([]string, 0, len(docs))
	for _, d := range docs {
		role, _ := d.GetByName("role")
		roles = append(roles, role.(string))
	}
	return roles, nil
}

// roleOperationGrants reports whether any of roles grants operation,
// and whether rows for them exist with none granting (an explicit deny).
func (ch *Checker) roleOperationGrants(ctx context.Context, roles []string, operation string) (bool, bool, error) {
	operand := make([]any, len(roles))
	for i, r := range roles {
		operand[i] = r
	}
	docs, err := ch.store.Find(ctx, roleOpModel, defaultTopic, defaultPartition, docstore.Query{
		Index: byRoleOp,
		Predicates: []indexkey.Predicate{
			{Field: "role", Op: indexkey.OpIn, Operand: operand},
			{Field: "operation", Op: indexkey.OpEq, Operand: operation},
		},
	})
	if err != nil {
		return false, false, err
	}
	for _, d := range docs {
		g, _ := d.GetByName("grant")
		if g.(bool) {
			return true, false, nil
		}
	}
	return false, len(docs) > 0, nil
}

func (ch *Checker) opFamilyGrants(ctx context.Context, roles []string, family string, mask uint64) (bool, error) {
	operand := make([]any, len(roles))
	for i, r := range roles {
		operand[i] = r
	}
	docs, err := ch.store.Find(ctx, opFamilyModel, defaultTopic, defaultPartition, docstore.Query{
		Index: byFamily,
		Predicates: []indexkey.Predicate{
			{Field: "role", Op: indexkey.OpIn, Operand: operand},
			{Field: "op_family", Op: indexkey.OpEq, Operand: family},
		},
	})
	if err != nil {
		return false, err
	}
	for _, d := range docs {
		v, _ := d.GetByName("access_mask")
		if v.(uint64)&mask != 0 {
			return true, nil
		}
	}
	return false, nil
}

// GrantRole records that subject holds role on object within topic
// (an acl_relation row).
func (ch *Checker) GrantRole(ctx context.Context, topic, objectID, subjectID, role string) error {
	u := dataunit.New(ch.schemas.relation)
	for _, s := range [][2]string{{"topic", topic}, {"object", objectID}, {"subject", subjectID}, {"role", role}} {
		if err := u.SetByName(s[0], s[1]); err != nil {
			return err
		}
	}
	_, err := ch.store.Create(ctx, relationModel, topic, u)
	return err
}

// SetRoleOperation records whether role grants or denies operation
// (an acl_role_operation row).
func (ch *Checker) SetRoleOperation(ctx context.Context, role, operation string, grant bool) error {
	u := dataunit.New(ch.schemas.roleOp)
	if err := u.SetByName("role", role); err != nil {
		return err
	}
	if err := u.SetByName("operation", operation); err != nil {
		return err
	}
	if err := u.SetByName("grant", grant); err != nil {
		return err
	}
	_, err := ch.store.Create(ctx, roleOpModel, defaultTopic, u)
	return err
}

// SetFamilyAccess records role's access bitmask over op_family (an
// acl_op_family_access row).
func (ch *Checker) SetFamilyAccess(ctx context.Context, role, family string, mask uint64) error {
	u := dataunit.New(ch.schemas.opFamily)
	if err := u.SetByName("role", role); err != nil {
		return err
	}
	if err := u.SetByName("op_family", family); err != nil {
		return err
	}
	if err := u.SetByName("access_mask", mask); err != nil {
		return err
	}
	_, err := ch.store.Create(ctx, opFamilyModel, defaultTopic, u)
	return err
}
