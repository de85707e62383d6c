package access

import (
	"github.com/cuemby/strata/pkg/dataunit"
	"github.com/cuemby/strata/pkg/docstore"
	"github.com/cuemby/strata/pkg/indexkey"
)

// defaultPartition is the single partition the unpartitioned ACL
// models write to.
const defaultPartition = "_default"

// defaultTopic is the storage topic for the role/operation and
// family-access tables, which have no natural per-call topic of their
// own — they're global bookkeeping, not per-tenant data. acl_relation
// rows DO carry a real topic (the caller's topic argument) and use it
// directly instead of this constant.
const defaultTopic = "_default"

const (
	relationModel = "acl_relation"
	roleOpModel = "acl_role_operation"
	opFamilyModel = "acl_op_family_access"

	byRelation = "by_relation"
	byRoleOp = "by_role_op"
	byFamily = "by_family"
)

// schemas bundles the three ACL table schemas and their docstore
// Models.
type schemas struct {
	relation *dataunit.Schema
	roleOp *dataunit.Schema
	opFamily *dataunit.Schema

	relationM *docstore.Model
	roleOpM *docstore.Model
	opFamilyM *docstore.Model
}

func (s *schemas) models() []*docstore.Model {
	return []*docstore.Model{s.relationM, s.roleOpM, s.opFamilyM}
}

func buildSchemas() (*schemas, error) {
	relation, err := dataunit.NewSchema(relationModel,
		dataunit.Field(1, "topic", dataunit.TypeString).WithRequired(),
		dataunit.Field(2, "object", dataunit.TypeString).WithRequired(),
		dataunit.Field(3, "subject", dataunit.TypeString).WithRequired(),
		dataunit.Field(4, "role", dataunit.TypeString).WithRequired(),
	)
	if err != nil {
		return nil, err
	}
	byRelationIdx, err := indexkey.NewIndexSpec(byRelation, relation, "topic", "object", "subject")
	if err != nil {
		return nil, err
	}

	roleOp, err := dataunit.NewSchema(roleOpModel,
		dataunit.Field(1, "role", dataunit.TypeString).WithRequired(),
		dataunit.Field(2, "operation", dataunit.TypeString).WithRequired(),
		dataunit.Field(3, "grant", dataunit.TypeBool).WithRequired(),
	)
	if err != nil {
		return nil, err
	}
	byRoleOpIdx, err := indexkey.NewIndexSpec(byRoleOp, roleOp, "role", "operation")
	if err != nil {
		return nil, err
	}

	opFamily, err := dataunit.NewSchema(opFamilyModel,
		dataunit.Field(1, "role", dataunit.TypeString).WithRequired(),
		dataunit.Field(2, "op_family", dataunit.TypeString).WithRequired(),
		dataunit.Field(3, "access_mask", dataunit.TypeUint64).WithRequired(),
	)
	if err != nil {
		return nil, err
	}
	byFamilyIdx, err := indexkey.NewIndexSpec(byFamily, opFamily, "role", "op_family")
	if err != nil {
		return nil, err
	}

	return &schemas{
		relation: relation,
		roleOp: roleOp,
		opFamily: opFamily,
		relationM: &docstore.Model{
			Name: relationModel, Schema: relation,
			Indexes: []*indexkey.IndexSpec{byRelationIdx},
		},
		roleOpM: &docstore.Model{
			Name: roleOpModel, Schema: roleOp,
			Indexes: []*indexkey.IndexSpec{byRoleOpIdx},
		},
		opFamilyM: &docstore.Model{
			Name: opFamilyModel, Schema: opFamily,
			Indexes: []*indexkey.IndexSpec{byFamilyIdx},
		},
	}, nil
}
