package fromcatalog

import (
	"fmt"
	"slices"

	"github.com/stokaro/resmigrate/dbschema/types"
)

// override patches the generated main table of one resource type. Each one fails when
// the column or index it expects is gone.
type override func(t *types.TableDefinition) error

var overrides = map[string][]override{
	"UserConfiguration": {setDefault("name", "''::text")},
	"User": {
		addUniqueIndex("project", "email"),
		addUniqueIndex("project", "externalId"),
	},
	"Encounter": {
		addIndex(types.IndexDefinition{Columns: types.Cols("compartments", "deleted", "appointment"), IndexType: types.IndexTypeGin}),
	},
	"DomainConfiguration": {makeUnique("domain")},
	"ServiceRequest":      {setDefault("orderDetail", "'{}'::text[]")},
	"ProjectMembership": {
		setDefault("profile", "''::text"),
		addUniqueIndex("project", "externalId"),
		addUniqueIndex("project", "userName"),
	},
}

func applyOverrides(t *types.TableDefinition) error {
	for _, o := range overrides[t.Name] {
		if err := o(t); err != nil {
			return err
		}
	}
	return nil
}

func setDefault(column, value string) override {
	return func(t *types.TableDefinition) error {
		col := t.Column(column)
		if col == nil {
			return fmt.Errorf("%w: could not find %s.%s column", ErrOverrideTarget, t.Name, column)
		}
		col.DefaultValue = value
		return nil
	}
}

func requireColumns(t *types.TableDefinition, columns []types.IndexColumn) error {
	for _, c := range columns {
		if !c.IsExpression() && t.Column(c.Name) == nil {
			return fmt.Errorf("%w: could not find %s.%s column", ErrOverrideTarget, t.Name, c.Name)
		}
	}
	return nil
}

func addIndex(idx types.IndexDefinition) override {
	return func(t *types.TableDefinition) error {
		if err := requireColumns(t, idx.Columns); err != nil {
			return err
		}
		t.Indexes = append(t.Indexes, idx)
		return nil
	}
}

func addUniqueIndex(columns ...string) override {
	return addIndex(types.IndexDefinition{Columns: types.Cols(columns...), IndexType: types.IndexTypeBtree, Unique: true})
}

// makeUnique marks the single-column index on column as unique.
func makeUnique(column string) override {
	return func(t *types.TableDefinition) error {
		i := slices.IndexFunc(t.Indexes, func(idx types.IndexDefinition) bool {
			return len(idx.Columns) == 1 && idx.Columns[0] == types.Col(column)
		})
		if i < 0 {
			return fmt.Errorf("%w: %s.%s index not found", ErrOverrideTarget, t.Name, column)
		}
		t.Indexes[i].Unique = true
		return nil
	}
}
