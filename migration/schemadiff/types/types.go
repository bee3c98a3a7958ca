// Package types defines MigrationAction, the unit of output of the diff engine.
//
// Actions are produced in the order they must be applied: functions first, then per
// target table either a CREATE_TABLE or its column, alteration and index actions, and
// finally the optional ANALYZE actions. Consumers must not reorder them since later
// actions may depend on columns added by earlier ones.
//
// # JSON Serialization
//
// Kinds marshal as their upper-case names, so a dry-run plan reads like:
//
//	[{"type":"ADD_COLUMN","tableName":"Patient","column":{"name":"birthdate","type":"DATE"}}]
package types

import (
	"fmt"
	"strings"

	"github.com/stokaro/resmigrate/dbschema/types"
)

// ActionKind is the type of a MigrationAction.
type ActionKind int

const (
	CreateFunction ActionKind = iota + 1
	CreateTable
	AddColumn
	DropColumn
	AlterColumnSetDefault
	AlterColumnDropDefault
	AlterColumnUpdateNotNull
	AlterColumnType
	CreateIndex
	DropIndex
	AnalyzeTable
)

var kindNames = map[ActionKind]string{
	CreateFunction:           "CREATE_FUNCTION",
	CreateTable:              "CREATE_TABLE",
	AddColumn:                "ADD_COLUMN",
	DropColumn:               "DROP_COLUMN",
	AlterColumnSetDefault:    "ALTER_COLUMN_SET_DEFAULT",
	AlterColumnDropDefault:   "ALTER_COLUMN_DROP_DEFAULT",
	AlterColumnUpdateNotNull: "ALTER_COLUMN_UPDATE_NOT_NULL",
	AlterColumnType:          "ALTER_COLUMN_TYPE",
	CreateIndex:              "CREATE_INDEX",
	DropIndex:                "DROP_INDEX",
	AnalyzeTable:             "ANALYZE_TABLE",
}

func (k ActionKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ActionKind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k ActionKind) MarshalText() ([]byte, error) {
	name, ok := kindNames[k]
	if !ok {
		return nil, fmt.Errorf("unknown action kind %d", int(k))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ActionKind) UnmarshalText(text []byte) error {
	for kind, name := range kindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown action kind %q", string(text))
}

// MigrationAction is one schema change. Which fields are set depends on Kind:
//
//	CREATE_FUNCTION               FunctionName, CreateQuery
//	CREATE_TABLE                  Table
//	ADD_COLUMN                    TableName, Column
//	DROP_COLUMN                   TableName, ColumnName
//	ALTER_COLUMN_SET_DEFAULT      TableName, ColumnName, DefaultValue
//	ALTER_COLUMN_DROP_DEFAULT     TableName, ColumnName
//	ALTER_COLUMN_UPDATE_NOT_NULL  TableName, ColumnName, NotNull
//	ALTER_COLUMN_TYPE             TableName, ColumnName, ColumnType
//	CREATE_INDEX                  TableName, IndexName, CreateIndexSQL
//	DROP_INDEX                    TableName, IndexName
//	ANALYZE_TABLE                 TableName
type MigrationAction struct {
	Kind           ActionKind              `json:"type"`
	TableName      string                  `json:"tableName,omitempty"`
	ColumnName     string                  `json:"columnName,omitempty"`
	Column         *types.ColumnDefinition `json:"column,omitempty"`
	Table          *types.TableDefinition  `json:"table,omitempty"`
	DefaultValue   string                  `json:"defaultValue,omitempty"`
	NotNull        bool                    `json:"notNull,omitempty"`
	ColumnType     string                  `json:"columnType,omitempty"`
	IndexName      string                  `json:"indexName,omitempty"`
	CreateIndexSQL string                  `json:"createIndexSql,omitempty"`
	FunctionName   string                  `json:"functionName,omitempty"`
	CreateQuery    string                  `json:"createQuery,omitempty"`
}

// Description is a one-line summary for logs and dry-run output.
func (a MigrationAction) Description() string {
	var b strings.Builder
	b.WriteString(a.Kind.String())
	switch a.Kind {
	case CreateFunction:
		fmt.Fprintf(&b, " %s", a.FunctionName)
	case CreateTable:
		if a.Table != nil {
			fmt.Fprintf(&b, " %s", a.Table.Name)
		}
	case AddColumn:
		if a.Column != nil {
			fmt.Fprintf(&b, " %s.%s %s", a.TableName, a.Column.Name, a.Column.Type)
		}
	case DropColumn, AlterColumnDropDefault:
		fmt.Fprintf(&b, " %s.%s", a.TableName, a.ColumnName)
	case AlterColumnSetDefault:
		fmt.Fprintf(&b, " %s.%s %s", a.TableName, a.ColumnName, a.DefaultValue)
	case AlterColumnUpdateNotNull:
		fmt.Fprintf(&b, " %s.%s notNull=%t", a.TableName, a.ColumnName, a.NotNull)
	case AlterColumnType:
		fmt.Fprintf(&b, " %s.%s %s", a.TableName, a.ColumnName, a.ColumnType)
	case CreateIndex, DropIndex:
		fmt.Fprintf(&b, " %s", a.IndexName)
	case AnalyzeTable:
		fmt.Fprintf(&b, " %s", a.TableName)
	}
	return b.String()
}

// CountByKind tallies actions per kind, for summaries.
func CountByKind(actions []MigrationAction) map[ActionKind]int {
	counts := make(map[ActionKind]int)
	for _, a := range actions {
		counts[a.Kind]++
	}
	return counts
}
