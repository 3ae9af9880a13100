// Package lotstore provides the SQLite-backed persistence layer for LotMan.
// It owns the connection pool, the prepared-statement cache, schema
// creation and migration, and the transaction primitives every higher
// layer (LotRepository, GraphEngine, UsageEngine, PolicyEvaluator) builds
// on.
package lotstore

// Owner is the lot_name -> owner row. Exactly one per lot.
type Owner struct {
	LotName string
	Owner   string
}

// Parent is one edge of the lot_name -> parent many-to-many relation.
// A self-loop (LotName == Parent) marks LotName as a root.
type Parent struct {
	LotName string
	Parent  string
}

// Path is one storage path prefix claimed by exactly one lot.
type Path struct {
	Path      string
	LotName   string
	Recursive bool
}

// ManagementPolicyAttributes is the one-row-per-lot policy record.
type ManagementPolicyAttributes struct {
	LotName         string
	DedicatedGB     float64
	OpportunisticGB float64
	MaxNumObjects   int64
	CreationTime    int64
	ExpirationTime  int64
	DeletionTime    int64
}

// LotUsage is the one-row-per-lot usage counter record.
type LotUsage struct {
	LotName                     string
	SelfGB                      float64
	ChildrenGB                  float64
	SelfObjects                 int64
	ChildrenObjects             int64
	SelfGBBeingWritten          float64
	ChildrenGBBeingWritten      float64
	SelfObjectsBeingWritten     int64
	ChildrenObjectsBeingWritten int64
}

// DefaultLotName is the reserved name of the bootstrap root lot.
const DefaultLotName = "default"

// TargetSchemaVersion is the schema version this code compiles against.
const TargetSchemaVersion = 1

// schemaDDL creates all six tables (five entity tables plus schema_versions)
// if they do not already exist. Mirrors the teacher's single `schema`
// constant executed in one db.Exec call.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS owners (
	lot_name TEXT PRIMARY KEY,
	owner TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS parents (
	lot_name TEXT NOT NULL,
	parent TEXT NOT NULL,
	PRIMARY KEY (lot_name, parent)
);
CREATE INDEX IF NOT EXISTS idx_parents_parent ON parents(parent);

CREATE TABLE IF NOT EXISTS paths (
	path TEXT PRIMARY KEY,
	lot_name TEXT NOT NULL,
	recursive INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_paths_lot_name ON paths(lot_name);

CREATE TABLE IF NOT EXISTS management_policy_attributes (
	lot_name TEXT PRIMARY KEY,
	dedicated_gb REAL NOT NULL DEFAULT 0,
	opportunistic_gb REAL NOT NULL DEFAULT 0,
	max_num_objects INTEGER NOT NULL DEFAULT -1,
	creation_time INTEGER NOT NULL DEFAULT 0,
	expiration_time INTEGER NOT NULL DEFAULT -1,
	deletion_time INTEGER NOT NULL DEFAULT -1
);

CREATE TABLE IF NOT EXISTS lot_usage (
	lot_name TEXT PRIMARY KEY,
	self_gb REAL NOT NULL DEFAULT 0,
	children_gb REAL NOT NULL DEFAULT 0,
	self_objects INTEGER NOT NULL DEFAULT 0,
	children_objects INTEGER NOT NULL DEFAULT 0,
	self_gb_being_written REAL NOT NULL DEFAULT 0,
	children_gb_being_written REAL NOT NULL DEFAULT 0,
	self_objects_being_written INTEGER NOT NULL DEFAULT 0,
	children_objects_being_written INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS schema_versions (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	version INTEGER NOT NULL
);
`
