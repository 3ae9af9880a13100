// Package lotrepo is the typed CRUD layer over lotstore's five per-lot tables. It
// knows the shape of each entity kind and the upsert/delete SQL for it, but
// nothing about graph invariants, path matching, or policy semantics — those
// belong to the layers built on top of it.
package lotrepo

import (
	"context"
	"database/sql"

	"github.com/pelicanplatform/lotman-go/internal/lotkind"
	"github.com/pelicanplatform/lotman-go/internal/lotstore"
)

// Repo is a thin typed wrapper around a single lotstore.Txn. Every method
// executes its statement or statements inside the caller's transaction;
// atomicity across several Repo calls is the caller's responsibility
// (spec.md §4.2).
type Repo struct {
	txn *lotstore.Txn
}

func New(txn *lotstore.Txn) *Repo {
	return &Repo{txn: txn}
}

func (r *Repo) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	stmt, err := r.txn.GetOrPrepare(ctx, query)
	if err != nil {
		return nil, wrap("failed to prepare statement", err)
	}
	res, err := stmt.ExecContext(ctx, args...)
	if err != nil {
		r.txn.DiscardStmt(stmt)
		return nil, wrap("failed to execute statement", err)
	}
	r.txn.PutStmt(query, stmt)
	return res, nil
}

func wrap(msg string, err error) error {
	return lotkind.Wrap(lotkind.StoreError, msg, err)
}

// WriteNew inserts the complete row set for a brand-new lot: one owner
// row, its parent edges (a self-loop for a root lot), zero or more path
// claims, and its policy attributes. It does not create a lot_usage row;
// usage starts at the implicit zero value and is only materialized once
// written to (mirrors the original's lazy usage-row creation).
func (r *Repo) WriteNew(ctx context.Context, owner lotstore.Owner, parents []string, paths []lotstore.Path, attrs lotstore.ManagementPolicyAttributes) error {
	if err := r.UpsertOwner(ctx, owner); err != nil {
		return err
	}
	if err := r.StoreNewParents(ctx, owner.LotName, parents); err != nil {
		return err
	}
	for _, p := range paths {
		if err := r.UpsertPath(ctx, p); err != nil {
			return err
		}
	}
	return r.UpsertPolicyAttributes(ctx, attrs)
}

// UpsertOwner inserts or replaces the owner row for a lot name.
func (r *Repo) UpsertOwner(ctx context.Context, o lotstore.Owner) error {
	_, err := r.exec(ctx, `
		INSERT INTO owners (lot_name, owner) VALUES (?, ?)
		ON CONFLICT(lot_name) DO UPDATE SET owner = excluded.owner`,
		o.LotName, o.Owner)
	return err
}

// GetOwner reads the owner row for a lot name.
func (r *Repo) GetOwner(ctx context.Context, lotName string) (lotstore.Owner, error) {
	stmt, err := r.txn.GetOrPrepare(ctx, "SELECT lot_name, owner FROM owners WHERE lot_name = ?")
	if err != nil {
		return lotstore.Owner{}, wrap("failed to prepare statement", err)
	}
	var o lotstore.Owner
	err = stmt.QueryRowContext(ctx, lotName).Scan(&o.LotName, &o.Owner)
	if err == sql.ErrNoRows {
		r.txn.PutStmt("SELECT lot_name, owner FROM owners WHERE lot_name = ?", stmt)
		return lotstore.Owner{}, lotkind.New(lotkind.NotFound, "no owner found for lot "+lotName)
	}
	if err != nil {
		r.txn.DiscardStmt(stmt)
		return lotstore.Owner{}, wrap("failed to read owner", err)
	}
	r.txn.PutStmt("SELECT lot_name, owner FROM owners WHERE lot_name = ?", stmt)
	return o, nil
}

// DeleteOwner removes the owner row for a lot name.
func (r *Repo) DeleteOwner(ctx context.Context, lotName string) error {
	_, err := r.exec(ctx, "DELETE FROM owners WHERE lot_name = ?", lotName)
	return err
}

// UpsertParent inserts or replaces one lot_name->parent edge.
func (r *Repo) UpsertParent(ctx context.Context, p lotstore.Parent) error {
	_, err := r.exec(ctx, `
		INSERT INTO parents (lot_name, parent) VALUES (?, ?)
		ON CONFLICT(lot_name, parent) DO NOTHING`,
		p.LotName, p.Parent)
	return err
}

// StoreNewParents inserts several parent edges for a lot in one call.
func (r *Repo) StoreNewParents(ctx context.Context, lotName string, parents []string) error {
	for _, parent := range parents {
		if err := r.UpsertParent(ctx, lotstore.Parent{LotName: lotName, Parent: parent}); err != nil {
			return err
		}
	}
	return nil
}

// RemoveParents deletes the given lot_name->parent edges. Passing an empty
// slice removes every parent edge the lot has.
func (r *Repo) RemoveParents(ctx context.Context, lotName string, parents []string) error {
	if len(parents) == 0 {
		_, err := r.exec(ctx, "DELETE FROM parents WHERE lot_name = ?", lotName)
		return err
	}
	for _, parent := range parents {
		if _, err := r.exec(ctx, "DELETE FROM parents WHERE lot_name = ? AND parent = ?", lotName, parent); err != nil {
			return err
		}
	}
	return nil
}

// GetParents returns the direct parents of a lot. The query has no ORDER
// BY, so the order is whatever SQLite returns.
func (r *Repo) GetParents(ctx context.Context, lotName string) ([]string, error) {
	return r.queryNames(ctx, "SELECT parent FROM parents WHERE lot_name = ?", lotName)
}

// GetChildren returns the direct children of a lot (the reverse edge). The
// query has no ORDER BY, so the order is whatever SQLite returns.
func (r *Repo) GetChildren(ctx context.Context, lotName string) ([]string, error) {
	return r.queryNames(ctx, "SELECT lot_name FROM parents WHERE parent = ? AND lot_name != parent", lotName)
}

func (r *Repo) queryNames(ctx context.Context, query string, arg string) ([]string, error) {
	stmt, err := r.txn.GetOrPrepare(ctx, query)
	if err != nil {
		return nil, wrap("failed to prepare statement", err)
	}
	rows, err := stmt.QueryContext(ctx, arg)
	if err != nil {
		r.txn.DiscardStmt(stmt)
		return nil, wrap("failed to query", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, wrap("failed to scan row", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("failed to iterate rows", err)
	}
	r.txn.PutStmt(query, stmt)
	return names, nil
}

// UpsertPath inserts or replaces one path claim.
func (r *Repo) UpsertPath(ctx context.Context, p lotstore.Path) error {
	_, err := r.exec(ctx, `
		INSERT INTO paths (path, lot_name, recursive) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET lot_name = excluded.lot_name, recursive = excluded.recursive`,
		p.Path, p.LotName, boolToInt(p.Recursive))
	return err
}

// StoreNewPaths inserts several path claims for a lot in one call.
func (r *Repo) StoreNewPaths(ctx context.Context, paths []lotstore.Path) error {
	for _, p := range paths {
		if err := r.UpsertPath(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// RemovePaths deletes the named path claims. Passing an empty slice removes
// every path claim the lot owns.
func (r *Repo) RemovePaths(ctx context.Context, lotName string, paths []string) error {
	if len(paths) == 0 {
		_, err := r.exec(ctx, "DELETE FROM paths WHERE lot_name = ?", lotName)
		return err
	}
	for _, p := range paths {
		if _, err := r.exec(ctx, "DELETE FROM paths WHERE lot_name = ? AND path = ?", lotName, p); err != nil {
			return err
		}
	}
	return nil
}

// GetPaths returns every path row claimed by a lot.
func (r *Repo) GetPaths(ctx context.Context, lotName string) ([]lotstore.Path, error) {
	stmt, err := r.txn.GetOrPrepare(ctx, "SELECT path, lot_name, recursive FROM paths WHERE lot_name = ?")
	if err != nil {
		return nil, wrap("failed to prepare statement", err)
	}
	rows, err := stmt.QueryContext(ctx, lotName)
	if err != nil {
		r.txn.DiscardStmt(stmt)
		return nil, wrap("failed to query paths", err)
	}
	defer rows.Close()

	var out []lotstore.Path
	for rows.Next() {
		var p lotstore.Path
		var recursive int
		if err := rows.Scan(&p.Path, &p.LotName, &recursive); err != nil {
			return nil, wrap("failed to scan path row", err)
		}
		p.Recursive = recursive != 0
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("failed to iterate path rows", err)
	}
	r.txn.PutStmt("SELECT path, lot_name, recursive FROM paths WHERE lot_name = ?", stmt)
	return out, nil
}

// AllPaths returns every path row in the database, used to hydrate the
// in-memory trie cache at startup (spec.md §4.3).
func (r *Repo) AllPaths(ctx context.Context) ([]lotstore.Path, error) {
	rows, err := r.txn.Conn().QueryContext(ctx, "SELECT path, lot_name, recursive FROM paths")
	if err != nil {
		return nil, wrap("failed to query all paths", err)
	}
	defer rows.Close()

	var out []lotstore.Path
	for rows.Next() {
		var p lotstore.Path
		var recursive int
		if err := rows.Scan(&p.Path, &p.LotName, &recursive); err != nil {
			return nil, wrap("failed to scan path row", err)
		}
		p.Recursive = recursive != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertPolicyAttributes inserts or replaces the policy row for a lot.
func (r *Repo) UpsertPolicyAttributes(ctx context.Context, a lotstore.ManagementPolicyAttributes) error {
	_, err := r.exec(ctx, `
		INSERT INTO management_policy_attributes
			(lot_name, dedicated_gb, opportunistic_gb, max_num_objects, creation_time, expiration_time, deletion_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(lot_name) DO UPDATE SET
			dedicated_gb = excluded.dedicated_gb,
			opportunistic_gb = excluded.opportunistic_gb,
			max_num_objects = excluded.max_num_objects,
			creation_time = excluded.creation_time,
			expiration_time = excluded.expiration_time,
			deletion_time = excluded.deletion_time`,
		a.LotName, a.DedicatedGB, a.OpportunisticGB, a.MaxNumObjects, a.CreationTime, a.ExpirationTime, a.DeletionTime)
	return err
}

// GetPolicyAttributes reads the policy row for a lot.
func (r *Repo) GetPolicyAttributes(ctx context.Context, lotName string) (lotstore.ManagementPolicyAttributes, error) {
	const query = `SELECT lot_name, dedicated_gb, opportunistic_gb, max_num_objects, creation_time, expiration_time, deletion_time
		FROM management_policy_attributes WHERE lot_name = ?`
	stmt, err := r.txn.GetOrPrepare(ctx, query)
	if err != nil {
		return lotstore.ManagementPolicyAttributes{}, wrap("failed to prepare statement", err)
	}
	var a lotstore.ManagementPolicyAttributes
	err = stmt.QueryRowContext(ctx, lotName).Scan(
		&a.LotName, &a.DedicatedGB, &a.OpportunisticGB, &a.MaxNumObjects, &a.CreationTime, &a.ExpirationTime, &a.DeletionTime)
	if err == sql.ErrNoRows {
		r.txn.PutStmt(query, stmt)
		return lotstore.ManagementPolicyAttributes{}, lotkind.New(lotkind.NotFound, "no policy attributes found for lot "+lotName)
	}
	if err != nil {
		r.txn.DiscardStmt(stmt)
		return lotstore.ManagementPolicyAttributes{}, wrap("failed to read policy attributes", err)
	}
	r.txn.PutStmt(query, stmt)
	return a, nil
}

// DeletePolicyAttributes removes the policy row for a lot.
func (r *Repo) DeletePolicyAttributes(ctx context.Context, lotName string) error {
	_, err := r.exec(ctx, "DELETE FROM management_policy_attributes WHERE lot_name = ?", lotName)
	return err
}

// GetUsage reads the usage row for a lot. A missing row is returned as the
// implicit all-zero record rather than NotFound, since usage is lazily
// materialized on first write (spec.md §4.5).
func (r *Repo) GetUsage(ctx context.Context, lotName string) (lotstore.LotUsage, error) {
	const query = `SELECT lot_name, self_gb, children_gb, self_objects, children_objects,
		self_gb_being_written, children_gb_being_written, self_objects_being_written, children_objects_being_written
		FROM lot_usage WHERE lot_name = ?`
	stmt, err := r.txn.GetOrPrepare(ctx, query)
	if err != nil {
		return lotstore.LotUsage{}, wrap("failed to prepare statement", err)
	}
	var u lotstore.LotUsage
	err = stmt.QueryRowContext(ctx, lotName).Scan(
		&u.LotName, &u.SelfGB, &u.ChildrenGB, &u.SelfObjects, &u.ChildrenObjects,
		&u.SelfGBBeingWritten, &u.ChildrenGBBeingWritten, &u.SelfObjectsBeingWritten, &u.ChildrenObjectsBeingWritten)
	if err == sql.ErrNoRows {
		r.txn.PutStmt(query, stmt)
		return lotstore.LotUsage{LotName: lotName}, nil
	}
	if err != nil {
		r.txn.DiscardStmt(stmt)
		return lotstore.LotUsage{}, wrap("failed to read usage", err)
	}
	r.txn.PutStmt(query, stmt)
	return u, nil
}

// UpsertUsage inserts or replaces the full usage row for a lot.
func (r *Repo) UpsertUsage(ctx context.Context, u lotstore.LotUsage) error {
	_, err := r.exec(ctx, `
		INSERT INTO lot_usage
			(lot_name, self_gb, children_gb, self_objects, children_objects,
			 self_gb_being_written, children_gb_being_written, self_objects_being_written, children_objects_being_written)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(lot_name) DO UPDATE SET
			self_gb = excluded.self_gb,
			children_gb = excluded.children_gb,
			self_objects = excluded.self_objects,
			children_objects = excluded.children_objects,
			self_gb_being_written = excluded.self_gb_being_written,
			children_gb_being_written = excluded.children_gb_being_written,
			self_objects_being_written = excluded.self_objects_being_written,
			children_objects_being_written = excluded.children_objects_being_written`,
		u.LotName, u.SelfGB, u.ChildrenGB, u.SelfObjects, u.ChildrenObjects,
		u.SelfGBBeingWritten, u.ChildrenGBBeingWritten, u.SelfObjectsBeingWritten, u.ChildrenObjectsBeingWritten)
	return err
}

// UsageDelta is a set of per-field increments applied atomically to a
// lot's children_* usage counters (UsageEngine's ancestor propagation,
// spec.md §4.5). Any row missing at lotName is created starting from zero.
type UsageDelta struct {
	ChildrenGB                  float64
	ChildrenObjects             int64
	ChildrenGBBeingWritten      float64
	ChildrenObjectsBeingWritten int64
}

// AccumulateChildrenUsage adds delta onto the children_* counters of
// lotName, creating the usage row at zero if it doesn't yet exist.
func (r *Repo) AccumulateChildrenUsage(ctx context.Context, lotName string, delta UsageDelta) error {
	_, err := r.exec(ctx, `
		INSERT INTO lot_usage (lot_name, children_gb, children_objects, children_gb_being_written, children_objects_being_written)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(lot_name) DO UPDATE SET
			children_gb = children_gb + excluded.children_gb,
			children_objects = children_objects + excluded.children_objects,
			children_gb_being_written = children_gb_being_written + excluded.children_gb_being_written,
			children_objects_being_written = children_objects_being_written + excluded.children_objects_being_written`,
		lotName, delta.ChildrenGB, delta.ChildrenObjects, delta.ChildrenGBBeingWritten, delta.ChildrenObjectsBeingWritten)
	return err
}

// DeleteUsage removes the usage row for a lot.
func (r *Repo) DeleteUsage(ctx context.Context, lotName string) error {
	_, err := r.exec(ctx, "DELETE FROM lot_usage WHERE lot_name = ?", lotName)
	return err
}

// DeleteLot removes every row belonging to a single lot name across all
// five entity tables. It does not touch other lots' parent edges that
// reference this lot as a parent — callers must reassign or cascade those
// first (spec.md §4.4's orphan-handling invariant).
func (r *Repo) DeleteLot(ctx context.Context, lotName string) error {
	if err := r.DeleteOwner(ctx, lotName); err != nil {
		return err
	}
	if err := r.RemoveParents(ctx, lotName, nil); err != nil {
		return err
	}
	if err := r.RemovePaths(ctx, lotName, nil); err != nil {
		return err
	}
	if err := r.DeletePolicyAttributes(ctx, lotName); err != nil {
		return err
	}
	return r.DeleteUsage(ctx, lotName)
}

// ListAllLots returns every distinct lot name known via the owners table,
// the one table every lot is guaranteed to have a row in.
func (r *Repo) ListAllLots(ctx context.Context) ([]string, error) {
	rows, err := r.txn.Conn().QueryContext(ctx, "SELECT lot_name FROM owners ORDER BY lot_name")
	if err != nil {
		return nil, wrap("failed to list lots", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, wrap("failed to scan lot name", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// LotExists reports whether an owner row exists for the given lot name.
func (r *Repo) LotExists(ctx context.Context, lotName string) (bool, error) {
	var count int
	err := r.txn.Conn().QueryRowContext(ctx, "SELECT COUNT(*) FROM owners WHERE lot_name = ?", lotName).Scan(&count)
	if err != nil {
		return false, wrap("failed to check lot existence", err)
	}
	return count > 0, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
