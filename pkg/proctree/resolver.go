package proctree

import "time"

// DefaultRootPID is the pid conventionally reserved for the scheduler or
// idle process, which is allowed to name itself as parent.
const DefaultRootPID = 0

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithRootPID designates the pid treated as the top of the tree.
func WithRootPID(pid int) ResolverOption {
	return func(r *Resolver) { r.rootPID = pid }
}

// Resolver answers family-tree queries against one Snapshot. The index is
// built once by NewResolver and never modified, so a Resolver is safe for
// concurrent use without locking.
type Resolver struct {
	snapshot *Snapshot
	rootPID  int
	children map[int][]int
	roots    []int
}

// NewResolver indexes snapshot. A record is linked under its parent only when
// the parent pid is present in the snapshot and differs from the record's
// own pid, and the record is not the designated root; every other record is
// a root.
func NewResolver(snapshot *Snapshot, opts ...ResolverOption) *Resolver {
	if snapshot == nil {
		snapshot = NewSnapshot(nil, time.Time{})
	}

	r := &Resolver{
		snapshot: snapshot,
		rootPID:  DefaultRootPID,
		children: make(map[int][]int),
	}
	for _, opt := range opts {
		opt(r)
	}

	for i, rec := range snapshot.records {
		// Later duplicates of a pid are ignored
		if snapshot.index[rec.PID] != i {
			continue
		}

		if !r.linked(rec) {
			r.roots = append(r.roots, rec.PID)
			continue
		}
		r.children[rec.ParentPID] = append(r.children[rec.ParentPID], rec.PID)
	}

	return r
}

// Snapshot returns the snapshot the resolver was built from
func (r *Resolver) Snapshot() *Snapshot {
	return r.snapshot
}

// RootPID returns the designated root pid
func (r *Resolver) RootPID() int {
	return r.rootPID
}

// Contains reports whether pid is part of the snapshot
func (r *Resolver) Contains(pid int) bool {
	return r.snapshot.Contains(pid)
}

// Children returns the direct children of pid in snapshot order. It returns
// an empty slice when pid has no children or is not in the snapshot.
func (r *Resolver) Children(pid int) []int {
	kids := r.children[pid]
	out := make([]int, len(kids))
	copy(out, kids)
	return out
}

// Descendants returns every pid reachable from pid through Children, in
// breadth-first order without duplicates. pid itself is never part of the
// result, even when a parent cycle leads back to it.
func (r *Resolver) Descendants(pid int) []int {
	out := []int{}
	if !r.snapshot.Contains(pid) {
		return out
	}

	visited := map[int]struct{}{pid: {}}
	queue := append([]int(nil), r.children[pid]...)

	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		if _, seen := visited[next]; seen {
			continue
		}
		visited[next] = struct{}{}
		out = append(out, next)

		queue = append(queue, r.children[next]...)
	}

	return out
}

// Roots returns, in snapshot order, every pid without a discoverable parent:
// the designated root, self-parented records and records whose parent is
// missing from the snapshot.
func (r *Resolver) Roots() []int {
	out := make([]int, len(r.roots))
	copy(out, r.roots)
	return out
}

// Parent returns the parent of pid when that parent is in the snapshot.
func (r *Resolver) Parent(pid int) (int, bool) {
	rec, ok := r.snapshot.Record(pid)
	if !ok || !r.linked(rec) {
		return 0, false
	}
	return rec.ParentPID, true
}

func (r *Resolver) linked(rec ProcessRecord) bool {
	return rec.PID != r.rootPID &&
		rec.PID != rec.ParentPID &&
		r.snapshot.Contains(rec.ParentPID)
}

// Ancestors walks parent links from pid, nearest first. The walk stops at a
// root or at the first pid it has already visited.
func (r *Resolver) Ancestors(pid int) []int {
	out := []int{}
	seen := map[int]struct{}{pid: {}}

	current := pid
	for {
		parent, ok := r.Parent(current)
		if !ok {
			break
		}
		if _, loop := seen[parent]; loop {
			break
		}
		seen[parent] = struct{}{}
		out = append(out, parent)
		current = parent
	}

	return out
}
