// Package spatial provides a region quadtree for neighbour queries over
// world coordinates.
package spatial

import (
	"errors"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/spatial/r2"
)

var (
	// ErrOutOfBounds is returned when a point lies outside the tree bounds.
	ErrOutOfBounds = errors.New("point outside quadtree bounds")
	// ErrDuplicateID is returned when inserting an id that is already present.
	ErrDuplicateID = errors.New("id already in quadtree")
)

type point struct {
	id  uint64
	pos r2.Vec
}

// node is a quadtree region. Only leaves hold points.
type node struct {
	bounds   r2.Box
	depth    int
	count    int // points in this subtree
	points   []point
	children *[4]node
}

// Quadtree is a region quadtree keyed by entity id.
//
// A leaf that exceeds the node capacity splits into four quadrants unless it
// is at the maximum depth, in which case it keeps every point (this is how
// duplicate positions are tolerated). Points on a split line belong to the
// lower-x / lower-y quadrant.
type Quadtree struct {
	root     node
	capacity int
	maxDepth int
	where    map[uint64]r2.Vec
}

// New creates an empty quadtree covering bounds.
func New(bounds r2.Box, capacity, maxDepth int) *Quadtree {
	if capacity < 1 {
		capacity = 1
	}
	if maxDepth < 0 {
		maxDepth = 0
	}
	return &Quadtree{
		root:     node{bounds: bounds},
		capacity: capacity,
		maxDepth: maxDepth,
		where:    make(map[uint64]r2.Vec),
	}
}

// Bounds returns the region covered by the tree.
func (q *Quadtree) Bounds() r2.Box { return q.root.bounds }

// Len returns the number of indexed ids.
func (q *Quadtree) Len() int { return len(q.where) }

// Contains reports whether id is indexed.
func (q *Quadtree) Contains(id uint64) bool {
	_, ok := q.where[id]
	return ok
}

// Position returns the indexed position of id.
func (q *Quadtree) Position(id uint64) (r2.Vec, bool) {
	p, ok := q.where[id]
	return p, ok
}

// IDs returns every indexed id in ascending order.
func (q *Quadtree) IDs() []uint64 {
	ids := make([]uint64, 0, len(q.where))
	for id := range q.where {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Clear removes all points, keeping the bounds.
func (q *Quadtree) Clear() {
	q.root = node{bounds: q.root.bounds}
	clear(q.where)
}

// Reset clears the tree and changes its bounds.
func (q *Quadtree) Reset(bounds r2.Box) {
	q.root = node{bounds: bounds}
	clear(q.where)
}

// Insert adds id at pos.
func (q *Quadtree) Insert(id uint64, pos r2.Vec) error {
	if _, ok := q.where[id]; ok {
		return fmt.Errorf("insert %d: %w", id, ErrDuplicateID)
	}
	if !boxContains(q.root.bounds, pos) {
		return fmt.Errorf("insert %d at (%g, %g): %w", id, pos.X, pos.Y, ErrOutOfBounds)
	}
	q.where[id] = pos
	q.insert(&q.root, point{id: id, pos: pos})
	return nil
}

// Remove deletes id. It reports whether id was present.
func (q *Quadtree) Remove(id uint64) bool {
	pos, ok := q.where[id]
	if !ok {
		return false
	}
	delete(q.where, id)
	q.remove(&q.root, id, pos)
	return true
}

// Update moves id to pos, inserting it when absent. On error the previous
// entry is left untouched.
func (q *Quadtree) Update(id uint64, pos r2.Vec) error {
	if !boxContains(q.root.bounds, pos) {
		return fmt.Errorf("update %d at (%g, %g): %w", id, pos.X, pos.Y, ErrOutOfBounds)
	}
	if old, ok := q.where[id]; ok {
		if old == pos {
			return nil
		}
		q.Remove(id)
	}
	return q.Insert(id, pos)
}

// QueryRadius returns the ids within radius of center (inclusive), in
// ascending order.
func (q *Quadtree) QueryRadius(center r2.Vec, radius float64) []uint64 {
	return q.QueryRadiusInto(nil, center, radius)
}

// QueryRadiusInto is QueryRadius appending into dst[:0].
func (q *Quadtree) QueryRadiusInto(dst []uint64, center r2.Vec, radius float64) []uint64 {
	dst = dst[:0]
	if radius < 0 {
		return dst
	}
	dst = q.root.queryRadius(dst, center, radius*radius)
	slices.Sort(dst)
	return dst
}

// QueryRect returns the ids inside box (inclusive), in ascending order.
func (q *Quadtree) QueryRect(box r2.Box) []uint64 {
	var dst []uint64
	dst = q.root.queryRect(dst, box)
	slices.Sort(dst)
	return dst
}

// Depth returns the depth of the deepest node.
func (q *Quadtree) Depth() int { return q.root.maxDepth() }

func (q *Quadtree) insert(n *node, p point) {
	for {
		n.count++
		if n.children == nil {
			n.points = append(n.points, p)
			if len(n.points) > q.capacity && n.depth < q.maxDepth {
				q.split(n)
			}
			return
		}
		n = &n.children[quadrant(n.bounds, p.pos)]
	}
}

func (q *Quadtree) split(n *node) {
	mid := center(n.bounds)
	lo, hi := n.bounds.Min, n.bounds.Max
	n.children = &[4]node{
		{bounds: r2.Box{Min: lo, Max: mid}, depth: n.depth + 1},
		{bounds: r2.Box{Min: r2.Vec{X: mid.X, Y: lo.Y}, Max: r2.Vec{X: hi.X, Y: mid.Y}}, depth: n.depth + 1},
		{bounds: r2.Box{Min: r2.Vec{X: lo.X, Y: mid.Y}, Max: r2.Vec{X: mid.X, Y: hi.Y}}, depth: n.depth + 1},
		{bounds: r2.Box{Min: mid, Max: hi}, depth: n.depth + 1},
	}
	pts := n.points
	n.points = nil
	n.count -= len(pts)
	for _, p := range pts {
		q.insert(n, p)
	}
}

func (q *Quadtree) remove(n *node, id uint64, pos r2.Vec) bool {
	if n.children == nil {
		i := slices.IndexFunc(n.points, func(p point) bool { return p.id == id })
		if i < 0 {
			return false
		}
		n.points = slices.Delete(n.points, i, i+1)
		n.count--
		return true
	}
	if !q.remove(&n.children[quadrant(n.bounds, pos)], id, pos) {
		return false
	}
	n.count--
	if n.count <= q.capacity {
		n.points = n.collect(make([]point, 0, n.count))
		n.children = nil
	}
	return true
}

func (n *node) collect(dst []point) []point {
	if n.children == nil {
		return append(dst, n.points...)
	}
	for i := range n.children {
		dst = n.children[i].collect(dst)
	}
	return dst
}

func (n *node) queryRadius(dst []uint64, c r2.Vec, r2sq float64) []uint64 {
	if n.count == 0 || boxDistSq(n.bounds, c) > r2sq {
		return dst
	}
	if n.children == nil {
		for _, p := range n.points {
			if r2.Norm2(r2.Sub(p.pos, c)) <= r2sq {
				dst = append(dst, p.id)
			}
		}
		return dst
	}
	for i := range n.children {
		dst = n.children[i].queryRadius(dst, c, r2sq)
	}
	return dst
}

func (n *node) queryRect(dst []uint64, box r2.Box) []uint64 {
	if n.count == 0 || !boxesIntersect(n.bounds, box) {
		return dst
	}
	if n.children == nil {
		for _, p := range n.points {
			if boxContains(box, p.pos) {
				dst = append(dst, p.id)
			}
		}
		return dst
	}
	for i := range n.children {
		dst = n.children[i].queryRect(dst, box)
	}
	return dst
}

func (n *node) maxDepth() int {
	if n.children == nil {
		return n.depth
	}
	d := n.depth
	for i := range n.children {
		d = max(d, n.children[i].maxDepth())
	}
	return d
}

// quadrant returns the child index for p. Points on the split line go to
// the lower side.
func quadrant(b r2.Box, p r2.Vec) int {
	mid := center(b)
	i := 0
	if p.X > mid.X {
		i |= 1
	}
	if p.Y > mid.Y {
		i |= 2
	}
	return i
}

func center(b r2.Box) r2.Vec {
	return r2.Vec{X: (b.Min.X + b.Max.X) / 2, Y: (b.Min.Y + b.Max.Y) / 2}
}

func boxContains(b r2.Box, p r2.Vec) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X && p.Y >= b.Min.Y && p.Y <= b.Max.Y
}

func boxesIntersect(a, b r2.Box) bool {
	return a.Min.X <= b.Max.X && b.Min.X <= a.Max.X && a.Min.Y <= b.Max.Y && b.Min.Y <= a.Max.Y
}

// boxDistSq is the squared distance from p to the nearest point of b.
func boxDistSq(b r2.Box, p r2.Vec) float64 {
	dx := max(b.Min.X-p.X, 0, p.X-b.Max.X)
	dy := max(b.Min.Y-p.Y, 0, p.Y-b.Max.Y)
	return dx*dx + dy*dy
}
