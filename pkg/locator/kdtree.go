package locator

import (
	"container/heap"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// scaledPoint is a sample coordinate in scaled space together with its
// position in the original table
type scaledPoint struct {
	coords []float64
	index  int
}

// Compare implements the kdtree.Comparable interface
func (p scaledPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(scaledPoint)
	return p.coords[d] - q.coords[d]
}

// Dims returns the number of dimensions for the KD-tree
func (p scaledPoint) Dims() int { return len(p.coords) }

// Distance returns the squared Euclidean distance between two points
func (p scaledPoint) Distance(c kdtree.Comparable) float64 {
	return squaredDistance(p.coords, c.(scaledPoint).coords)
}

// scaledPoints is a collection of scaledPoint that satisfies kdtree.Interface
type scaledPoints []scaledPoint

func (p scaledPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p scaledPoints) Len() int                              { return len(p) }
func (p scaledPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method. The range is fully ordered
// on the splitting dimension (ties by table index) so that the same input
// always yields the same tree.
func (p scaledPoints) Pivot(d kdtree.Dim) int {
	sort.Sort(pointPlane{scaledPoints: p, Dim: d})
	return len(p) / 2
}

// pointPlane implements sort.Interface and kdtree.SortSlicer for scaledPoints
type pointPlane struct {
	scaledPoints
	kdtree.Dim
}

func (p pointPlane) Less(i, j int) bool {
	a, b := p.scaledPoints[i], p.scaledPoints[j]
	if a.coords[p.Dim] != b.coords[p.Dim] {
		return a.coords[p.Dim] < b.coords[p.Dim]
	}
	return a.index < b.index
}

func (p pointPlane) Slice(start, end int) kdtree.SortSlicer {
	return pointPlane{scaledPoints: p.scaledPoints[start:end], Dim: p.Dim}
}

func (p pointPlane) Swap(i, j int) {
	p.scaledPoints[i], p.scaledPoints[j] = p.scaledPoints[j], p.scaledPoints[i]
}

// KDTree is a PointLocator backed by a gonum k-d tree built over scaled
// coordinates
type KDTree struct {
	tree    *kdtree.Tree
	scaling []float64
	dims    int
}

// NewKDTree creates an empty KDTree. Build must be called before querying.
func NewKDTree() *KDTree {
	return &KDTree{}
}

// Build implements PointLocator. The points are copied; the caller keeps
// ownership of the passed slices.
func (t *KDTree) Build(points [][]float64, scaling []float64) error {
	t.tree, t.scaling, t.dims = nil, nil, 0

	scaled, dims, err := scalePoints(points, scaling)
	if err != nil {
		return err
	}
	if len(scaled) == 0 {
		return nil
	}

	pts := make(scaledPoints, len(scaled))
	for i, coords := range scaled {
		pts[i] = scaledPoint{coords: coords, index: i}
	}

	t.tree = kdtree.New(pts, false)
	t.dims = dims
	t.scaling = unitIfNil(scaling, dims)
	return nil
}

// Len returns the number of indexed points
func (t *KDTree) Len() int {
	if t.tree == nil {
		return 0
	}
	return t.tree.Len()
}

// FindNearest implements PointLocator
func (t *KDTree) FindNearest(query []float64) (Neighbor, error) {
	ns, err := t.FindKNearest(query, 1)
	if err != nil {
		return Neighbor{}, err
	}
	return ns[0], nil
}

// FindKNearest implements PointLocator. The result is ordered by ascending
// distance, ties by ascending table index, and holds min(k, Len()) entries.
func (t *KDTree) FindKNearest(query []float64, k int) ([]Neighbor, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	q, err := t.prepare(query)
	if err != nil {
		return nil, err
	}

	keeper := newIndexKeeper(min(k, t.Len()))
	t.tree.NearestSet(keeper, q)
	return keeper.neighbors(), nil
}

// FindNearestWithinRadius implements PointLocator. The radius is measured
// in scaled space and is inclusive.
func (t *KDTree) FindNearestWithinRadius(query []float64, radius float64) ([]Neighbor, error) {
	if !(radius >= 0) {
		return nil, ErrInvalidRadius
	}
	q, err := t.prepare(query)
	if err != nil {
		return nil, err
	}

	keeper := kdtree.NewDistKeeper(radius * radius)
	t.tree.NearestSet(keeper, q)

	ns := make([]Neighbor, 0, keeper.Len())
	for _, c := range keeper.Heap {
		if c.Comparable == nil {
			continue
		}
		ns = append(ns, Neighbor{Index: c.Comparable.(scaledPoint).index, Distance: math.Sqrt(c.Dist)})
	}
	sortNeighbors(ns)
	return ns, nil
}

func (t *KDTree) prepare(query []float64) (scaledPoint, error) {
	if t.tree == nil {
		return scaledPoint{}, ErrNotBuilt
	}
	if len(query) != t.dims {
		return scaledPoint{}, &DimensionMismatchError{Expected: t.dims, Actual: len(query)}
	}
	if err := checkQuery(query); err != nil {
		return scaledPoint{}, err
	}
	return scaledPoint{coords: scale(query, t.scaling), index: -1}, nil
}

func unitIfNil(scaling []float64, dims int) []float64 {
	if scaling != nil {
		return append([]float64(nil), scaling...)
	}
	unit := make([]float64, dims)
	for i := range unit {
		unit[i] = 1
	}
	return unit
}

// indexKeeper is a kdtree.Keeper retaining the n closest points. Unlike
// kdtree.NKeeper it orders equal distances by table index so that results
// do not depend on the traversal order of the tree.
type indexKeeper struct {
	items []kdtree.ComparableDist
	n     int
}

func newIndexKeeper(n int) *indexKeeper {
	k := &indexKeeper{items: make([]kdtree.ComparableDist, 1, n+1), n: n}
	k.items[0].Dist = math.Inf(1)
	return k
}

// Keep implements kdtree.Keeper. The sentinel at the top of the heap is
// displaced once n real points have been kept.
func (k *indexKeeper) Keep(c kdtree.ComparableDist) {
	if !k.improves(c) {
		return
	}
	if len(k.items) == k.n {
		k.items[0] = c
		heap.Fix(k, 0)
		return
	}
	heap.Push(k, c)
}

func (k *indexKeeper) improves(c kdtree.ComparableDist) bool {
	top := k.items[0]
	if top.Comparable == nil {
		return c.Dist <= top.Dist
	}
	if c.Dist != top.Dist {
		return c.Dist < top.Dist
	}
	return indexOf(c) < indexOf(top)
}

// Max implements kdtree.Keeper
func (k *indexKeeper) Max() kdtree.ComparableDist { return k.items[0] }

func (k *indexKeeper) Len() int { return len(k.items) }

// Less reports whether element i sits above element j in the max heap
func (k *indexKeeper) Less(i, j int) bool {
	a, b := k.items[i], k.items[j]
	switch {
	case a.Comparable == nil:
		return b.Comparable != nil
	case b.Comparable == nil:
		return false
	case a.Dist != b.Dist:
		return a.Dist > b.Dist
	default:
		return indexOf(a) > indexOf(b)
	}
}

func (k *indexKeeper) Swap(i, j int) { k.items[i], k.items[j] = k.items[j], k.items[i] }

func (k *indexKeeper) Push(x any) { k.items = append(k.items, x.(kdtree.ComparableDist)) }

func (k *indexKeeper) Pop() any {
	last := k.items[len(k.items)-1]
	k.items = k.items[:len(k.items)-1]
	return last
}

// neighbors converts the kept points, which NearestSet leaves in ascending
// order, into Neighbors with Euclidean distances
func (k *indexKeeper) neighbors() []Neighbor {
	ns := make([]Neighbor, 0, len(k.items))
	for _, c := range k.items {
		if c.Comparable == nil {
			continue
		}
		ns = append(ns, Neighbor{Index: indexOf(c), Distance: math.Sqrt(c.Dist)})
	}
	return ns
}

func indexOf(c kdtree.ComparableDist) int {
	return c.Comparable.(scaledPoint).index
}
