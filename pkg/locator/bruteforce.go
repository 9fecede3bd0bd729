package locator

import "math"

// BruteForce is a PointLocator that scans every point on each query. It
// needs no construction work and is the reference the k-d tree is checked
// against.
type BruteForce struct {
	points  [][]float64
	scaling []float64
	dims    int
}

// NewBruteForce creates an empty BruteForce locator
func NewBruteForce() *BruteForce {
	return &BruteForce{}
}

// Build implements PointLocator
func (b *BruteForce) Build(points [][]float64, scaling []float64) error {
	b.points, b.scaling, b.dims = nil, nil, 0

	scaled, dims, err := scalePoints(points, scaling)
	if err != nil {
		return err
	}
	if len(scaled) == 0 {
		return nil
	}

	b.points = scaled
	b.dims = dims
	b.scaling = unitIfNil(scaling, dims)
	return nil
}

// Len returns the number of indexed points
func (b *BruteForce) Len() int { return len(b.points) }

// FindNearest implements PointLocator
func (b *BruteForce) FindNearest(query []float64) (Neighbor, error) {
	ns, err := b.FindKNearest(query, 1)
	if err != nil {
		return Neighbor{}, err
	}
	return ns[0], nil
}

// FindKNearest implements PointLocator
func (b *BruteForce) FindKNearest(query []float64, k int) ([]Neighbor, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	ns, err := b.all(query)
	if err != nil {
		return nil, err
	}
	return ns[:min(k, len(ns))], nil
}

// FindNearestWithinRadius implements PointLocator
func (b *BruteForce) FindNearestWithinRadius(query []float64, radius float64) ([]Neighbor, error) {
	if !(radius >= 0) {
		return nil, ErrInvalidRadius
	}
	q, err := b.prepare(query)
	if err != nil {
		return nil, err
	}

	r2 := radius * radius
	within := make([]Neighbor, 0)
	for i, p := range b.points {
		if d := squaredDistance(q, p); d <= r2 {
			within = append(within, Neighbor{Index: i, Distance: math.Sqrt(d)})
		}
	}
	sortNeighbors(within)
	return within, nil
}

// all returns every point ordered by distance to the query
func (b *BruteForce) all(query []float64) ([]Neighbor, error) {
	q, err := b.prepare(query)
	if err != nil {
		return nil, err
	}

	ns := make([]Neighbor, len(b.points))
	for i, p := range b.points {
		ns[i] = Neighbor{Index: i, Distance: math.Sqrt(squaredDistance(q, p))}
	}
	sortNeighbors(ns)
	return ns, nil
}

func (b *BruteForce) prepare(query []float64) ([]float64, error) {
	if len(b.points) == 0 {
		return nil, ErrNotBuilt
	}
	if len(query) != b.dims {
		return nil, &DimensionMismatchError{Expected: b.dims, Actual: len(query)}
	}
	if err := checkQuery(query); err != nil {
		return nil, err
	}
	return scale(query, b.scaling), nil
}
