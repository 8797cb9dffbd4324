package hgt

import "math"

// The cell is split into two triangles along the diagonal from (x0, y0) to
// (x0+1, y0+1). cellEdges lists the edges of that triangulation by point
// index.
var cellEdges = [...][2]int{{3, 2}, {2, 1}, {1, 0}, {0, 3}, {3, 1}}

const (
	gradientMaxIterations = 1000
	gradientTolerance     = 1e-14
)

// gradients estimates the gradient at each point of n by minimizing the
// curvature of the interpolant along the triangulation edges (Nielson's
// method), iterating until the estimates settle.
func (n neighborhood) gradients() [4][2]float64 {
	var g [4][2]float64
	for iter := 0; iter < gradientMaxIterations; iter++ {
		maxChange := 0.0
		for i := range n.V {
			var q00, q01, q11, s0, s1 float64
			for _, edge := range cellEdges {
				var j int
				switch i {
				case edge[0]:
					j = edge[1]
				case edge[1]:
					j = edge[0]
				default:
					continue
				}
				ex, ey := n.X[j]-n.X[i], n.Y[j]-n.Y[i]
				l := math.Hypot(ex, ey)
				l3 := l * l * l
				df := -ex*g[j][0] - ey*g[j][1]
				q00 += 4 * ex * ex / l3
				q01 += 4 * ex * ey / l3
				q11 += 4 * ey * ey / l3
				r := 6*(n.V[i]-n.V[j]) - 2*df
				s0 += r * ex / l3
				s1 += r * ey / l3
			}
			det := q00*q11 - q01*q01
			r0 := (q11*s0 - q01*s1) / det
			r1 := (-q01*s0 + q00*s1) / det
			change := max(math.Abs(g[i][0]+r0), math.Abs(g[i][1]+r1)) / max(1, math.Abs(r0), math.Abs(r1))
			g[i] = [2]float64{-r0, -r1}
			maxChange = max(maxChange, change)
		}
		if maxChange < gradientTolerance {
			break
		}
	}
	return g
}

// interpolateCubic interpolates with a Clough-Tocher cubic over the two
// triangles of n. The surface passes through the four samples, is exact for
// planes and is C1 across the diagonal.
func interpolateCubic(n neighborhood, x, y float64) float64 {
	g := n.gradients()

	// The triangle holding x, y, the triangle across the diagonal, and the
	// index of the diagonal's opposite vertex in the first.
	tri, other, k := [3]int{3, 2, 1}, [3]int{3, 1, 0}, 1
	if x-n.X[3] < y-n.Y[3] {
		tri, other, k = [3]int{3, 1, 0}, [3]int{3, 2, 1}, 2
	}

	var t triangle
	for i, p := range tri {
		t.x[i], t.y[i] = n.X[p], n.Y[p]
		t.f[i] = n.V[p]
		t.df[i] = g[p]
	}

	// Edges on the cell boundary have no neighbor and use the centroid
	// direction.
	ng := [3]float64{-0.5, -0.5, -0.5}
	var cx, cy float64
	for _, p := range other {
		cx += n.X[p] / 3
		cy += n.Y[p] / 3
	}
	c := t.barycentric(cx, cy)
	switch k {
	case 0:
		ng[0] = (2*c[2] + c[1] - 1) / (2 - 3*c[2] - 3*c[1])
	case 1:
		ng[1] = (2*c[0] + c[2] - 1) / (2 - 3*c[0] - 3*c[2])
	case 2:
		ng[2] = (2*c[1] + c[0] - 1) / (2 - 3*c[1] - 3*c[0])
	}

	return t.cloughTocher(ng, t.barycentric(x, y))
}

type triangle struct {
	x, y [3]float64
	f    [3]float64
	df   [3][2]float64
}

func (t *triangle) barycentric(x, y float64) [3]float64 {
	det := (t.y[1]-t.y[2])*(t.x[0]-t.x[2]) + (t.x[2]-t.x[1])*(t.y[0]-t.y[2])
	l1 := ((t.y[1]-t.y[2])*(x-t.x[2]) + (t.x[2]-t.x[1])*(y-t.y[2])) / det
	l2 := ((t.y[2]-t.y[0])*(x-t.x[2]) + (t.x[0]-t.x[2])*(y-t.y[2])) / det
	return [3]float64{l1, l2, 1 - l1 - l2}
}

// cloughTocher evaluates the cubic Bézier patch of t at barycentric
// coordinates b. ng holds, per edge opposite each vertex, the direction
// used to make the cross-boundary derivative linear.
func (t *triangle) cloughTocher(ng, b [3]float64) float64 {
	e12x, e12y := t.x[1]-t.x[0], t.y[1]-t.y[0]
	e23x, e23y := t.x[2]-t.x[1], t.y[2]-t.y[1]
	e31x, e31y := t.x[0]-t.x[2], t.y[0]-t.y[2]

	df12 := t.df[0][0]*e12x + t.df[0][1]*e12y
	df21 := -(t.df[1][0]*e12x + t.df[1][1]*e12y)
	df23 := t.df[1][0]*e23x + t.df[1][1]*e23y
	df32 := -(t.df[2][0]*e23x + t.df[2][1]*e23y)
	df31 := t.df[2][0]*e31x + t.df[2][1]*e31y
	df13 := -(t.df[0][0]*e31x + t.df[0][1]*e31y)

	c3000 := t.f[0]
	c2100 := (df12 + 3*c3000) / 3
	c2010 := (df13 + 3*c3000) / 3
	c0300 := t.f[1]
	c1200 := (df21 + 3*c0300) / 3
	c0210 := (df23 + 3*c0300) / 3
	c0030 := t.f[2]
	c1020 := (df31 + 3*c0030) / 3
	c0120 := (df32 + 3*c0030) / 3

	c2001 := (c2100 + c2010 + c3000) / 3
	c0201 := (c1200 + c0300 + c0210) / 3
	c0021 := (c1020 + c0120 + c0030) / 3

	c0111 := (ng[0]*(-c0300+3*c0210-3*c0120+c0030) + (-c0300 + 2*c0210 - c0120 + c0021 + c0201)) / 2
	c1011 := (ng[1]*(-c0030+3*c1020-3*c2010+c3000) + (-c0030 + 2*c1020 - c2010 + c2001 + c0021)) / 2
	c1101 := (ng[2]*(-c3000+3*c2100-3*c1200+c0300) + (-c3000 + 2*c2100 - c1200 + c2001 + c0201)) / 2

	c1002 := (c1101 + c1011 + c2001) / 3
	c0102 := (c1101 + c0111 + c0201) / 3
	c0012 := (c1011 + c0111 + c0021) / 3

	c0003 := (c1002 + c0102 + c0012) / 3

	// Barycentric coordinates in the sub-triangle around the centroid.
	m := min(b[0], b[1], b[2])
	b1, b2, b3, b4 := b[0]-m, b[1]-m, b[2]-m, 3*m

	return b1*b1*b1*c3000 + 3*b1*b1*b2*c2100 + 3*b1*b1*b3*c2010 +
		3*b1*b1*b4*c2001 + 3*b1*b2*b2*c1200 +
		6*b1*b2*b4*c1101 + 3*b1*b3*b3*c1020 + 6*b1*b3*b4*c1011 +
		3*b1*b4*b4*c1002 + b2*b2*b2*c0300 + 3*b2*b2*b3*c0210 +
		3*b2*b2*b4*c0201 + 3*b2*b3*b3*c0120 + 6*b2*b3*b4*c0111 +
		3*b2*b4*b4*c0102 + b3*b3*b3*c0030 + 3*b3*b3*b4*c0021 +
		3*b3*b4*b4*c0012 + b4*b4*b4*c0003
}
