package mapping

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"

	"gazemap-go/internal/types"
)

var errDegenerate = errors.New("degenerate point configuration")

// Homography is a 3x3 projective transform stored row-major.
type Homography [9]float64

func (h Homography) Apply(p types.Point) (types.Point, bool) {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	if math.Abs(w) < 1e-12 {
		return types.Point{}, false
	}
	return types.Point{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}, true
}

// EstimateHomography solves for the transform taking src onto dst with the
// normalized direct linear transform. At least four correspondences are
// needed.
func EstimateHomography(src, dst []types.Point) (Homography, error) {
	if len(src) != len(dst) || len(src) < 4 {
		return Homography{}, errDegenerate
	}

	srcNorm, tSrc, err := normalize(src)
	if err != nil {
		return Homography{}, err
	}
	dstNorm, tDst, err := normalize(dst)
	if err != nil {
		return Homography{}, err
	}

	rows := 2 * len(src)
	a := mat.NewDense(rows, 9, nil)
	for i := range srcNorm {
		x, y := srcNorm[i].X, srcNorm[i].Y
		u, v := dstNorm[i].X, dstNorm[i].Y
		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return Homography{}, errDegenerate
	}
	var v mat.Dense
	svd.VTo(&v)
	values := svd.Values(nil)
	if len(values) >= 8 && values[7] < 1e-10*values[0] {
		return Homography{}, errDegenerate
	}

	hn := mat.NewDense(3, 3, nil)
	for i := 0; i < 9; i++ {
		hn.Set(i/3, i%3, v.At(i, 8))
	}

	// H = inv(tDst) * Hn * tSrc
	var tDstInv mat.Dense
	if err := tDstInv.Inverse(tDst); err != nil {
		return Homography{}, errDegenerate
	}
	var tmp, full mat.Dense
	tmp.Mul(hn, tSrc)
	full.Mul(&tDstInv, &tmp)

	scale := full.At(2, 2)
	if math.Abs(scale) < 1e-12 {
		return Homography{}, errDegenerate
	}
	var h Homography
	for i := 0; i < 9; i++ {
		h[i] = full.At(i/3, i%3) / scale
	}
	return h, nil
}

// normalize translates points to their centroid and scales them so the mean
// distance from the origin is sqrt(2).
func normalize(points []types.Point) ([]types.Point, *mat.Dense, error) {
	var cx, cy float64
	for _, p := range points {
		cx += p.X
		cy += p.Y
	}
	n := float64(len(points))
	cx /= n
	cy /= n

	var mean float64
	for _, p := range points {
		mean += math.Hypot(p.X-cx, p.Y-cy)
	}
	mean /= n
	if mean < 1e-12 {
		return nil, nil, errDegenerate
	}
	s := math.Sqrt2 / mean

	out := make([]types.Point, len(points))
	for i, p := range points {
		out[i] = types.Point{X: (p.X - cx) * s, Y: (p.Y - cy) * s}
	}
	t := mat.NewDense(3, 3, []float64{
		s, 0, -s * cx,
		0, s, -s * cy,
		0, 0, 1,
	})
	return out, t, nil
}
