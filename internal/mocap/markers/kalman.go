package markers

import "gonum.org/v1/gonum/mat"

// Noise parameters for the per-marker point filter. One tick is one
// time step, so the values are per-tick variances.
const (
	processNoisePos  = 1e-2 // position process noise (σ², px²)
	processNoiseVel  = 1e-1 // velocity process noise (σ², px²/tick²)
	measurementNoise = 1.0  // measurement noise (σ², px²)
	initialPosVar    = 10.0 // initial position uncertainty
	initialVelVar    = 1.0  // initial velocity uncertainty
)

// PointFilter is a constant-velocity Kalman filter over a single 2D pixel
// position with state [x, y, vx, vy]. Predict advances one tick; Correct
// folds a blob measurement back into the state. The filter state persists
// across ticks without a measurement, coasting on prediction alone.
type PointFilter struct {
	x *mat.VecDense // state estimate [x, y, vx, vy]
	p *mat.Dense    // state covariance (4×4)
	f *mat.Dense    // state transition (constant velocity, dt = 1)
	q *mat.Dense    // process noise
	h *mat.Dense    // measurement model (position only)
	r *mat.Dense    // measurement noise
}

// NewPointFilter creates a filter seeded at the given pixel position with
// zero initial velocity.
func NewPointFilter(x, y float64) *PointFilter {
	return &PointFilter{
		x: mat.NewVecDense(4, []float64{x, y, 0, 0}),
		p: mat.NewDense(4, 4, []float64{
			initialPosVar, 0, 0, 0,
			0, initialPosVar, 0, 0,
			0, 0, initialVelVar, 0,
			0, 0, 0, initialVelVar,
		}),
		f: mat.NewDense(4, 4, []float64{
			1, 0, 1, 0,
			0, 1, 0, 1,
			0, 0, 1, 0,
			0, 0, 0, 1,
		}),
		q: mat.NewDense(4, 4, []float64{
			processNoisePos, 0, 0, 0,
			0, processNoisePos, 0, 0,
			0, 0, processNoiseVel, 0,
			0, 0, 0, processNoiseVel,
		}),
		h: mat.NewDense(2, 4, []float64{
			1, 0, 0, 0,
			0, 1, 0, 0,
		}),
		r: mat.NewDense(2, 2, []float64{
			measurementNoise, 0,
			0, measurementNoise,
		}),
	}
}

// Predict advances the state one tick under the constant-velocity model and
// returns the predicted position.
func (k *PointFilter) Predict() (x, y float64) {
	// x' = F x
	var xn mat.VecDense
	xn.MulVec(k.f, k.x)
	k.x.CopyVec(&xn)

	// P' = F P Fᵀ + Q
	var fp, fpf mat.Dense
	fp.Mul(k.f, k.p)
	fpf.Mul(&fp, k.f.T())
	fpf.Add(&fpf, k.q)
	k.p.Copy(&fpf)

	return k.x.AtVec(0), k.x.AtVec(1)
}

// Correct folds the measured position into the state and returns the
// corrected position. A singular innovation covariance leaves the state
// untouched.
func (k *PointFilter) Correct(mx, my float64) (x, y float64) {
	z := mat.NewVecDense(2, []float64{mx, my})

	// Innovation y = z − H x
	var hx, innov mat.VecDense
	hx.MulVec(k.h, k.x)
	innov.SubVec(z, &hx)

	// S = H P Hᵀ + R
	var hp, s mat.Dense
	hp.Mul(k.h, k.p)
	s.Mul(&hp, k.h.T())
	s.Add(&s, k.r)

	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		return k.x.AtVec(0), k.x.AtVec(1)
	}

	// K = P Hᵀ S⁻¹
	var pht, gain mat.Dense
	pht.Mul(k.p, k.h.T())
	gain.Mul(&pht, &sInv)

	// x = x + K y
	var ky mat.VecDense
	ky.MulVec(&gain, &innov)
	k.x.AddVec(k.x, &ky)

	// P = (I − K H) P
	var kh, ikh, pn mat.Dense
	kh.Mul(&gain, k.h)
	ikh.Sub(eye(4), &kh)
	pn.Mul(&ikh, k.p)
	k.p.Copy(&pn)

	return k.x.AtVec(0), k.x.AtVec(1)
}

// State returns the current estimate as (x, y, vx, vy).
func (k *PointFilter) State() (x, y, vx, vy float64) {
	return k.x.AtVec(0), k.x.AtVec(1), k.x.AtVec(2), k.x.AtVec(3)
}

func eye(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}
