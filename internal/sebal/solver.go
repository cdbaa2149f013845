package sebal

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/chrissnell/sebal/internal/meteo"
	"github.com/chrissnell/sebal/internal/raster"
)

const (
	vonKarman      = 0.41
	gravity        = 9.81
	airHeatCap     = 1004.0 // cp, J kg⁻¹ K⁻¹
	z1             = 0.1
	z2             = 2.0
	blendingHeight = 200.0
)

// Calibration is one dT = a*LST + b fit between the endmembers.
type Calibration struct {
	Iteration int     `json:"iteration" msgpack:"iteration"`
	A         float64 `json:"a" msgpack:"a"`
	B         float64 `json:"b" msgpack:"b"`
	RahCold   float64 `json:"rah_cold" msgpack:"rah_cold"`
	RahHot    float64 `json:"rah_hot" msgpack:"rah_hot"`
	HCold     float64 `json:"h_cold" msgpack:"h_cold"`
	HHot      float64 `json:"h_hot" msgpack:"h_hot"`
}

// finiteOrZero returns c with every non-finite value replaced by zero, so a
// degenerate fit still encodes as JSON.
func (c Calibration) finiteOrZero() Calibration {
	for _, v := range []*float64{&c.A, &c.B, &c.RahCold, &c.RahHot, &c.HCold, &c.HHot} {
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			*v = 0
		}
	}
	return c
}

func (c Calibration) finite() bool {
	for _, v := range []float64{c.A, c.B, c.RahCold, c.RahHot} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// SensibleHeat is the converged sensible heat flux field.
type SensibleHeat struct {
	H     raster.Layer // W/m²
	DT    raster.Layer // K, near-surface temperature difference
	Rah   raster.Layer // s/m, aerodynamic resistance to heat transport
	Ustar raster.Layer // m/s, friction velocity

	// Coeffs has one calibration per stability iteration; Final is the
	// calibration applied to the returned H.
	Coeffs []Calibration
	Final  Calibration

	// Degenerate is set when the calibration could not be computed and
	// every pixel is no data.
	Degenerate bool
}

func airDensity(t float64) float64 {
	return -0.0046*t + 2.5538
}

// frictionVelocity returns u* at a surface of roughness z0m, corrected by
// the momentum stability term at the blending height.
func frictionVelocity(u200, z0m, psiM200 float64) float64 {
	return vonKarman * u200 / (math.Log(blendingHeight/z0m) - psiM200)
}

func aerodynamicResistance(ustar, psiH2, psiH01 float64) float64 {
	return (math.Log(z2/z1) - psiH2 + psiH01) / (ustar * vonKarman)
}

func sensibleHeat(lst, dt, rah float64) float64 {
	return airDensity(lst) * airHeatCap * dt / rah
}

// stability returns ψm(200), ψh(2) and ψh(0.1) for the Monin-Obukhov length
// implied by lst, h and ustar. Neutral (all zero) when H is zero or the
// length is not finite.
func stability(lst, h, ustar float64) (psiM200, psiH2, psiH01 float64) {
	if h == 0 {
		return 0, 0, 0
	}
	l := -airDensity(lst) * airHeatCap * math.Pow(ustar, 3) * lst / (vonKarman * gravity * h)
	if math.IsNaN(l) || math.IsInf(l, 0) || l == 0 {
		return 0, 0, 0
	}

	if l > 0 {
		return -5 * blendingHeight / l, -5 * z2 / l, -5 * z1 / l
	}

	x := func(z float64) float64 { return math.Pow(1-16*z/l, 0.25) }
	psiH := func(z float64) float64 {
		xz := x(z)
		return 2 * math.Log((1+xz*xz)/2)
	}
	x200 := x(blendingHeight)
	psiM200 = 2*math.Log((1+x200)/2) + math.Log((1+x200*x200)/2) - 2*math.Atan(x200) + math.Pi/2
	return psiM200, psiH(z2), psiH(z1)
}

// endmemberState tracks u* and rah at an endmember through the iteration
// with the same formulas applied to the pixel layers.
type endmemberState struct {
	em    Endmember
	hTgt  float64
	ustar float64
	rah   float64
}

func (s *endmemberState) update(u200, h float64) {
	psiM200, psiH2, psiH01 := stability(s.em.LST, h, s.ustar)
	s.ustar = frictionVelocity(u200, s.em.Z0m, psiM200)
	s.rah = aerodynamicResistance(s.ustar, psiH2, psiH01)
}

func calibrate(iter int, cold, hot *endmemberState) Calibration {
	dtCold := cold.hTgt * cold.rah / (airDensity(cold.em.LST) * airHeatCap)
	dtHot := hot.hTgt * hot.rah / (airDensity(hot.em.LST) * airHeatCap)
	a := (dtHot - dtCold) / (hot.em.LST - cold.em.LST)
	b := dtHot - a*hot.em.LST
	return Calibration{
		Iteration: iter,
		A:         a,
		B:         b,
		RahCold:   cold.rah,
		RahHot:    hot.rah,
		HCold:     sensibleHeat(cold.em.LST, a*cold.em.LST+b, cold.rah),
		HHot:      sensibleHeat(hot.em.LST, a*hot.em.LST+b, hot.rah),
	}
}

// SolveSensibleHeat runs the Monin-Obukhov stability iteration. The hot
// endmember carries all available energy as H, the cold one the configured
// fraction of it. Exactly cfg.Iterations stability corrections are applied
// before the final calibration.
func SolveSensibleHeat(ctx context.Context, e raster.Engine, b *Biophysical, m Endmembers, met meteo.Context, cfg SolverConfig, logger *zap.SugaredLogger) (*SensibleHeat, error) {
	z0mStation := 0.12 * cfg.VegetationHeight
	ustarStation := vonKarman * met.WindSpeed / math.Log(met.Height()/z0mStation)
	u200 := ustarStation * math.Log(blendingHeight/z0mStation) / vonKarman

	s := &stage{ctx: ctx, e: e}

	z0m := s.mapf("z0m", func(v []float64) (float64, bool) {
		return momentumRoughness(v[0]), true
	}, b.NDVI)
	ustar := s.mapf("ustar", func(v []float64) (float64, bool) {
		return frictionVelocity(u200, v[0], 0), true
	}, z0m)
	rah := s.mapf("rah", func(v []float64) (float64, bool) {
		r := aerodynamicResistance(v[0], 0, 0)
		return r, r > 0
	}, ustar)

	cold := &endmemberState{em: m.Cold, hTgt: cfg.ColdHFraction * (m.Cold.Rn - m.Cold.G)}
	hot := &endmemberState{em: m.Hot, hTgt: m.Hot.Rn - m.Hot.G}
	for _, st := range []*endmemberState{cold, hot} {
		st.ustar = frictionVelocity(u200, st.em.Z0m, 0)
		st.rah = aerodynamicResistance(st.ustar, 0, 0)
	}

	out := &SensibleHeat{}
	for i := 1; i <= cfg.Iterations; i++ {
		if s.err != nil {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c := calibrate(i, cold, hot)
		out.Coeffs = append(out.Coeffs, c)
		if !c.finite() {
			break
		}

		h := s.mapf("h", func(v []float64) (float64, bool) {
			return sensibleHeat(v[0], c.A*v[0]+c.B, v[1]), true
		}, b.LST, rah)

		prevUstar := ustar
		ustar = s.mapf("ustar", func(v []float64) (float64, bool) {
			psiM200, _, _ := stability(v[1], v[2], v[3])
			return frictionVelocity(u200, v[0], psiM200), true
		}, z0m, b.LST, h, prevUstar)
		rah = s.mapf("rah", func(v []float64) (float64, bool) {
			_, psiH2, psiH01 := stability(v[0], v[1], v[2])
			r := aerodynamicResistance(v[3], psiH2, psiH01)
			return r, r > 0
		}, b.LST, h, prevUstar, ustar)

		cold.update(u200, c.HCold)
		hot.update(u200, c.HHot)

		logger.Debugw("stability iteration", "iteration", i, "a", c.A, "b", c.B, "rah_hot", c.RahHot, "rah_cold", c.RahCold)
	}
	if s.err != nil {
		return nil, fmt.Errorf("sensible heat for scene %s: %w", b.Meta.ID, s.err)
	}

	final := calibrate(cfg.Iterations+1, cold, hot)
	out.Final = final
	out.Ustar, out.Rah = ustar, rah

	if !final.finite() {
		out.Degenerate = true
		logger.Warnw("sensible heat calibration degenerate, scene has no valid pixels",
			"wind_speed", met.WindSpeed, "a", final.A, "b", final.B)
		none := func([]float64) (float64, bool) { return 0, false }
		out.DT = s.mapf("dt", none, b.LST)
		out.H = s.mapf("h", none, b.LST)
	} else {
		out.DT = s.mapf("dt", func(v []float64) (float64, bool) {
			return final.A*v[0] + final.B, true
		}, b.LST)
		out.H = s.mapf("h", func(v []float64) (float64, bool) {
			return sensibleHeat(v[0], v[1], v[2]), true
		}, b.LST, out.DT, rah)
	}

	if s.err != nil {
		return nil, fmt.Errorf("sensible heat for scene %s: %w", b.Meta.ID, s.err)
	}
	return out, nil
}
