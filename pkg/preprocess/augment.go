package preprocess

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// AugmentConfig holds the ranges of the random perturbations.
type AugmentConfig struct {
	FlipProbability float64
	MaxRotation     float64 // degrees, symmetric
	GammaMin        float64
	GammaMax        float64
	MaxNoiseSigma   float64 // in 8-bit intensity units
	MultiplyMin     float64
	MultiplyMax     float64
	BlurProbability float64
}

// DefaultAugmentConfig returns the standard enrollment perturbations.
func DefaultAugmentConfig() AugmentConfig {
	return AugmentConfig{
		FlipProbability: 0.5,
		MaxRotation:     10,
		GammaMin:        0.8,
		GammaMax:        1.2,
		MaxNoiseSigma:   0.05 * 255,
		MultiplyMin:     0.8,
		MultiplyMax:     1.2,
		BlurProbability: 0.3,
	}
}

// Augmenter applies a random sequence of perturbations. It is safe for
// concurrent use; a fixed seed makes the sequence of outputs reproducible.
type Augmenter struct {
	cfg AugmentConfig
	mu  sync.Mutex
	rng *rand.Rand
}

// NewAugmenter creates an Augmenter. A zero seed uses the current time.
func NewAugmenter(cfg AugmentConfig, seed int64) *Augmenter {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Augmenter{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

// params is one draw of the random perturbations.
type params struct {
	flip     bool
	angle    float64
	gamma    float64
	sigma    float64
	multiply float64
	blur     bool
	noise    *rand.Rand
}

func (a *Augmenter) draw() params {
	a.mu.Lock()
	defer a.mu.Unlock()

	uniform := func(lo, hi float64) float64 { return lo + a.rng.Float64()*(hi-lo) }
	return params{
		flip:     a.rng.Float64() < a.cfg.FlipProbability,
		angle:    uniform(-a.cfg.MaxRotation, a.cfg.MaxRotation),
		gamma:    uniform(a.cfg.GammaMin, a.cfg.GammaMax),
		sigma:    uniform(0, a.cfg.MaxNoiseSigma),
		multiply: uniform(a.cfg.MultiplyMin, a.cfg.MultiplyMax),
		blur:     a.rng.Float64() < a.cfg.BlurProbability,
		noise:    rand.New(rand.NewSource(a.rng.Int63())),
	}
}

// Augment returns a perturbed copy of img with the same dimensions.
func (a *Augmenter) Augment(img image.Image) (image.Image, error) {
	p := a.draw()

	return apply(img, func(src gocv.Mat, dst *gocv.Mat) error {
		cur := src.Clone()
		defer func() { cur.Close() }()

		step := func(fn func(in gocv.Mat, out *gocv.Mat)) {
			out := gocv.NewMat()
			fn(cur, &out)
			cur.Close()
			cur = out
		}

		if p.flip {
			step(func(in gocv.Mat, out *gocv.Mat) { gocv.Flip(in, out, 1) })
		}
		step(func(in gocv.Mat, out *gocv.Mat) { rotate(in, out, p.angle) })
		step(func(in gocv.Mat, out *gocv.Mat) { adjustGamma(in, out, p.gamma) })
		noisy, err := addNoise(cur, p.sigma, p.noise)
		if err != nil {
			return err
		}
		cur.Close()
		cur = noisy
		step(func(in gocv.Mat, out *gocv.Mat) {
			in.ConvertToWithParams(out, gocv.MatTypeCV8UC3, float32(p.multiply), 0)
		})
		if p.blur {
			step(func(in gocv.Mat, out *gocv.Mat) {
				gocv.GaussianBlur(in, out, image.Pt(3, 3), 0, 0, gocv.BorderDefault)
			})
		}

		if cur.Empty() {
			return fmt.Errorf("augmentation produced an empty image")
		}
		cur.CopyTo(dst)
		return nil
	})
}

// rotate turns the image around its centre, keeping its size.
func rotate(src gocv.Mat, dst *gocv.Mat, angle float64) {
	center := image.Pt(src.Cols()/2, src.Rows()/2)
	m := gocv.GetRotationMatrix2D(center, angle, 1.0)
	defer m.Close()
	gocv.WarpAffineWithParams(src, dst, m, image.Pt(src.Cols(), src.Rows()),
		gocv.InterpolationLinear, gocv.BorderReflect, color.RGBA{})
}

// adjustGamma maps every intensity x to 255*(x/255)^gamma.
func adjustGamma(src gocv.Mat, dst *gocv.Mat, gamma float64) {
	lut := gocv.NewMatWithSize(1, 256, gocv.MatTypeCV8U)
	defer lut.Close()
	for i := 0; i < 256; i++ {
		v := math.Pow(float64(i)/255, gamma) * 255
		lut.SetUCharAt(0, i, uint8(math.Round(v)))
	}
	gocv.LUT(src, lut, dst)
}

// addNoise adds zero-mean Gaussian noise drawn from rng, saturating to 8 bits.
func addNoise(src gocv.Mat, sigma float64, rng *rand.Rand) (gocv.Mat, error) {
	data := src.ToBytes()
	for i, b := range data {
		v := float64(b) + rng.NormFloat64()*sigma
		data[i] = uint8(math.Max(0, math.Min(255, math.Round(v))))
	}
	m, err := gocv.NewMatFromBytes(src.Rows(), src.Cols(), src.Type(), data)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to build noisy image: %w", err)
	}
	defer m.Close()

	// m borrows data; the clone owns its pixels.
	out := m.Clone()
	runtime.KeepAlive(data)
	return out, nil
}
