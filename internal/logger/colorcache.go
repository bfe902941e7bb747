package logger

import (
	"hash/fnv"
	"math"
	"sync"
)

// rgb is a 24-bit truecolor triple.
type rgb struct {
	r, g, b uint8
}

// colorCache assigns each task id a stable color the first time it is seen
// and remembers it for the rest of the run, generalizing the teacher's
// fixed 5-color terminal palette (internal/colorcache.PrefixColor) into an
// unbounded truecolor sweep.
//
// Each hue is an FNV-1a hash of the id, scaled to [0,1) and offset by the
// golden ratio conjugate; the order in which ids are first seen plays no
// part in the color they get.
type colorCache struct {
	mu    sync.Mutex
	cache map[string]rgb
}

const goldenRatioConjugate = 0.6180339887498949

func newColorCache() *colorCache {
	return &colorCache{cache: make(map[string]rgb)}
}

// colorFor returns the color assigned to id, computing and caching it on
// first use. The color is deterministic: it depends only on id, not on
// assignment order, via a hash-seeded position on the golden-ratio hue
// sweep (spec §6: "chosen deterministically from the id's hash").
func (c *colorCache) colorFor(id string) rgb {
	c.mu.Lock()
	defer c.mu.Unlock()
	if col, ok := c.cache[id]; ok {
		return col
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	seed := float64(h.Sum32()) / float64(math.MaxUint32)

	hue := math.Mod(seed+goldenRatioConjugate, 1.0)
	col := hslToRGB(hue, 0.7, 0.6)
	c.cache[id] = col
	return col
}

// hslToRGB converts HSL (h, s, l all in [0,1]) to 24-bit RGB, per spec §6's
// "HSL(saturation=0.7, lightness=0.6) converted to 24-bit truecolor".
func hslToRGB(h, s, l float64) rgb {
	if s == 0 {
		v := uint8(l * 255)
		return rgb{v, v, v}
	}

	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q

	r := hueToChannel(p, q, h+1.0/3.0)
	g := hueToChannel(p, q, h)
	b := hueToChannel(p, q, h-1.0/3.0)

	return rgb{uint8(r * 255), uint8(g * 255), uint8(b * 255)}
}

func hueToChannel(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	default:
		return p
	}
}
