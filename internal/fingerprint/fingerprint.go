// Package fingerprint generates the immutable browser identity profile
// presented by a session: user agent, viewport/screen geometry, timezone,
// locale, rendering stack and noise tokens. A profile is drawn jointly so
// the tuple stays internally consistent; regeneration always means drawing
// a whole new value, never mutating fields of an existing one.
package fingerprint

import (
	"fmt"
	"math/rand"
	"strings"
)

// Size is a width/height pair in CSS pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Screen describes the reported physical screen. Width and Height always
// equal the viewport dimensions of the owning Fingerprint.
type Screen struct {
	Width      int `json:"width"`
	Height     int `json:"height"`
	ColorDepth int `json:"colorDepth"`
	PixelDepth int `json:"pixelDepth"`
}

// Fingerprint is the immutable bundle of client-observable attributes.
type Fingerprint struct {
	UserAgent     string   `json:"user_agent"`
	Viewport      Size     `json:"viewport"`
	Timezone      string   `json:"timezone"`
	Locale        string   `json:"locale"`
	Platform      string   `json:"platform"`
	Screen        Screen   `json:"screen"`
	WebGLVendor   string   `json:"webgl_vendor"`
	WebGLRenderer string   `json:"webgl_renderer"`
	CanvasNoise   string   `json:"canvas_fingerprint"`
	AudioNoise    float64  `json:"audio_fingerprint"`
	Fonts         []string `json:"fonts"`
}

// Policy tunes the sampling behavior. The Common*Prob fields are the
// probability of drawing from the statistically common subset of the
// attribute's pool; the remaining mass goes to the complement, which keeps
// the fleet's attribute distribution diverse. PairPlatformVendor restricts
// the vendor/renderer pair to stacks catalogued for the sampled platform.
type Policy struct {
	CommonViewportProb float64
	CommonTimezoneProb float64
	CommonLocaleProb   float64
	MinFonts           int
	MaxFonts           int
	PairPlatformVendor bool
}

// DefaultPolicy mirrors the weighting the fleet was tuned with.
func DefaultPolicy() Policy {
	return Policy{
		CommonViewportProb: 0.30,
		CommonTimezoneProb: 0.25,
		CommonLocaleProb:   0.20,
		MinFonts:           5,
		MaxFonts:           9,
		PairPlatformVendor: true,
	}
}

// Generator produces Fingerprints from an injected random source. It has
// no other state and never fails. It is not safe for concurrent use; give
// each goroutine its own Generator.
type Generator struct {
	rng    *rand.Rand
	policy Policy
}

func NewGenerator(rng *rand.Rand, policy Policy) *Generator {
	if policy.MaxFonts < policy.MinFonts {
		policy.MaxFonts = policy.MinFonts
	}
	return &Generator{rng: rng, policy: policy}
}

// Generate draws a complete profile. The screen descriptor is derived from
// the sampled viewport so the two can never disagree.
func (g *Generator) Generate() Fingerprint {
	viewport := weighted(g.rng, viewports, commonViewports, g.policy.CommonViewportProb)
	platform := platforms[g.rng.Intn(len(platforms))]
	vendor, renderer := g.renderPair(platform)

	return Fingerprint{
		UserAgent: userAgents[g.rng.Intn(len(userAgents))],
		Viewport:  viewport,
		Timezone:  weighted(g.rng, timezones, commonTimezones, g.policy.CommonTimezoneProb),
		Locale:    weighted(g.rng, locales, commonLocales, g.policy.CommonLocaleProb),
		Platform:  platform,
		Screen: Screen{
			Width:      viewport.Width,
			Height:     viewport.Height,
			ColorDepth: colorDepths[g.rng.Intn(len(colorDepths))],
			PixelDepth: colorDepths[g.rng.Intn(len(colorDepths))],
		},
		WebGLVendor:   vendor,
		WebGLRenderer: renderer,
		CanvasNoise:   g.canvasToken(32),
		AudioNoise:    100 + g.rng.Float64()*100,
		Fonts:         g.fontSubset(),
	}
}

// renderPair samples vendor and renderer together so the two always belong
// to the same stack. With PairPlatformVendor set, only stacks catalogued
// for the platform are eligible; a platform with no catalogued stack falls
// back to the full pool.
func (g *Generator) renderPair(platform string) (string, string) {
	pool := renderStacks
	if g.policy.PairPlatformVendor {
		var matched []renderStack
		for _, rs := range renderStacks {
			for _, p := range rs.platforms {
				if p == platform {
					matched = append(matched, rs)
					break
				}
			}
		}
		if len(matched) > 0 {
			pool = matched
		}
	}
	rs := pool[g.rng.Intn(len(pool))]
	renderer := rs.renderer
	if strings.Contains(renderer, "%") {
		renderer = fmt.Sprintf(renderer, 10000+g.rng.Intn(90000))
	}
	return rs.vendor, renderer
}

// fontSubset samples a bounded random subset of the catalog, then unions
// in up to 3 commonly installed fonts and deduplicates.
func (g *Generator) fontSubset() []string {
	n := g.policy.MinFonts
	if spread := g.policy.MaxFonts - g.policy.MinFonts; spread > 0 {
		n += g.rng.Intn(spread + 1)
	}
	perm := g.rng.Perm(len(fontCatalog))
	if n > len(fontCatalog) {
		n = len(fontCatalog)
	}

	seen := make(map[string]bool, n+3)
	fonts := make([]string, 0, n+3)
	for _, i := range perm[:n] {
		fonts = append(fonts, fontCatalog[i])
		seen[fontCatalog[i]] = true
	}
	for _, i := range g.rng.Perm(len(commonFonts))[:1+g.rng.Intn(3)] {
		if !seen[commonFonts[i]] {
			fonts = append(fonts, commonFonts[i])
			seen[commonFonts[i]] = true
		}
	}
	return fonts
}

func (g *Generator) canvasToken(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[g.rng.Intn(len(alphabet))]
	}
	return string(b)
}

// weighted draws from common with probability commonProb, otherwise
// uniformly from the complement of common in all. An empty complement
// degrades to a uniform draw over the full pool.
func weighted[T comparable](rng *rand.Rand, all, common []T, commonProb float64) T {
	inCommon := make(map[T]bool, len(common))
	for _, c := range common {
		inCommon[c] = true
	}
	var complement []T
	for _, v := range all {
		if !inCommon[v] {
			complement = append(complement, v)
		}
	}

	if rng.Float64() < commonProb && len(common) > 0 {
		return common[rng.Intn(len(common))]
	}
	if len(complement) == 0 {
		return all[rng.Intn(len(all))]
	}
	return complement[rng.Intn(len(complement))]
}
