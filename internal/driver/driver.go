// Package driver defines the automation capability the execution engine
// drives: open a browser presenting a given fingerprint, interact with
// pages, close. The playwright implementation lives alongside; the engine
// only ever sees these interfaces.
package driver

import (
	"context"
	"fmt"

	"github.com/hexbound/flock/internal/fingerprint"
	"github.com/hexbound/flock/internal/store"
)

// Driver opens browser sessions.
type Driver interface {
	Open(ctx context.Context, spec LaunchSpec) (Session, error)
}

// Session is one live browser. All calls may block on browser I/O. The
// session is owned by exactly one executing task and must be closed on
// every exit path.
type Session interface {
	Goto(ctx context.Context, url string) error
	WaitForSelector(ctx context.Context, selector string) error
	// Click clicks the element matching selector; a non-negative index
	// selects among multiple matches.
	Click(ctx context.Context, selector string, index int) error
	Fill(ctx context.Context, selector, value string) error
	Scroll(ctx context.Context, direction string, amount int) error
	WaitForNavigation(ctx context.Context) error
	EvaluateScript(ctx context.Context, source string) (any, error)
	InnerText(ctx context.Context, selector string) (string, error)
	Close(ctx context.Context) error
}

// LaunchOptions configure the browser process itself.
type LaunchOptions struct {
	Headless bool     `json:"headless"`
	Args     []string `json:"args"`
}

// ProxySettings route the session through an upstream proxy.
type ProxySettings struct {
	Server   string `json:"server"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// ContextOptions configure the isolated browser context.
type ContextOptions struct {
	UserAgent        string             `json:"user_agent"`
	Viewport         fingerprint.Size   `json:"viewport"`
	TimezoneID       string             `json:"timezone_id"`
	Locale           string             `json:"locale"`
	Screen           fingerprint.Screen `json:"screen"`
	ExtraHTTPHeaders map[string]string  `json:"extra_http_headers"`
	Proxy            *ProxySettings     `json:"proxy,omitempty"`
}

// Overrides are the fingerprint facets installed via init scripts rather
// than context options.
type Overrides struct {
	WebGLVendor   string   `json:"webgl_vendor"`
	WebGLRenderer string   `json:"webgl_renderer"`
	CanvasNoise   string   `json:"canvas_fingerprint"`
	AudioNoise    float64  `json:"audio_fingerprint"`
	Fonts         []string `json:"fonts"`
}

// LaunchSpec is the full, serializable launch command for one identity.
// The CLI prints it; the playwright driver executes it.
type LaunchSpec struct {
	IdentityID     string         `json:"browser_id"`
	LaunchOptions  LaunchOptions  `json:"launch_options"`
	ContextOptions ContextOptions `json:"context_options"`
	Overrides      Overrides      `json:"fingerprint_overrides"`
}

// NewLaunchSpec derives the launch command from an identity's fingerprint
// and optional proxy.
func NewLaunchSpec(identityID string, fp fingerprint.Fingerprint, proxy *store.Proxy, headless bool) LaunchSpec {
	spec := LaunchSpec{
		IdentityID: identityID,
		LaunchOptions: LaunchOptions{
			Headless: headless,
			Args: []string{
				fmt.Sprintf("--user-agent=%s", fp.UserAgent),
				fmt.Sprintf("--window-size=%d,%d", fp.Viewport.Width, fp.Viewport.Height),
				"--no-default-browser-check",
				"--disable-blink-features=AutomationControlled",
			},
		},
		ContextOptions: ContextOptions{
			UserAgent:  fp.UserAgent,
			Viewport:   fp.Viewport,
			TimezoneID: fp.Timezone,
			Locale:     fp.Locale,
			Screen:     fp.Screen,
			ExtraHTTPHeaders: map[string]string{
				"Accept-Language": fmt.Sprintf("%s,en;q=0.9", fp.Locale),
			},
		},
		Overrides: Overrides{
			WebGLVendor:   fp.WebGLVendor,
			WebGLRenderer: fp.WebGLRenderer,
			CanvasNoise:   fp.CanvasNoise,
			AudioNoise:    fp.AudioNoise,
			Fonts:         fp.Fonts,
		},
	}
	if proxy != nil {
		ps := &ProxySettings{
			Server:   fmt.Sprintf("%s://%s:%d", proxy.Protocol, proxy.Host, proxy.Port),
			Username: proxy.Username,
			Password: proxy.Password,
		}
		spec.ContextOptions.Proxy = ps
	}
	return spec
}
