package driver

import (
	"context"
	"fmt"
	"io"

	"github.com/playwright-community/playwright-go"
)

// Playwright drives real chromium sessions. One Playwright instance is
// shared by all sessions; each Open launches an isolated browser.
//
// The playwright bindings carry their own internal timeouts, so the
// context arguments on Session calls are accepted for interface
// conformance but not consulted here.
type Playwright struct {
	pw *playwright.Playwright
}

// NewPlaywright installs (if needed) and starts the playwright runtime.
func NewPlaywright() (*Playwright, error) {
	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	if err := playwright.Install(opts); err != nil {
		return nil, fmt.Errorf("install playwright: %w", err)
	}
	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	return &Playwright{pw: pw}, nil
}

// Stop shuts the shared runtime down. Call only after every session is
// closed.
func (d *Playwright) Stop() error { return d.pw.Stop() }

// Open launches a chromium browser configured per spec, creates an
// isolated context and page, and installs the fingerprint-override init
// scripts before any page script runs.
func (d *Playwright) Open(ctx context.Context, spec LaunchSpec) (Session, error) {
	browser, err := d.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(spec.LaunchOptions.Headless),
		Args:     spec.LaunchOptions.Args,
	})
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	ctxOpts := playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(spec.ContextOptions.UserAgent),
		Viewport: &playwright.Size{
			Width:  spec.ContextOptions.Viewport.Width,
			Height: spec.ContextOptions.Viewport.Height,
		},
		Screen: &playwright.Size{
			Width:  spec.ContextOptions.Screen.Width,
			Height: spec.ContextOptions.Screen.Height,
		},
		TimezoneId:       playwright.String(spec.ContextOptions.TimezoneID),
		Locale:           playwright.String(spec.ContextOptions.Locale),
		ExtraHttpHeaders: spec.ContextOptions.ExtraHTTPHeaders,
	}
	if p := spec.ContextOptions.Proxy; p != nil {
		ctxOpts.Proxy = &playwright.Proxy{Server: p.Server}
		if p.Username != "" {
			ctxOpts.Proxy.Username = playwright.String(p.Username)
		}
		if p.Password != "" {
			ctxOpts.Proxy.Password = playwright.String(p.Password)
		}
	}

	browserCtx, err := browser.NewContext(ctxOpts)
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("create context: %w", err)
	}

	page, err := browserCtx.NewPage()
	if err != nil {
		browserCtx.Close()
		browser.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}

	for _, src := range initScripts(spec.Overrides) {
		if err := page.AddInitScript(playwright.Script{Content: playwright.String(src)}); err != nil {
			browserCtx.Close()
			browser.Close()
			return nil, fmt.Errorf("install init script: %w", err)
		}
	}

	return &playwrightSession{browser: browser, ctx: browserCtx, page: page}, nil
}

type playwrightSession struct {
	browser playwright.Browser
	ctx     playwright.BrowserContext
	page    playwright.Page
}

func (s *playwrightSession) Goto(ctx context.Context, url string) error {
	if _, err := s.page.Goto(url); err != nil {
		return fmt.Errorf("goto %s: %w", url, err)
	}
	return nil
}

func (s *playwrightSession) WaitForSelector(ctx context.Context, selector string) error {
	if _, err := s.page.WaitForSelector(selector); err != nil {
		return fmt.Errorf("wait for %s: %w", selector, err)
	}
	return nil
}

func (s *playwrightSession) Click(ctx context.Context, selector string, index int) error {
	if index < 0 {
		if err := s.page.Click(selector); err != nil {
			return fmt.Errorf("click %s: %w", selector, err)
		}
		return nil
	}
	elements, err := s.page.QuerySelectorAll(selector)
	if err != nil {
		return fmt.Errorf("query %s: %w", selector, err)
	}
	if index >= len(elements) {
		return fmt.Errorf("click %s[%d]: only %d matches", selector, index, len(elements))
	}
	if err := elements[index].Click(); err != nil {
		return fmt.Errorf("click %s[%d]: %w", selector, index, err)
	}
	return nil
}

func (s *playwrightSession) Fill(ctx context.Context, selector, value string) error {
	if err := s.page.Fill(selector, value); err != nil {
		return fmt.Errorf("fill %s: %w", selector, err)
	}
	return nil
}

func (s *playwrightSession) Scroll(ctx context.Context, direction string, amount int) error {
	if direction == "up" {
		amount = -amount
	}
	if _, err := s.page.Evaluate(fmt.Sprintf("window.scrollBy(0, %d)", amount)); err != nil {
		return fmt.Errorf("scroll %s: %w", direction, err)
	}
	return nil
}

func (s *playwrightSession) WaitForNavigation(ctx context.Context) error {
	return s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State: playwright.LoadStateNetworkidle,
	})
}

func (s *playwrightSession) EvaluateScript(ctx context.Context, source string) (any, error) {
	return s.page.Evaluate(source)
}

func (s *playwrightSession) InnerText(ctx context.Context, selector string) (string, error) {
	return s.page.InnerText(selector)
}

func (s *playwrightSession) Close(ctx context.Context) error {
	ctxErr := s.ctx.Close()
	browserErr := s.browser.Close()
	if ctxErr != nil {
		return ctxErr
	}
	return browserErr
}
