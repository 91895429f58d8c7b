package engine

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/hexbound/flock/internal/driver"
	"github.com/hexbound/flock/internal/fingerprint"
	"github.com/hexbound/flock/internal/plan"
	"github.com/hexbound/flock/internal/store"
)

// fakeDriver scripts session behavior per identity and tracks how many
// sessions are open at once.
type fakeDriver struct {
	mu            sync.Mutex
	open          int32
	maxOpen       int32
	opened        int
	failLaunchFor map[string]bool
	sessionFor    func(identityID string) *fakeSession
	sessions      []*fakeSession
}

func (d *fakeDriver) Open(ctx context.Context, spec driver.LaunchSpec) (driver.Session, error) {
	d.mu.Lock()
	d.opened++
	fail := d.failLaunchFor[spec.IdentityID]
	d.mu.Unlock()
	if fail {
		return nil, errors.New("no display")
	}

	cur := atomic.AddInt32(&d.open, 1)
	for {
		max := atomic.LoadInt32(&d.maxOpen)
		if cur <= max || atomic.CompareAndSwapInt32(&d.maxOpen, max, cur) {
			break
		}
	}

	var sess *fakeSession
	if d.sessionFor != nil {
		sess = d.sessionFor(spec.IdentityID)
	} else {
		sess = &fakeSession{}
	}
	sess.drv = d
	d.mu.Lock()
	d.sessions = append(d.sessions, sess)
	d.mu.Unlock()
	return sess, nil
}

type fakeSession struct {
	drv *fakeDriver

	mu        sync.Mutex
	calls     []string
	closed    bool
	failGoto  error
	innerText string
}

func (s *fakeSession) record(call string) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
}

func (s *fakeSession) Goto(ctx context.Context, url string) error {
	s.record("goto")
	return s.failGoto
}

func (s *fakeSession) WaitForSelector(ctx context.Context, selector string) error {
	s.record("wait_for_selector")
	return nil
}

func (s *fakeSession) Click(ctx context.Context, selector string, index int) error {
	s.record("click")
	return nil
}

func (s *fakeSession) Fill(ctx context.Context, selector, value string) error {
	s.record("fill:" + value)
	return nil
}

func (s *fakeSession) Scroll(ctx context.Context, direction string, amount int) error {
	s.record("scroll")
	return nil
}

func (s *fakeSession) WaitForNavigation(ctx context.Context) error {
	s.record("wait_for_navigation")
	return nil
}

func (s *fakeSession) EvaluateScript(ctx context.Context, source string) (any, error) {
	s.record("evaluate")
	return nil, nil
}

func (s *fakeSession) InnerText(ctx context.Context, selector string) (string, error) {
	s.record("inner_text")
	return s.innerText, nil
}

func (s *fakeSession) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	if s.drv != nil {
		atomic.AddInt32(&s.drv.open, -1)
	}
	return nil
}

type fakeReplier struct {
	mu    sync.Mutex
	calls int
	reply string
}

func (r *fakeReplier) GenerateReply(ctx context.Context, source string) (string, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return r.reply, nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.GroupPause = 0
	cfg.MinCommandDelay = 0
	cfg.MaxCommandDelay = 0
	return cfg
}

func newTestEngine(t *testing.T, drv driver.Driver, rep *fakeReplier) (*Engine, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "flock.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if rep == nil {
		rep = &fakeReplier{}
	}
	planner := plan.NewBuilder(rand.New(rand.NewSource(1)))
	return New(st, drv, rep, planner, testConfig()), st
}

func createIdentity(t *testing.T, st *store.Store, name string, accountID *int64, interactive bool) string {
	t.Helper()
	fp := fingerprint.NewGenerator(rand.New(rand.NewSource(1)), fingerprint.DefaultPolicy()).Generate()
	id, err := st.CreateIdentity(context.Background(), name, nil, accountID, interactive, fp)
	if err != nil {
		t.Fatalf("create identity: %v", err)
	}
	return id
}

func TestRunSessionSuccessResetsStatusAndTouches(t *testing.T) {
	drv := &fakeDriver{}
	e, st := newTestEngine(t, drv, nil)
	ctx := context.Background()
	id := createIdentity(t, st, "ok", nil, true)

	outcome := e.RunSession(ctx, id)
	if !outcome.Success() {
		t.Fatalf("session failed: %v", outcome.Err)
	}

	ident, err := st.GetIdentity(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if ident.Status != store.StatusInactive {
		t.Errorf("status after session = %s, want inactive", ident.Status)
	}
	if ident.LastInteraction == nil {
		t.Errorf("successful session must record last interaction")
	}
	if len(drv.sessions) != 1 || !drv.sessions[0].closed {
		t.Errorf("driver session was not closed")
	}
}

func TestRunSessionLaunchFailure(t *testing.T) {
	drv := &fakeDriver{failLaunchFor: map[string]bool{}}
	e, st := newTestEngine(t, drv, nil)
	ctx := context.Background()
	id := createIdentity(t, st, "broken", nil, true)
	drv.failLaunchFor[id] = true

	outcome := e.RunSession(ctx, id)
	if outcome.Success() {
		t.Fatal("expected launch failure")
	}
	if !errors.Is(outcome.Err, ErrLaunchFailed) {
		t.Errorf("outcome error = %v, want ErrLaunchFailed", outcome.Err)
	}

	ident, _ := st.GetIdentity(ctx, id)
	if ident.Status != store.StatusInactive {
		t.Errorf("status after launch failure = %s, want inactive", ident.Status)
	}
	if ident.LastInteraction != nil {
		t.Errorf("failed session must not record last interaction")
	}
}

func TestRunSessionUnknownIdentity(t *testing.T) {
	e, _ := newTestEngine(t, &fakeDriver{}, nil)
	outcome := e.RunSession(context.Background(), "missing")
	if outcome.Success() || !errors.Is(outcome.Err, store.ErrNotFound) {
		t.Errorf("outcome = %+v, want NotFound failure", outcome)
	}
}

func TestCommandFailureIsSwallowed(t *testing.T) {
	// First command (navigate) fails; the remaining plan commands must
	// still be attempted and the session must still count as a success.
	drv := &fakeDriver{
		sessionFor: func(string) *fakeSession {
			return &fakeSession{failGoto: errors.New("net::ERR_FAILED")}
		},
	}
	e, st := newTestEngine(t, drv, nil)
	ctx := context.Background()
	id := createIdentity(t, st, "flaky", nil, true)

	outcome := e.RunSession(ctx, id)
	if !outcome.Success() {
		t.Fatalf("command failure must not fail the session: %v", outcome.Err)
	}
	if outcome.CommandFailures != 1 {
		t.Errorf("CommandFailures = %d, want 1", outcome.CommandFailures)
	}

	// Browsing-only plan is navigate, scroll, wait, click. The wait never
	// touches the session, so scroll and click must still arrive after
	// the failed navigate.
	sess := drv.sessions[0]
	var after []string
	for _, c := range sess.calls {
		if c != "goto" {
			after = append(after, c)
		}
	}
	if len(after) != 2 || after[0] != "scroll" || after[1] != "click" {
		t.Errorf("commands after failure = %v, want [scroll click]", after)
	}

	ident, _ := st.GetIdentity(ctx, id)
	if ident.LastInteraction == nil {
		t.Errorf("best-effort session completion must still touch last interaction")
	}
}

func TestRunSessionWithAccountRepliesToMail(t *testing.T) {
	longText := "This is an email body that is comfortably longer than fifty characters in total."
	drv := &fakeDriver{
		sessionFor: func(string) *fakeSession {
			return &fakeSession{innerText: longText}
		},
	}
	rep := &fakeReplier{reply: "Thanks, sounds good."}
	e, st := newTestEngine(t, drv, rep)
	ctx := context.Background()

	acctID, err := st.CreateAccount(ctx, store.Account{Address: "a@example.com", Secret: "s3cret"})
	if err != nil {
		t.Fatal(err)
	}
	id := createIdentity(t, st, "mailer", &acctID, true)

	outcome := e.RunSession(ctx, id)
	if !outcome.Success() {
		t.Fatalf("session failed: %v", outcome.Err)
	}
	if rep.calls == 0 {
		t.Errorf("reply generator was never consulted")
	}

	var credentialFill, draftFill bool
	for _, c := range drv.sessions[0].calls {
		if c == "fill:a@example.com" {
			credentialFill = true
		}
		if c == "fill:Thanks, sounds good." {
			draftFill = true
		}
	}
	if !credentialFill {
		t.Errorf("login segment did not substitute the account address")
	}
	if !draftFill {
		t.Errorf("generated reply never filled into the compose box")
	}
}

func TestRunBatchBoundsConcurrency(t *testing.T) {
	drv := &fakeDriver{}
	e, st := newTestEngine(t, drv, nil)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		createIdentity(t, st, "bulk", nil, true)
	}

	report, err := e.RunBatch(ctx, 25)
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if report.Total != 25 || report.Succeeded != 25 || report.Failed != 0 {
		t.Errorf("report = %+v", report)
	}
	if drv.opened != 25 {
		t.Errorf("opened %d sessions, want 25", drv.opened)
	}
	if max := atomic.LoadInt32(&drv.maxOpen); max > int32(e.cfg.GroupSize) {
		t.Errorf("observed %d concurrent sessions, group size is %d", max, e.cfg.GroupSize)
	}
}

func TestRunBatchCollectsFailuresWithoutAborting(t *testing.T) {
	drv := &fakeDriver{failLaunchFor: map[string]bool{}}
	e, st := newTestEngine(t, drv, nil)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, createIdentity(t, st, "mixed", nil, true))
	}
	drv.failLaunchFor[ids[1]] = true
	drv.failLaunchFor[ids[3]] = true

	report, err := e.RunBatch(ctx, 5)
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if report.Succeeded != 3 || report.Failed != 2 {
		t.Errorf("report = %+v, want 3 succeeded / 2 failed", report)
	}

	for _, id := range ids {
		ident, _ := st.GetIdentity(ctx, id)
		if ident.Status != store.StatusInactive {
			t.Errorf("identity %s status = %s after batch, want inactive", id, ident.Status)
		}
	}
}

func TestMetricsAggregation(t *testing.T) {
	drv := &fakeDriver{failLaunchFor: map[string]bool{}}
	e, st := newTestEngine(t, drv, nil)
	ctx := context.Background()

	ok := createIdentity(t, st, "ok", nil, true)
	bad := createIdentity(t, st, "bad", nil, true)
	drv.failLaunchFor[bad] = true

	e.RunSession(ctx, ok)
	e.RunSession(ctx, bad)

	snap := e.Metrics().Snapshot()
	if snap.Sessions != 2 {
		t.Errorf("sessions = %d, want 2", snap.Sessions)
	}
	if snap.Failures != 1 || snap.LaunchFailures != 1 {
		t.Errorf("failures = %d launch = %d, want 1/1", snap.Failures, snap.LaunchFailures)
	}
	if snap.Duration <= 0 {
		t.Errorf("duration not aggregated")
	}
}
