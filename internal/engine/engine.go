// Package engine drives bounded-concurrency interaction sessions against
// the identity fleet. One session walks Idle -> Launching -> Interacting
// -> Closing -> Idle; the stored status is running for exactly the span
// between Launching-entry and Closing-exit, on every exit path. Failure
// containment is layered: a command failure is swallowed inside its
// session, a session failure is collected inside its batch, and a batch
// failure only backs the continuous loop off.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hexbound/flock/internal/driver"
	"github.com/hexbound/flock/internal/plan"
	"github.com/hexbound/flock/internal/reply"
	"github.com/hexbound/flock/internal/store"
)

// ErrLaunchFailed marks outcomes where the driver could not establish a
// session.
var ErrLaunchFailed = errors.New("launch failed")

// Config tunes session execution.
type Config struct {
	// GroupSize bounds how many sessions run concurrently.
	GroupSize int
	// GroupPause separates consecutive concurrency groups.
	GroupPause time.Duration
	// MinCommandDelay..MaxCommandDelay is the randomized pause between
	// plan commands.
	MinCommandDelay time.Duration
	MaxCommandDelay time.Duration
	Headless        bool
	UseProxy        bool
}

func DefaultConfig() Config {
	return Config{
		GroupSize:       10,
		GroupPause:      5 * time.Second,
		MinCommandDelay: time.Second,
		MaxCommandDelay: 3 * time.Second,
		Headless:        true,
		UseProxy:        true,
	}
}

// Outcome is the typed result of one session. A session with swallowed
// command failures still counts as a success; only whole-session errors
// (load, launch, bookkeeping) fail it.
type Outcome struct {
	IdentityID      string
	Err             error
	CommandFailures int
	Duration        time.Duration
}

func (o Outcome) Success() bool { return o.Err == nil }

// Engine executes sessions and batches. It holds no per-identity state:
// session handles live on the stack of the goroutine running the session
// and die with it.
type Engine struct {
	store   *store.Store
	driver  driver.Driver
	replier reply.Generator
	planner *plan.Builder
	cfg     Config
	metrics *Metrics

	mu  sync.Mutex
	rng *rand.Rand
}

func New(st *store.Store, drv driver.Driver, rep reply.Generator, planner *plan.Builder, cfg Config) *Engine {
	if cfg.GroupSize <= 0 {
		cfg.GroupSize = DefaultConfig().GroupSize
	}
	return &Engine{
		store:   st,
		driver:  drv,
		replier: rep,
		planner: planner,
		cfg:     cfg,
		metrics: NewMetrics(),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (e *Engine) Metrics() *Metrics { return e.metrics }

// RunSession executes one full launch-interact-close cycle for the
// identity. The stored status is reset to inactive on every exit path,
// including launch failure and cancellation.
func (e *Engine) RunSession(ctx context.Context, identityID string) (outcome Outcome) {
	start := time.Now()
	outcome = Outcome{IdentityID: identityID}
	defer func() {
		outcome.Duration = time.Since(start)
		e.metrics.RecordSession(outcome)
	}()

	ident, err := e.store.GetIdentity(ctx, identityID)
	if err != nil {
		outcome.Err = fmt.Errorf("load identity: %w", err)
		return outcome
	}

	if err := e.store.SetStatus(ctx, ident.ID, store.StatusRunning); err != nil {
		outcome.Err = fmt.Errorf("mark running: %w", err)
		return outcome
	}
	defer func() {
		if err := e.store.SetStatus(context.WithoutCancel(ctx), ident.ID, store.StatusInactive); err != nil {
			log.Error().Err(err).Str("identity", ident.ID).Msg("failed to reset identity status")
		}
	}()

	outcome.Err = e.interact(ctx, ident, &outcome)
	return outcome
}

// interact covers the Launching and Interacting phases; the deferred
// close is the Closing phase and runs regardless of which branch failed.
func (e *Engine) interact(ctx context.Context, ident store.Identity, outcome *Outcome) error {
	var proxy *store.Proxy
	if e.cfg.UseProxy && ident.ProxyID != nil {
		p, err := e.store.GetProxy(ctx, *ident.ProxyID)
		if err != nil {
			log.Warn().Err(err).Str("identity", ident.ID).Msg("proxy unavailable, launching direct")
		} else {
			proxy = &p
		}
	}

	var creds *plan.Credentials
	if ident.AccountID != nil {
		acct, err := e.store.GetAccount(ctx, *ident.AccountID)
		if err != nil {
			log.Warn().Err(err).Str("identity", ident.ID).Msg("linked account unavailable, browsing only")
		} else {
			creds = &plan.Credentials{Address: acct.Address, Secret: acct.Secret}
		}
	}

	spec := driver.NewLaunchSpec(ident.ID, ident.Fingerprint, proxy, e.cfg.Headless)
	sess, err := e.driver.Open(ctx, spec)
	if err != nil {
		e.metrics.RecordLaunchFailure()
		return fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}
	defer func() {
		if err := sess.Close(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Str("identity", ident.ID).Msg("session close failed")
		}
	}()

	for _, cmd := range e.planner.BuildInteractionPlan(creds) {
		if err := e.executeCommand(ctx, sess, cmd); err != nil {
			outcome.CommandFailures++
			e.metrics.RecordCommandFailure()
			log.Warn().Err(err).
				Str("identity", ident.ID).
				Str("command", string(cmd.Kind)).
				Msg("command failed, continuing")
		}
		time.Sleep(e.commandDelay())
	}

	if err := e.store.TouchLastInteraction(context.WithoutCancel(ctx), ident.ID, time.Now().UTC()); err != nil {
		return fmt.Errorf("record interaction: %w", err)
	}
	return nil
}

func (e *Engine) executeCommand(ctx context.Context, sess driver.Session, cmd plan.Command) error {
	switch cmd.Kind {
	case plan.KindNavigate:
		if err := sess.Goto(ctx, cmd.URL); err != nil {
			return err
		}
		if cmd.WaitFor != "" {
			return sess.WaitForSelector(ctx, cmd.WaitFor)
		}
		return nil
	case plan.KindClick:
		index := -1
		if cmd.Index != nil {
			index = *cmd.Index
		}
		return sess.Click(ctx, cmd.Selector, index)
	case plan.KindFill:
		return sess.Fill(ctx, cmd.Selector, cmd.Value)
	case plan.KindScroll:
		return sess.Scroll(ctx, cmd.Direction, cmd.Amount)
	case plan.KindWait:
		time.Sleep(cmd.Wait())
		return nil
	case plan.KindWaitForNavigation:
		return sess.WaitForNavigation(ctx)
	case plan.KindCustomAction:
		if cmd.Action == plan.ActionProcessEmails {
			return e.processEmails(ctx, sess)
		}
		return fmt.Errorf("unknown custom action %q", cmd.Action)
	default:
		return fmt.Errorf("unknown command kind %q", cmd.Kind)
	}
}

// processEmails triages the mailbox: rescue a few messages from spam,
// then reply to recent inbox mail with generated text. A failed or empty
// reply means "do not reply", never a session failure.
func (e *Engine) processEmails(ctx context.Context, sess driver.Session) error {
	if err := sess.Click(ctx, "[data-tooltip='Spam']", -1); err == nil {
		for i := 0; i < 5; i++ {
			if err := sess.Click(ctx, ".zA", i); err != nil {
				break
			}
			_ = sess.Click(ctx, "[data-tooltip='Not spam']", -1)
			_ = sess.Click(ctx, "[data-tooltip='Mark as important']", -1)
		}
	}

	if err := sess.Click(ctx, "[data-tooltip='Inbox']", -1); err != nil {
		return err
	}

	for i := 0; i < 3; i++ {
		if err := sess.Click(ctx, ".zA", i); err != nil {
			break
		}
		text, err := sess.InnerText(ctx, ".ii.gt")
		if err != nil || len(text) < 50 {
			continue
		}
		draft, err := e.replier.GenerateReply(ctx, text)
		if err != nil {
			log.Debug().Err(err).Msg("reply generation failed, skipping")
			continue
		}
		if draft == "" {
			continue
		}
		if err := sess.Click(ctx, "[data-tooltip='Reply']", -1); err != nil {
			continue
		}
		if err := sess.Fill(ctx, "[contenteditable='true']", draft); err != nil {
			continue
		}
		_ = sess.Click(ctx, "[data-tooltip='Send']", -1)
	}
	return nil
}

func (e *Engine) commandDelay() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	spread := e.cfg.MaxCommandDelay - e.cfg.MinCommandDelay
	if spread <= 0 {
		return e.cfg.MinCommandDelay
	}
	return e.cfg.MinCommandDelay + time.Duration(e.rng.Int63n(int64(spread)))
}

// BatchReport aggregates the outcomes of one batch run.
type BatchReport struct {
	Total     int
	Succeeded int
	Failed    int
	Outcomes  []Outcome
}

// RunBatch selects due identities and runs their sessions in fixed-size
// concurrency groups: each group's sessions run concurrently, the group
// is joined in full (collecting, not propagating, failures) before the
// next starts, with a pause between groups. Batch completion never
// depends on any single session's success.
func (e *Engine) RunBatch(ctx context.Context, targetSize int) (BatchReport, error) {
	batch, err := e.SelectBatch(ctx, targetSize, 0)
	if err != nil {
		return BatchReport{}, fmt.Errorf("select batch: %w", err)
	}

	report := BatchReport{Total: len(batch.IdentityIDs)}
	log.Info().Int("identities", report.Total).Int("group_size", e.cfg.GroupSize).Msg("starting batch")

	groups := chunkIDs(batch.IdentityIDs, e.cfg.GroupSize)
	for gi, group := range groups {
		for _, outcome := range e.runGroup(ctx, group) {
			report.Outcomes = append(report.Outcomes, outcome)
			if outcome.Success() {
				report.Succeeded++
			} else {
				report.Failed++
				log.Warn().Err(outcome.Err).Str("identity", outcome.IdentityID).Msg("session failed")
			}
		}
		if gi < len(groups)-1 {
			time.Sleep(e.cfg.GroupPause)
		}
	}

	log.Info().Int("succeeded", report.Succeeded).Int("failed", report.Failed).Msg("batch complete")
	return report, nil
}

// runGroup fans the group's sessions out, joins all of them, and collects
// every outcome explicitly.
func (e *Engine) runGroup(ctx context.Context, ids []string) []Outcome {
	results := make(chan Outcome, len(ids))
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			results <- e.RunSession(ctx, id)
		}(id)
	}
	wg.Wait()
	close(results)

	outcomes := make([]Outcome, 0, len(ids))
	for o := range results {
		outcomes = append(outcomes, o)
	}
	return outcomes
}
