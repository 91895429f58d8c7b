// Package plan expands an identity into the ordered sequence of abstract
// automation steps a session will execute. Expansion is template-driven:
// a webmail login segment with identity-bound substitutions, followed by
// exploratory browsing with randomized targets and delays.
package plan

import (
	"math/rand"
	"sync"
	"time"
)

// Kind discriminates the command variants.
type Kind string

const (
	KindNavigate          Kind = "navigate"
	KindClick             Kind = "click"
	KindFill              Kind = "fill"
	KindScroll            Kind = "scroll"
	KindWait              Kind = "wait"
	KindWaitForNavigation Kind = "wait_for_navigation"
	KindCustomAction      Kind = "custom_action"
)

// ActionProcessEmails is the custom action handled by the execution
// engine: triage the mailbox and reply with generated text.
const ActionProcessEmails = "process_emails"

// Command is one abstract automation step. Only the fields relevant to
// its Kind are set; the JSON shape doubles as the persisted command_data
// payload in the store.
type Command struct {
	Kind        Kind   `json:"type"`
	URL         string `json:"url,omitempty"`
	WaitFor     string `json:"wait_for,omitempty"`
	Selector    string `json:"selector,omitempty"`
	Value       string `json:"value,omitempty"`
	Index       *int   `json:"index,omitempty"`
	Direction   string `json:"direction,omitempty"`
	Amount      int    `json:"amount,omitempty"`
	DurationMS  int    `json:"duration,omitempty"`
	Action      string `json:"action,omitempty"`
	Description string `json:"description,omitempty"`
}

// Wait returns the pause a wait command encodes.
func (c Command) Wait() time.Duration {
	return time.Duration(c.DurationMS) * time.Millisecond
}

// Credentials are the identity-bound substitutions for the login segment.
type Credentials struct {
	Address string
	Secret  string
}

var browseTargets = []string{
	"https://news.google.com",
	"https://www.reddit.com",
	"https://stackoverflow.com",
}

// Builder expands interaction plans. Randomized parameters come from the
// injected source; a mutex makes the Builder shareable across concurrent
// sessions.
type Builder struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewBuilder(rng *rand.Rand) *Builder {
	return &Builder{rng: rng}
}

// BuildInteractionPlan returns the full plan for one session. With nil or
// address-less credentials the login segment is omitted entirely rather
// than emitted with empty substitutions, and the plan is browsing-only.
func (b *Builder) BuildInteractionPlan(creds *Credentials) []Command {
	b.mu.Lock()
	defer b.mu.Unlock()

	var cmds []Command
	if creds != nil && creds.Address != "" {
		cmds = append(cmds, b.loginSegment(*creds)...)
	}
	return append(cmds, b.browsingSegment()...)
}

func (b *Builder) loginSegment(creds Credentials) []Command {
	return []Command{
		{Kind: KindNavigate, URL: "https://gmail.com", WaitFor: "input[type='email']"},
		{Kind: KindFill, Selector: "input[type='email']", Value: creds.Address},
		{Kind: KindClick, Selector: "#identifierNext"},
		{Kind: KindWait, DurationMS: 2000},
		{Kind: KindFill, Selector: "input[type='password']", Value: creds.Secret},
		{Kind: KindClick, Selector: "#passwordNext"},
		{Kind: KindWaitForNavigation},
		{Kind: KindScroll, Direction: "down", Amount: 300},
		{Kind: KindClick, Selector: "[data-tooltip='Inbox']"},
		{Kind: KindCustomAction, Action: ActionProcessEmails,
			Description: "Check spam, rescue important mail, reply with generated text"},
	}
}

func (b *Builder) browsingSegment() []Command {
	idx := b.rng.Intn(6)
	return []Command{
		{Kind: KindNavigate, URL: browseTargets[b.rng.Intn(len(browseTargets))]},
		{Kind: KindScroll, Direction: "down", Amount: 200 + b.rng.Intn(301)},
		{Kind: KindWait, DurationMS: 1000 + b.rng.Intn(2001)},
		{Kind: KindClick, Selector: "a", Index: &idx},
	}
}
