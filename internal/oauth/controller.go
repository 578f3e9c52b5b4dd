// controller.go -- Login state machine.
//
// A Controller lives for one page load. It holds no persistent state of its
// own: whether the visitor is logged in is recomputed from the cookie cache
// and the current URL every time.
//
//	CHECKING --sufficient cache--------------------------> RESOLVED (logged in)
//	CHECKING --no code in URL--> REDIRECTING ------------> (navigated away)
//	CHECKING --code in URL-----> EXCHANGING --ok/failed--> RESOLVED
package oauth

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/MGallo-Code/wxauth/internal/session"
)

// Page is the redirect surface: the current page's full URL and the ability
// to send the browser somewhere else. Navigate ends the page load.
type Page interface {
	CurrentURL() string
	Navigate(url string)
}

// Phase is the controller's observable state.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseChecking
	PhaseRedirecting
	PhaseExchanging
	PhaseResolved
)

func (p Phase) String() string {
	switch p {
	case PhaseChecking:
		return "checking"
	case PhaseRedirecting:
		return "redirecting"
	case PhaseExchanging:
		return "exchanging"
	case PhaseResolved:
		return "resolved"
	default:
		return "idle"
	}
}

// Outcome is how a page load was resolved.
type Outcome int

const (
	OutcomeNone Outcome = iota
	// OutcomeLoggedIn: cached identity was sufficient, nothing else happened.
	OutcomeLoggedIn
	// OutcomeRedirected: the browser was sent to the provider.
	OutcomeRedirected
	// OutcomeExchanged: a code was exchanged and a sufficient identity cached.
	OutcomeExchanged
	// OutcomeFailed: the exchange failed and OnExchangeFailure ran.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeLoggedIn:
		return "logged_in"
	case OutcomeRedirected:
		return "redirected"
	case OutcomeExchanged:
		return "exchanged"
	case OutcomeFailed:
		return "failed"
	default:
		return "none"
	}
}

// Controller drives one page load through the login flow.
type Controller struct {
	cfg       ClientConfig
	cache     *session.Cache
	transport Transport
	page      Page

	phase    atomic.Int32
	inFlight atomic.Bool
}

// NewController wires a controller for one page load. cfg must come from
// ClientConfig.Normalize.
func NewController(cfg ClientConfig, cache *session.Cache, transport Transport, page Page) *Controller {
	return &Controller{
		cfg:       cfg,
		cache:     cache,
		transport: transport,
		page:      page,
	}
}

// Phase reports the current phase.
func (c *Controller) Phase() Phase {
	return Phase(c.phase.Load())
}

func (c *Controller) setPhase(p Phase) {
	c.phase.Store(int32(p))
}

// enter claims the one-shot in-flight flag. The returned func releases it.
func (c *Controller) enter() (func(), error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return nil, ErrLoginInProgress
	}
	return func() {
		c.setPhase(PhaseResolved)
		c.inFlight.Store(false)
	}, nil
}

// Init is the per-page-load entry point. A sufficient cached identity ends the
// flow with no network call and no redirect; otherwise Login runs.
// Errors are storage failures only; exchange failures go to OnExchangeFailure.
func (c *Controller) Init(ctx context.Context) (Outcome, error) {
	done, err := c.enter()
	if err != nil {
		return OutcomeNone, err
	}
	defer done()

	c.setPhase(PhaseChecking)
	id, _, err := c.cache.Get(c.cfg.AppID)
	if err != nil {
		return OutcomeNone, fmt.Errorf("reading cached identity: %w", err)
	}
	if IsLoggedIn(c.cfg.Scope, id) {
		return OutcomeLoggedIn, nil
	}
	return c.login(ctx)
}

// Login exchanges the code in the current URL, or redirects to the provider
// when there is none.
func (c *Controller) Login(ctx context.Context) (Outcome, error) {
	done, err := c.enter()
	if err != nil {
		return OutcomeNone, err
	}
	defer done()
	return c.login(ctx)
}

func (c *Controller) login(ctx context.Context) (Outcome, error) {
	leg := ParseReturnLeg(c.page.CurrentURL())
	if leg.Code != "" {
		return c.exchange(ctx, leg.Code, leg.State)
	}
	if leg.Malformed {
		slog.DebugContext(ctx, "malformed return leg, starting over", "app_id", c.cfg.AppID)
	}
	return c.redirectToProvider()
}

// Exchange trades code for identity fields via the exchange endpoint and
// caches them. Transport and mapping failures are routed to
// OnExchangeFailure and reported as OutcomeFailed with a nil error; the cache
// is left untouched. An identity that does not satisfy the scope counts as a
// mapping failure. Returned errors are storage or serialization failures.
func (c *Controller) Exchange(ctx context.Context, code, state string) (Outcome, error) {
	done, err := c.enter()
	if err != nil {
		return OutcomeNone, err
	}
	defer done()
	return c.exchange(ctx, code, state)
}

func (c *Controller) exchange(ctx context.Context, code, state string) (Outcome, error) {
	c.setPhase(PhaseExchanging)

	if c.cfg.StrictState && state != c.cfg.State {
		c.fail(ctx, &ExchangeError{Op: "verify state", Err: ErrStateMismatch})
		return OutcomeFailed, nil
	}

	// The flow nonce ties a cached exchange result to the browser that was
	// sent to the provider.
	flow, err := c.cache.Flow(c.cfg.AppID)
	if err != nil {
		return OutcomeNone, fmt.Errorf("reading login flow: %w", err)
	}

	raw, err := c.transport.Post(withFlow(ctx, flow), c.cfg.ExchangeEndpoint, exchangeRequest{Code: code, State: state})
	if err != nil {
		c.fail(ctx, &ExchangeError{Op: "post", Err: err})
		return OutcomeFailed, nil
	}

	id, err := c.mapResponse(raw)
	if err != nil {
		c.fail(ctx, &ExchangeError{Op: "map response", Err: err})
		return OutcomeFailed, nil
	}
	if !IsLoggedIn(c.cfg.Scope, id) {
		c.fail(ctx, &ExchangeError{Op: "map response", Err: ErrInsufficientIdentity})
		return OutcomeFailed, nil
	}

	if err := c.cache.Set(c.cfg.AppID, id, c.cfg.SessionTTLDays); err != nil {
		return OutcomeNone, fmt.Errorf("caching identity: %w", err)
	}
	if flow != "" {
		if err := c.cache.ClearFlow(c.cfg.AppID); err != nil {
			return OutcomeNone, fmt.Errorf("clearing login flow: %w", err)
		}
	}
	return OutcomeExchanged, nil
}

// mapResponse runs OnExchangeSuccess, converting a panic into an error.
func (c *Controller) mapResponse(raw []byte) (id session.Identity, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("exchange mapper panicked: %v", r)
		}
	}()
	return c.cfg.OnExchangeSuccess(raw)
}

func (c *Controller) fail(ctx context.Context, err error) {
	c.cfg.OnExchangeFailure(ctx, err)
}

// OAuth forces a fresh provider redirect, purging the cached identity first.
// Used for explicit account switching.
func (c *Controller) OAuth() (Outcome, error) {
	defer c.setPhase(PhaseResolved)
	return c.redirectToProvider()
}

// redirectToProvider clears stale entries so the next Init cannot
// short-circuit on the old account, then navigates to the provider.
func (c *Controller) redirectToProvider() (Outcome, error) {
	c.setPhase(PhaseRedirecting)
	if err := c.cache.Clear(c.cfg.AppID); err != nil {
		return OutcomeNone, fmt.Errorf("clearing cached identity: %w", err)
	}
	flow, err := newNonce()
	if err != nil {
		return OutcomeNone, fmt.Errorf("generating login flow: %w", err)
	}
	if err := c.cache.SetFlow(c.cfg.AppID, flow, FlowTTL); err != nil {
		return OutcomeNone, fmt.Errorf("starting login flow: %w", err)
	}
	c.page.Navigate(AuthorizeURL(c.cfg, c.page.CurrentURL()))
	return OutcomeRedirected, nil
}

// UserInfo returns the cached profile, or an empty map when there is none.
func (c *Controller) UserInfo() (map[string]any, error) {
	return c.cache.Profile(c.cfg.AppID)
}
