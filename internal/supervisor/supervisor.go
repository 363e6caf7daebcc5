// Package supervisor owns the OPC UA session: it drives the
// connection state machine, runs the keepalive probe, and schedules
// exponential-backoff reconnects. All other components treat it as a
// passive dependency — they check its state before issuing I/O and
// never attempt to mutate it directly.
package supervisor

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/scadaworks/opcua-runtime/internal/errs"
	"github.com/scadaworks/opcua-runtime/internal/events"
)

// currentTimeNodeID is ns=0;i=2258, Server_ServerStatus_CurrentTime —
// the standard attribute every OPC UA server exposes, used as the
// connect probe and the keepalive heartbeat.
var currentTimeNodeID = ua.NewNumericNodeID(0, 2258)

// Identity selects the session's user token.
type Identity struct {
	Anonymous bool
	Username  string
	Password  string
}

// Config is the supervisor's immutable connection configuration.
type Config struct {
	EndpointURL    string
	SecurityPolicy string // "" = accept any; else one of ua.SecurityPolicyURI*
	SecurityMode   ua.MessageSecurityMode
	Identity       Identity
	ApplicationURI string
	DialTimeout    time.Duration
	Policy         ReconnectPolicy
}

// Supervisor owns a single *opcua.Client across its whole lifetime,
// including through reconnects — the pointer itself is replaced on
// each successful (re)connect, never mutated in place.
type Supervisor struct {
	cfg    Config
	events *events.Plane

	mu       sync.RWMutex
	client   *opcua.Client
	machine  *machineHandle
	attempt  int32
	lastGood time.Time

	stopOnce sync.Once
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	newClient func(endpoint string, opts ...opcua.Option) (*opcua.Client, error)
	getEPs    func(ctx context.Context, endpoint string, opts ...opcua.Option) ([]*ua.EndpointDescription, error)
}

// machineHandle wraps the fsm.FSM behind a mutex; looplab/fsm is not
// safe for concurrent Event calls.
type machineHandle struct {
	mu sync.Mutex
	m  interface {
		Current() string
		Event(ctx context.Context, event string, args ...interface{}) error
	}
}

func (h *machineHandle) fire(ctx context.Context, event string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.m.Event(ctx, event)
}

func (h *machineHandle) current() ConnectionState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return parseState(h.m.Current())
}

// New constructs a Supervisor in the Disconnected state. It does not
// connect until Start (or Connect) is called.
func New(cfg Config, plane *events.Plane) *Supervisor {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 30 * time.Second
	}
	if cfg.Policy == (ReconnectPolicy{}) {
		cfg.Policy = DefaultReconnectPolicy()
	}

	s := &Supervisor{cfg: cfg, events: plane}
	s.machine = &machineHandle{m: newMachine(s.onTransition)}
	s.newClient = opcua.NewClient
	s.getEPs = opcua.GetEndpoints
	return s
}

func (s *Supervisor) onTransition(ctx context.Context, prev, next ConnectionState) {
	s.events.PublishStateChanged(events.StateTransition{Prev: prev.String(), Next: next.String(), At: time.Now()})
	switch next {
	case Connected:
		s.events.PublishConnected()
	case Disconnected:
		s.events.PublishDisconnected()
	case Reconnecting:
		s.events.PublishConnectionLost()
	}
}

// State returns the supervisor's current connection state.
func (s *Supervisor) State() ConnectionState { return s.machine.current() }

// IsConnected reports whether State() == Connected. Callers above the
// supervisor (the pipeline, the subscription engine) must check this
// before issuing any wire operation — the supervisor is a passive
// dependency and never blocks a caller waiting to become connected.
func (s *Supervisor) IsConnected() bool { return s.machine.current() == Connected }

// Client returns the live *opcua.Client, or nil if not Connected. The
// returned pointer is safe to use for one call; it may become invalid
// the instant a reconnect starts, so callers must check State() first
// and tolerate the race by treating a failed call as transient.
func (s *Supervisor) Client() *opcua.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.machine.current() != Connected {
		return nil
	}
	return s.client
}

// Start connects (blocking for the first attempt) then launches the
// keepalive loop. If the first attempt fails with anything other than
// an authentication failure, it also launches the background-reconnect
// loop.
func (s *Supervisor) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	err := s.Connect(ctx)

	s.wg.Add(1)
	go s.keepaliveLoop(runCtx)

	// A failed first attempt leaves the machine in Connecting (an auth
	// failure has already moved it to Error).
	if err != nil && s.machine.current() == Connecting && s.machine.fire(runCtx, "retry_failed") == nil {
		s.wg.Add(1)
		go s.reconnectLoop(runCtx)
	}

	return err
}

// Stop cancels background loops and closes the session.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
		s.closeClient()
		_ = s.machine.fire(context.Background(), "disconnect")
	})
}

// Connect performs one connect attempt: endpoint discovery, identity,
// handshake, and a current-time probe. On success it resets the
// reconnect attempt counter and transitions to Connected.
func (s *Supervisor) Connect(ctx context.Context) error {
	if err := s.machine.fire(ctx, "connect"); err != nil {
		// Already connecting/connected elsewhere; not itself an error
		// for an idempotent external Connect() call when state is
		// already Connected.
		if s.machine.current() == Connected {
			return nil
		}
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	defer cancel()

	client, err := s.dial(dialCtx)
	if err != nil {
		if isAuthFailure(err) {
			_ = s.machine.fire(ctx, "fail")
			return errs.Wrap(errs.AuthFailed, "authentication rejected", err)
		}
		return errs.Wrap(errs.EndpointUnreachable, "connect failed", err)
	}

	if err := s.probe(dialCtx, client); err != nil {
		_ = client.Close(context.Background())
		return errs.Wrap(errs.Timeout, "connect probe failed", err)
	}

	s.mu.Lock()
	s.closeClientLocked()
	s.client = client
	s.lastGood = time.Now()
	s.mu.Unlock()

	atomic.StoreInt32(&s.attempt, 0)
	return s.machine.fire(ctx, "connected")
}

func (s *Supervisor) dial(ctx context.Context) (*opcua.Client, error) {
	endpoints, err := s.getEPs(ctx, s.cfg.EndpointURL)
	if err != nil {
		return nil, err
	}

	ep := selectEndpoint(endpoints, s.cfg.SecurityPolicy, s.cfg.SecurityMode)
	if ep == nil {
		return nil, errs.New(errs.EndpointUnreachable, "no endpoint matches requested security policy")
	}

	tokenType := ua.UserTokenTypeAnonymous
	if !s.cfg.Identity.Anonymous {
		tokenType = ua.UserTokenTypeUserName
	}

	opts := []opcua.Option{
		opcua.SecurityFromEndpoint(ep, tokenType),
		opcua.ApplicationURI(nonEmpty(s.cfg.ApplicationURI, "urn:scadaworks:opcua-runtime")),
	}
	if !s.cfg.Identity.Anonymous {
		opts = append(opts, opcua.AuthUsername(s.cfg.Identity.Username, s.cfg.Identity.Password))
	}

	connectURL := ep.EndpointURL
	if connectURL == "" {
		connectURL = s.cfg.EndpointURL
	}

	client, err := s.newClient(connectURL, opts...)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

func (s *Supervisor) probe(ctx context.Context, client *opcua.Client) error {
	resp, err := client.Read(ctx, &ua.ReadRequest{
		NodesToRead: []*ua.ReadValueID{{NodeID: currentTimeNodeID, AttributeID: ua.AttributeIDValue}},
	})
	if err != nil {
		return err
	}
	if len(resp.Results) == 0 || resp.Results[0].Status != ua.StatusOK {
		return errs.New(errs.ServerStatusBad, "current-time probe returned bad status")
	}
	return nil
}

// keepaliveLoop fires at cfg.Policy.KeepaliveInterval. On failure it
// transitions to Reconnecting and starts the reconnect loop.
func (s *Supervisor) keepaliveLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.Policy.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.machine.current() != Connected {
				continue
			}
			if err := s.keepaliveOnce(ctx); err != nil {
				if s.machine.fire(ctx, "lost") == nil {
					s.wg.Add(1)
					go s.reconnectLoop(ctx)
				}
			}
		}
	}
}

func (s *Supervisor) keepaliveOnce(ctx context.Context) error {
	client := s.Client()
	if client == nil {
		return errs.New(errs.NotConnected, "no active client")
	}
	kaCtx, cancel := context.WithTimeout(ctx, s.cfg.Policy.KeepaliveTimeout)
	defer cancel()
	if err := s.probe(kaCtx, client); err != nil {
		return err
	}
	s.mu.Lock()
	s.lastGood = time.Now()
	s.mu.Unlock()
	s.events.PublishKeepalive()
	return nil
}

// reconnectLoop retries Connect with exponential backoff until it
// succeeds, max_retries is exhausted (→ Error), or ctx is cancelled.
func (s *Supervisor) reconnectLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		n := int(atomic.LoadInt32(&s.attempt))
		if s.cfg.Policy.MaxRetries > 0 && n >= s.cfg.Policy.MaxRetries {
			_ = s.machine.fire(ctx, "fail")
			return
		}

		delay := Delay(n, s.cfg.Policy, defaultJitter)
		s.events.PublishReconnecting(events.ReconnectAttempt{Attempt: n + 1, DelayMS: delay.Milliseconds(), At: time.Now()})

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		atomic.AddInt32(&s.attempt, 1)
		if err := s.machine.fire(ctx, "retry"); err != nil {
			return
		}

		connectCtx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
		client, err := s.dial(connectCtx)
		cancel()
		if err != nil {
			if isAuthFailure(err) {
				_ = s.machine.fire(ctx, "fail")
				return
			}
			_ = s.machine.fire(ctx, "retry_failed")
			continue
		}

		probeCtx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
		err = s.probe(probeCtx, client)
		cancel()
		if err != nil {
			_ = client.Close(context.Background())
			_ = s.machine.fire(ctx, "retry_failed")
			continue
		}

		s.mu.Lock()
		s.closeClientLocked()
		s.client = client
		s.lastGood = time.Now()
		s.mu.Unlock()

		atomic.StoreInt32(&s.attempt, 0)
		_ = s.machine.fire(ctx, "connected")
		return
	}
}

func (s *Supervisor) closeClient() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeClientLocked()
}

func (s *Supervisor) closeClientLocked() {
	if s.client != nil {
		_ = s.client.Close(context.Background())
		s.client = nil
	}
}

func defaultJitter() float64 { return rand.Float64()*2 - 1 }

func nonEmpty(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func isAuthFailure(err error) bool {
	code, ok := err.(ua.StatusCode)
	if !ok {
		return false
	}
	switch code {
	case ua.StatusBadUserAccessDenied, ua.StatusBadIdentityTokenInvalid,
		ua.StatusBadIdentityTokenRejected, ua.StatusBadUserSignatureInvalid:
		return true
	default:
		return false
	}
}

func selectEndpoint(endpoints []*ua.EndpointDescription, policyURI string, mode ua.MessageSecurityMode) *ua.EndpointDescription {
	if policyURI == "" {
		var best *ua.EndpointDescription
		for _, ep := range endpoints {
			if best == nil || ep.SecurityMode > best.SecurityMode {
				best = ep
			}
		}
		return best
	}
	for _, ep := range endpoints {
		if ep.SecurityPolicyURI == policyURI && (mode == 0 || ep.SecurityMode == mode) {
			return ep
		}
	}
	for _, ep := range endpoints {
		if ep.SecurityPolicyURI == policyURI {
			return ep
		}
	}
	return nil
}
