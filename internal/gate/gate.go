// Package gate implements the login attempt gate: a failed-attempt counter
// that locks further logins once it reaches a ceiling, persisted to a local
// cache first and replicated to the remote document store on a best-effort
// basis.
//
// The gate fails open. A missing or unreachable remote store leaves it
// running on local state, and a corrupt local cache is replaced by defaults.
package gate

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"mom-admin-api/internal/docstore"
	"mom-admin-api/internal/localcache"
	"mom-admin-api/internal/models"

	"github.com/rs/zerolog"
)

const (
	DefaultMaxAttempts        = 10
	DefaultConfigPath         = "config/login"
	DefaultLocalKey           = "login_config"
	DefaultRemoteWriteTimeout = 2 * time.Second
	DefaultRemoteLoadTimeout  = 3 * time.Second
)

// Event names passed to Options.OnChange.
const (
	EventFailure = "failure"
	EventSuccess = "success"
	EventReset   = "reset"
	EventRemote  = "remote"
)

var errTimeout = errors.New("remote call timed out")

// now is a small indirection to allow test stubbing.
var now = time.Now

// State is a snapshot of the gate.
type State struct {
	MaxAttempts     int       `json:"maxAttempts"`
	CurrentAttempts int       `json:"currentAttempts"`
	Locked          bool      `json:"locked"`
	LastAttempt     time.Time `json:"lastAttempt,omitzero"`
}

// Remaining returns MaxAttempts - CurrentAttempts, floored at 0.
func (s State) Remaining() int {
	if r := s.MaxAttempts - s.CurrentAttempts; r > 0 {
		return r
	}
	return 0
}

func (s State) document() models.LoginConfig {
	cfg := models.LoginConfig{
		MaxAttempts:     s.MaxAttempts,
		Locked:          s.Locked,
		CurrentAttempts: s.CurrentAttempts,
	}
	if !s.LastAttempt.IsZero() {
		cfg.LastAttempt = s.LastAttempt.UTC().Format(time.RFC3339Nano)
	}
	return cfg
}

// stateFrom converts a stored document into a State that satisfies the
// gate invariants. A document marked locked is taken as exhausted.
func stateFrom(cfg models.LoginConfig, fallbackMax int) State {
	s := State{MaxAttempts: cfg.MaxAttempts, CurrentAttempts: cfg.CurrentAttempts}
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = fallbackMax
	}
	if s.CurrentAttempts < 0 {
		s.CurrentAttempts = 0
	}
	if cfg.Locked || s.CurrentAttempts > s.MaxAttempts {
		s.CurrentAttempts = s.MaxAttempts
	}
	s.Locked = s.CurrentAttempts == s.MaxAttempts
	if t, err := time.Parse(time.RFC3339Nano, cfg.LastAttempt); err == nil {
		s.LastAttempt = t
	}
	return s
}

// Options configures a Gate. Zero values take defaults.
type Options struct {
	MaxAttempts        int
	ConfigPath         string
	LocalKey           string
	RemoteWriteTimeout time.Duration
	RemoteLoadTimeout  time.Duration
	Logger             zerolog.Logger
	// OnChange, when set, is called after every state change with the
	// event name and the new state. It must not call back into the gate.
	OnChange func(event string, s State)
}

func (o *Options) withDefaults() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.ConfigPath == "" {
		o.ConfigPath = DefaultConfigPath
	}
	if o.LocalKey == "" {
		o.LocalKey = DefaultLocalKey
	}
	if o.RemoteWriteTimeout <= 0 {
		o.RemoteWriteTimeout = DefaultRemoteWriteTimeout
	}
	if o.RemoteLoadTimeout <= 0 {
		o.RemoteLoadTimeout = DefaultRemoteLoadTimeout
	}
}

// Gate tracks consecutive failed logins. It is safe for concurrent use.
type Gate struct {
	mu      sync.Mutex
	state   State
	touched bool // a local mutation happened; a late remote load must not overwrite it
	closed  bool
	seq     uint64

	writeMu sync.Mutex
	written uint64 // seq of the newest remote write attempted

	local  localcache.Store
	remote docstore.Store
	opts   Options
	log    zerolog.Logger

	ready       chan struct{}
	readyOnce   sync.Once
	startOnce   sync.Once
	unsubscribe func()
	wg          sync.WaitGroup
}

// New builds a gate from the local cache. It never blocks on the remote
// store; call Start to reconcile with it. remote may be nil for local-only
// operation.
func New(local localcache.Store, remote docstore.Store, opts Options) *Gate {
	opts.withDefaults()
	g := &Gate{
		local:  local,
		remote: remote,
		opts:   opts,
		log:    opts.Logger.With().Str("component", "gate").Logger(),
		ready:  make(chan struct{}),
		state:  State{MaxAttempts: opts.MaxAttempts},
	}
	g.loadLocal()
	return g
}

func (g *Gate) loadLocal() {
	raw, ok := g.local.Get(g.opts.LocalKey)
	if !ok || raw == "" {
		return
	}
	var cfg models.LoginConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		g.log.Warn().Err(err).Msg("ignoring unreadable local login state; using defaults")
		return
	}
	g.state = stateFrom(cfg, g.opts.MaxAttempts)
}

// Start reconciles with the remote store in the background and then
// subscribes to pushed updates. Ready is closed once the remote load
// finished, failed or ran out of time, whichever comes first.
func (g *Gate) Start(ctx context.Context) {
	g.startOnce.Do(func() {
		if g.remote == nil {
			g.markReady()
			return
		}
		g.mu.Lock()
		if g.closed {
			g.mu.Unlock()
			g.markReady()
			return
		}
		g.wg.Add(1)
		g.mu.Unlock()
		go g.loadRemote(ctx)
	})
}

// Ready is closed when the initial remote load has settled.
func (g *Gate) Ready() <-chan struct{} {
	return g.ready
}

// IsReady reports whether Ready has been closed.
func (g *Gate) IsReady() bool {
	select {
	case <-g.ready:
		return true
	default:
		return false
	}
}

func (g *Gate) markReady() {
	g.readyOnce.Do(func() { close(g.ready) })
}

func (g *Gate) loadRemote(ctx context.Context) {
	defer g.wg.Done()
	defer g.markReady()

	var cfg models.LoginConfig
	err := race(ctx, g.opts.RemoteLoadTimeout, func(ctx context.Context) error {
		return docstore.ReadInto(ctx, g.remote, g.opts.ConfigPath, &cfg)
	})

	switch {
	case err == nil:
		g.applyRemote(cfg, "initial load")
	case errors.Is(err, docstore.ErrNotFound):
		g.bootstrapRemote()
	default:
		g.log.Warn().Err(err).Msg("remote login state unavailable; continuing with local state")
	}

	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if closed {
		return
	}

	unsubscribe := g.remote.Subscribe(g.opts.ConfigPath, g.onPush)
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		unsubscribe()
		return
	}
	g.unsubscribe = unsubscribe
	g.mu.Unlock()
}

// bootstrapRemote writes a fresh default document on first run, unless a
// local mutation has already been replicated.
func (g *Gate) bootstrapRemote() {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	if g.written > 0 {
		return
	}
	doc := State{MaxAttempts: g.opts.MaxAttempts}.document()
	if err := g.writeRemote(doc); err != nil {
		g.log.Warn().Err(err).Msg("could not create remote login state")
		return
	}
	g.log.Info().Str("path", g.opts.ConfigPath).Msg("created default remote login state")
}

func (g *Gate) applyRemote(cfg models.LoginConfig, source string) {
	g.mu.Lock()
	if g.touched {
		g.mu.Unlock()
		g.log.Debug().Str("source", source).Msg("discarding remote login state; local session already advanced")
		return
	}
	g.state = stateFrom(cfg, g.opts.MaxAttempts)
	snap := g.state
	g.persistLocalLocked(snap)
	g.mu.Unlock()

	g.notify(EventRemote, snap)
}

// onPush adopts a document pushed by the store unless it is an echo of a
// write this gate already made (its lastAttempt is not newer than ours).
func (g *Gate) onPush(raw json.RawMessage) {
	var cfg models.LoginConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		g.log.Warn().Err(err).Msg("ignoring malformed pushed login state")
		return
	}
	pushed := stateFrom(cfg, g.opts.MaxAttempts)

	g.mu.Lock()
	if !pushed.LastAttempt.IsZero() && !pushed.LastAttempt.After(g.state.LastAttempt) {
		g.mu.Unlock()
		return
	}
	wasLocked := g.state.Locked
	g.state = pushed
	g.persistLocalLocked(pushed)
	g.mu.Unlock()

	if wasLocked && !pushed.Locked {
		g.log.Info().Msg("login lockout cleared by remote update")
	}
	g.notify(EventRemote, pushed)
}

// RecordFailure counts a failed login, locking the gate when the count
// reaches MaxAttempts, and returns the new state.
func (g *Gate) RecordFailure() State {
	var wasLocked bool
	snap := g.mutate(EventFailure, func(s *State) {
		wasLocked = s.Locked
		if s.CurrentAttempts < s.MaxAttempts {
			s.CurrentAttempts++
		}
		s.Locked = s.CurrentAttempts == s.MaxAttempts
	})
	if snap.Locked && !wasLocked {
		g.log.Warn().Int("maxAttempts", snap.MaxAttempts).Msg("login locked after too many failed attempts")
	}
	return snap
}

// RecordSuccess clears the failure count and the lock.
func (g *Gate) RecordSuccess() State {
	return g.mutate(EventSuccess, resetCounter)
}

// Reset is the explicit administrator unlock. It has the same effect as
// RecordSuccess.
func (g *Gate) Reset() State {
	snap := g.mutate(EventReset, resetCounter)
	g.log.Info().Msg("login lockout reset by administrator")
	return snap
}

func resetCounter(s *State) {
	s.CurrentAttempts = 0
	s.Locked = false
}

// mutate applies fn, writes the local cache synchronously and hands the
// remote write to a goroutine.
func (g *Gate) mutate(event string, fn func(*State)) State {
	g.mu.Lock()
	fn(&g.state)
	g.state.LastAttempt = now()
	g.touched = true
	snap := g.state
	g.persistLocalLocked(snap)

	replicate := g.remote != nil && !g.closed
	var seq uint64
	if replicate {
		g.seq++
		seq = g.seq
		g.wg.Add(1)
	}
	g.mu.Unlock()

	if replicate {
		go g.replicate(seq, snap.document())
	}
	g.notify(event, snap)
	return snap
}

func (g *Gate) persistLocalLocked(s State) {
	raw, err := json.Marshal(s.document())
	if err != nil {
		g.log.Error().Err(err).Msg("encode local login state")
		return
	}
	if err := g.local.Set(g.opts.LocalKey, string(raw)); err != nil {
		g.log.Warn().Err(err).Msg("could not write local login state")
	}
}

// replicate writes doc to the remote store unless a newer write was
// already attempted. Failures and timeouts are logged and dropped.
func (g *Gate) replicate(seq uint64, doc models.LoginConfig) {
	defer g.wg.Done()

	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	if seq <= g.written {
		return
	}
	g.written = seq

	if err := g.writeRemote(doc); err != nil {
		g.log.Warn().Err(err).Msg("remote login state write failed; local state kept")
	}
}

// writeRemote reports the write's error or its timeout, but returns only
// once the store call itself has returned. Callers hold writeMu, so a store
// that ignores ctx cannot land an old document after a newer one.
func (g *Gate) writeRemote(doc models.LoginConfig) error {
	finished := make(chan struct{})
	err := race(context.Background(), g.opts.RemoteWriteTimeout, func(ctx context.Context) error {
		defer close(finished)
		return g.remote.Write(ctx, g.opts.ConfigPath, doc)
	})
	if errors.Is(err, errTimeout) {
		g.log.Debug().Msg("remote login state write timed out; waiting for it to return")
	}
	<-finished
	return err
}

func (g *Gate) notify(event string, s State) {
	if g.opts.OnChange != nil {
		g.opts.OnChange(event, s)
	}
}

// IsLocked reports whether the gate is locked.
func (g *Gate) IsLocked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.Locked
}

// RemainingAttempts returns how many failures are left before the lock.
func (g *Gate) RemainingAttempts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.Remaining()
}

// State returns a snapshot of the gate.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Close stops the push subscription and waits for in-flight remote calls,
// including writes that already timed out.
func (g *Gate) Close() {
	g.mu.Lock()
	g.closed = true
	unsubscribe := g.unsubscribe
	g.unsubscribe = nil
	g.mu.Unlock()

	g.wg.Wait()
	if unsubscribe != nil {
		unsubscribe()
	}
	g.markReady()
}

// race runs fn against a timer. Whichever finishes first decides the
// result; a late fn result is dropped.
func race(parent context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return errTimeout
	case <-parent.Done():
		return parent.Err()
	}
}
