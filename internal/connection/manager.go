package connection

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/uminmay/collaborative-ai-editor/internal/loop"
	"github.com/uminmay/collaborative-ai-editor/internal/model"
	"github.com/uminmay/collaborative-ai-editor/internal/protocol"
)

// State is the connection life-cycle state.
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// StateEvent describes a state transition.
type StateEvent struct {
	State State

	// Attempt is the reconnect attempt number while Reconnecting, 0 otherwise.
	Attempt int

	// Delay is the wait before the next attempt while Reconnecting.
	Delay time.Duration

	// Reconnected is set on an Open that followed a lost connection.
	Reconnected bool

	// Err wraps model.ErrTransientChannel while Reconnecting and
	// model.ErrTerminalChannel once retries are exhausted. Nil otherwise.
	Err error
}

// Channel is an open duplex channel carrying text frames.
type Channel interface {
	Send(data []byte) error
	Close() error
}

// Events receives what happens on one transport attempt. Implementations of
// Transport must deliver these on the scheduler, Opened before any Received.
type Events interface {
	Opened(ch Channel)
	Received(data []byte)
	Closed(err error)
}

// Transport opens channels. Open must not block.
type Transport interface {
	Open(ctx context.Context, events Events)
}

// Options configures reconnect behaviour.
type Options struct {
	// BaseDelay is multiplied by 2^attempt to get the wait before attempt.
	BaseDelay time.Duration

	// MaxDelay caps a single wait.
	MaxDelay time.Duration

	// MaxAttempts is the number of reconnect attempts before giving up.
	MaxAttempts int

	Logger *slog.Logger
}

// Manager is the connection state machine.
type Manager struct {
	transport Transport
	sched     loop.Scheduler
	log       *slog.Logger
	backOff   backoff.BackOff

	state      State
	attempt    int
	everOpen   bool
	channel    Channel
	generation uint64
	retry      *loop.Timer
	cancel     context.CancelFunc

	onFrame func(frame *protocol.Frame)
	onState func(event StateEvent)
}

// NewManager creates a Manager in the Closed state.
func NewManager(transport Transport, sched loop.Scheduler, opts Options) *Manager {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = time.Minute
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = opts.BaseDelay * 2
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = opts.MaxDelay
	exp.MaxElapsedTime = 0
	exp.Clock = sched
	exp.Reset()

	return &Manager{
		transport: transport,
		sched:     sched,
		log:       opts.Logger.With("component", "connection"),
		backOff:   backoff.WithMaxRetries(exp, uint64(opts.MaxAttempts)),
		state:     StateClosed,
	}
}

// SetOnFrame sets the handler receiving decoded inbound frames in receipt order.
func (m *Manager) SetOnFrame(handler func(frame *protocol.Frame)) {
	m.onFrame = handler
}

// SetOnStateChange sets the handler observing state transitions.
func (m *Manager) SetOnStateChange(handler func(event StateEvent)) {
	m.onState = handler
}

// State returns the current state.
func (m *Manager) State() State {
	return m.state
}

// Attempt returns the current reconnect attempt, 0 when not reconnecting.
func (m *Manager) Attempt() int {
	return m.attempt
}

// Connect opens the channel. Calling it after a terminal failure starts over
// with a fresh attempt budget.
func (m *Manager) Connect() {
	if m.state != StateClosed {
		return
	}
	m.attempt = 0
	m.backOff.Reset()
	m.setState(StateEvent{State: StateConnecting})
	m.dial()
}

// Send encodes and writes frame. It fails with model.ErrNotConnected unless
// the channel is Open; frames are never queued.
func (m *Manager) Send(frame *protocol.Frame) error {
	if m.state != StateOpen || m.channel == nil {
		m.log.Debug("send rejected", "type", frame.Type, "state", m.state)
		return fmt.Errorf("send %s: %w", frame.Type, model.ErrNotConnected)
	}
	data, err := protocol.Encode(frame, protocol.ClientToServer)
	if err != nil {
		return err
	}
	if err := m.channel.Send(data); err != nil {
		return fmt.Errorf("send %s: %w: %v", frame.Type, model.ErrNotConnected, err)
	}
	return nil
}

// Close closes the channel for good; no reconnect is attempted.
func (m *Manager) Close() {
	m.retry.Stop()
	m.retry = nil
	m.generation++
	m.closeChannel()
	m.attempt = 0
	if m.state != StateClosed {
		m.setState(StateEvent{State: StateClosed})
	}
}

func (m *Manager) dial() {
	m.retry = nil
	m.generation++
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.transport.Open(ctx, &attempt{manager: m, generation: m.generation})
}

func (m *Manager) opened(ch Channel) {
	reconnected := m.everOpen
	m.channel = ch
	m.everOpen = true
	m.attempt = 0
	m.backOff.Reset()
	m.log.Info("connection open", "reconnected", reconnected)
	m.setState(StateEvent{State: StateOpen, Reconnected: reconnected})
}

func (m *Manager) received(data []byte) {
	frame, err := protocol.Decode(data, protocol.ServerToClient)
	if err != nil {
		m.log.Warn("dropping frame", "err", err)
		return
	}
	if m.onFrame != nil {
		m.onFrame(frame)
	}
}

func (m *Manager) closed(cause error) {
	m.closeChannel()

	delay := m.backOff.NextBackOff()
	if delay == backoff.Stop {
		err := fmt.Errorf("%w after %d attempts: %v", model.ErrTerminalChannel, m.attempt, cause)
		m.log.Error("giving up on connection", "attempts", m.attempt, "err", cause)
		m.attempt = 0
		m.setState(StateEvent{State: StateClosed, Err: err})
		return
	}

	m.attempt++
	m.log.Warn("connection lost", "attempt", m.attempt, "delay", delay, "err", cause)
	m.setState(StateEvent{
		State:   StateReconnecting,
		Attempt: m.attempt,
		Delay:   delay,
		Err:     fmt.Errorf("%w: %v", model.ErrTransientChannel, cause),
	})
	m.retry = m.sched.AfterFunc(delay, m.dial)
}

func (m *Manager) closeChannel() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.channel != nil {
		m.channel.Close()
		m.channel = nil
	}
}

func (m *Manager) setState(event StateEvent) {
	m.state = event.State
	if m.onState != nil {
		m.onState(event)
	}
}

// attempt binds transport events to one dial so that late events from an
// abandoned channel are ignored.
type attempt struct {
	manager    *Manager
	generation uint64
}

func (a *attempt) current() bool {
	return a.generation == a.manager.generation
}

func (a *attempt) Opened(ch Channel) {
	if !a.current() {
		ch.Close()
		return
	}
	a.manager.opened(ch)
}

func (a *attempt) Received(data []byte) {
	if a.current() {
		a.manager.received(data)
	}
}

func (a *attempt) Closed(err error) {
	if a.current() {
		a.manager.closed(err)
	}
}
