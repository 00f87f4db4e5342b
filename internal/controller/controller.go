// Package controller implements the terminal session: it owns the command
// buffer, reacts to keystrokes and transport events, and decides whether a
// command goes to the backend or to the offline simulator.
//
// All state is owned by one event loop. Other goroutines reach it only
// through Post.
package controller

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"webterm/internal/adapters/realclock"
	"webterm/internal/config"
	"webterm/internal/ports"
	"webterm/internal/simulator"
	"webterm/internal/transport"
)

const (
	keyEnter        = "\r"
	keyBackspace    = "\x7f"
	keyBackspaceAlt = "\b"
	keyInterrupt    = "\x03"
)

// DefaultConnectionErrorDelay is the pause between a connection error and
// the banner that follows it.
const DefaultConnectionErrorDelay = time.Second

const inboxSize = 64

// Overlap policies.
const (
	OverlapAllow  = config.OverlapAllow
	OverlapReject = config.OverlapReject
)

// Writer is the output side of the terminal widget.
type Writer interface {
	Write(text string)
}

// StatusIndicator is told about every connection state change.
type StatusIndicator interface {
	SetConnected(connected bool)
}

// Transport sends commands to the backend. Both calls must not block.
type Transport interface {
	Execute(command, sessionID string) error
	Cancel(sessionID string) error
}

// Simulator answers commands while disconnected.
type Simulator interface {
	Run(command string) (string, error)
}

// Settings are the parts of the configuration that may change while the
// session runs.
type Settings struct {
	PromptUser     string
	PromptHost     string
	CommandTimeout time.Duration // 0 waits forever
	Overlap        string
}

// SettingsFromConfig extracts the session settings from cfg.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		PromptUser:     cfg.Session.PromptUser,
		PromptHost:     cfg.Session.PromptHost,
		CommandTimeout: cfg.Session.CommandTimeout,
		Overlap:        cfg.Session.Overlap,
	}
}

func (s Settings) withDefaults() Settings {
	if s.PromptUser == "" {
		s.PromptUser = "ubuntu"
	}
	if s.PromptHost == "" {
		s.PromptHost = "webterminal"
	}
	if s.Overlap == "" {
		s.Overlap = OverlapAllow
	}
	return s
}

// Options configures a Controller.
type Options struct {
	SessionID string
	Screen    Writer
	Status    StatusIndicator
	Simulator Simulator
	Clock     ports.Clock
	Settings  Settings
	// Intercept sees every key unit first and may consume it.
	Intercept func(unit string) bool
	// ConnectionErrorDelay defaults to DefaultConnectionErrorDelay.
	ConnectionErrorDelay time.Duration
}

type inflight struct {
	command   string
	submitted time.Time
	seq       uint64
}

// Controller is the terminal session state machine.
type Controller struct {
	sessionID  string
	screen     Writer
	status     StatusIndicator
	sim        Simulator
	clock      ports.Clock
	intercept  func(string) bool
	errorDelay time.Duration
	settings   Settings

	state     State
	started   bool
	transport Transport
	buffer    []rune

	inflight      *inflight
	commandTimer  ports.Timer
	recoveryTimer ports.Timer
	seq           uint64

	inbox chan func()
}

// New creates a controller in the unauthenticated state.
func New(opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = realclock.New()
	}
	if opts.Simulator == nil {
		opts.Simulator = simulator.New(opts.Clock)
	}
	if opts.ConnectionErrorDelay <= 0 {
		opts.ConnectionErrorDelay = DefaultConnectionErrorDelay
	}
	return &Controller{
		sessionID:  opts.SessionID,
		screen:     opts.Screen,
		status:     opts.Status,
		sim:        opts.Simulator,
		clock:      opts.Clock,
		intercept:  opts.Intercept,
		errorDelay: opts.ConnectionErrorDelay,
		settings:   opts.Settings.withDefaults(),
		state:      stateLocked,
		inbox:      make(chan func(), inboxSize),
	}
}

// SessionID returns the id sent with every command.
func (c *Controller) SessionID() string {
	return c.sessionID
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return c.state
}

// Buffer returns the command being typed.
func (c *Controller) Buffer() string {
	return string(c.buffer)
}

// InFlight reports whether a submitted command has not completed yet.
func (c *Controller) InFlight() bool {
	return c.inflight != nil
}

// Start unlocks the session. It runs once, when authentication succeeds.
// A nil transport means no real-time transport exists: the session goes
// straight to offline mode and stays there.
func (c *Controller) Start(t Transport) {
	if c.started {
		return
	}
	c.started = true

	if t == nil {
		c.fire(TriggerUnlockDegraded)
		c.reportStatus()
		slog.Warn("real-time transport unavailable, running offline", "session", c.sessionID)
		c.screen.Write(degradedNotice)
		c.screen.Write(welcomeBanner)
		c.writePrompt()
		return
	}

	c.transport = t
	c.fire(TriggerUnlock)
	c.reportStatus()
	c.screen.Write(welcomeBanner)
}

// fire applies a trigger. It returns false when the table has no move for
// the current state, in which case nothing changes.
func (c *Controller) fire(t Trigger) bool {
	next, ok := transition(c.state, t)
	if !ok {
		slog.Debug("ignoring trigger", "trigger", t, "state", c.state)
		return false
	}
	prev := c.state
	c.state = next
	if prev != next {
		slog.Info("session state changed", "from", prev, "to", next, "trigger", t)
	}
	if prev.Conn != next.Conn {
		c.reportStatus()
	}
	return true
}

func (c *Controller) reportStatus() {
	if c.status != nil {
		c.status.SetConnected(c.state.Conn == Connected)
	}
}

// HandleKey processes one key unit.
func (c *Controller) HandleKey(unit string) {
	if unit == "" {
		return
	}
	if c.intercept != nil && c.intercept(unit) {
		return
	}
	if c.state.Auth != Authenticated {
		return
	}

	switch unit {
	case keyEnter:
		c.submit()
	case keyBackspace, keyBackspaceAlt:
		c.backspace()
	case keyInterrupt:
		c.interrupt()
	default:
		r, _ := utf8.DecodeRuneInString(unit)
		if r < 0x20 || r == 0x7f {
			return
		}
		c.appendText(unit)
	}
}

func (c *Controller) appendText(unit string) {
	text := strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, unit)
	if text == "" {
		return
	}
	c.buffer = append(c.buffer, []rune(text)...)
	c.screen.Write(text)
}

func (c *Controller) backspace() {
	if len(c.buffer) == 0 {
		return
	}
	c.buffer = c.buffer[:len(c.buffer)-1]
	c.screen.Write(eraseChar)
}

func (c *Controller) interrupt() {
	c.buffer = c.buffer[:0]
	if c.state.Conn != Connected {
		return
	}
	if err := c.transport.Cancel(c.sessionID); err != nil {
		slog.Warn("cancel request not sent", "session", c.sessionID, "error", err)
	}
}

func (c *Controller) submit() {
	command := strings.TrimSpace(string(c.buffer))
	c.buffer = c.buffer[:0]

	if command == "" {
		c.writePrompt()
		return
	}
	if c.state.Conn != Connected {
		c.simulate(command)
		return
	}

	if c.inflight != nil {
		if c.settings.Overlap == OverlapReject {
			slog.Info("command rejected, another is running",
				"session", c.sessionID, "running", c.inflight.command)
			c.writeError(&CommandError{Kind: KindOverlap, Command: command})
			return
		}
		slog.Info("command submitted while another is running",
			"session", c.sessionID, "running", c.inflight.command)
	}

	if err := c.transport.Execute(command, c.sessionID); err != nil {
		slog.Warn("command not sent", "session", c.sessionID, "error", err)
		c.writeError(&CommandError{Kind: KindSend, Command: command, Err: err})
		return
	}
	c.screen.Write("\r\n")
	c.track(command)
}

func (c *Controller) simulate(command string) {
	out, err := c.sim.Run(command)
	c.screen.Write("\r\n")
	switch {
	case errors.Is(err, simulator.ErrUnavailable):
		c.screen.Write(renderUnavailable(command))
	case err != nil:
		c.screen.Write(colorRed + err.Error() + colorReset)
	default:
		c.screen.Write(out)
	}
	c.writePrompt()
}

func (c *Controller) track(command string) {
	c.seq++
	c.inflight = &inflight{command: command, submitted: c.clock.Now(), seq: c.seq}
	c.armCommandTimer()
}

// armCommandTimer (re)starts the timeout of the in-flight command. The full
// timeout applies from the moment of arming.
func (c *Controller) armCommandTimer() {
	c.stopCommandTimer()
	timeout := c.settings.CommandTimeout
	if c.inflight == nil || timeout <= 0 {
		return
	}
	seq := c.inflight.seq
	c.commandTimer = c.after(timeout, func() {
		c.commandTimedOut(seq, timeout)
	})
}

func (c *Controller) commandTimedOut(seq uint64, timeout time.Duration) {
	if c.inflight == nil || c.inflight.seq != seq {
		return
	}
	// The timer is stopped on disconnect; a callback already queued at that
	// moment must not write into the offline session.
	if c.state.Conn != Connected {
		return
	}
	command := c.inflight.command
	c.inflight = nil
	c.commandTimer = nil
	slog.Warn("command timed out", "session", c.sessionID, "command", command, "timeout", timeout)
	c.writeError(&CommandError{Kind: KindTimeout, Command: command, Timeout: timeout})
}

func (c *Controller) finishCommand() {
	if c.inflight != nil {
		slog.Debug("command finished", "session", c.sessionID, "command", c.inflight.command,
			"elapsed", c.clock.Now().Sub(c.inflight.submitted))
	}
	c.inflight = nil
	c.stopCommandTimer()
}

func (c *Controller) stopCommandTimer() {
	if c.commandTimer != nil {
		c.commandTimer.Stop()
		c.commandTimer = nil
	}
}

// HandleEvent processes one transport event.
func (c *Controller) HandleEvent(ev transport.Event) {
	if c.state.Auth != Authenticated {
		slog.Debug("event before authentication ignored", "event", ev.Type)
		return
	}
	if ev.SessionScoped() && ev.SessionID != c.sessionID {
		slog.Debug("event for another session ignored", "event", ev.Type, "session", ev.SessionID)
		return
	}

	switch ev.Type {
	case transport.EventConnected:
		if !c.fire(TriggerConnected) {
			return
		}
		c.stopRecovery()
		c.armCommandTimer()
		c.screen.Write(connectedIndicator)
		c.writePrompt()

	case transport.EventDisconnected:
		if !c.fire(TriggerDisconnected) {
			return
		}
		c.stopCommandTimer()
		c.screen.Write(lostIndicator)

	case transport.EventConnectionError:
		if !c.fire(TriggerConnectionError) {
			return
		}
		c.stopCommandTimer()
		slog.Warn("connection error", "error", ev.Err)
		c.screen.Write(connectErrorIndicator)
		c.scheduleRecovery()

	case transport.EventOutput:
		c.screen.Write(ev.Data)

	case transport.EventCompleted:
		slog.Debug("command completed", "session", c.sessionID, "return_code", ev.ReturnCode)
		c.finishCommand()
		c.writePrompt()

	case transport.EventError:
		c.finishCommand()
		c.writeError(&CommandError{Kind: KindRemote, Message: ev.Message})
	}
}

// scheduleRecovery shows the banner and prompt once the connection error
// delay passes. A new error restarts the delay.
func (c *Controller) scheduleRecovery() {
	c.stopRecovery()
	var timer ports.Timer
	timer = c.after(c.errorDelay, func() {
		if c.recoveryTimer != timer {
			return
		}
		c.recoveryTimer = nil
		c.screen.Write(welcomeBanner)
		c.writePrompt()
	})
	c.recoveryTimer = timer
}

func (c *Controller) stopRecovery() {
	if c.recoveryTimer != nil {
		c.recoveryTimer.Stop()
		c.recoveryTimer = nil
	}
}

func (c *Controller) writeError(err *CommandError) {
	c.screen.Write(renderError(err))
	c.writePrompt()
}

// writePrompt starts a fresh input line.
func (c *Controller) writePrompt() {
	c.buffer = c.buffer[:0]
	c.screen.Write(renderPrompt(c.settings))
}

// Redraw writes the prompt and the pending input again without clearing it.
func (c *Controller) Redraw() {
	if c.state.Auth != Authenticated {
		return
	}
	c.screen.Write(renderPrompt(c.settings) + string(c.buffer))
}

// UpdateConfig applies new settings. Safe to call from any goroutine; the
// change takes effect on the event loop.
func (c *Controller) UpdateConfig(s Settings) {
	c.Post(func() {
		c.settings = s.withDefaults()
		slog.Info("session settings updated",
			"command_timeout", c.settings.CommandTimeout, "overlap", c.settings.Overlap)
	})
}

// after runs fn on the event loop once d has passed.
func (c *Controller) after(d time.Duration, fn func()) ports.Timer {
	return c.clock.AfterFunc(d, func() {
		c.Post(fn)
	})
}

// Post queues fn to run on the event loop.
func (c *Controller) Post(fn func()) {
	c.inbox <- fn
}

// Drain runs everything queued by Post without blocking. It is for callers
// that drive the controller without Run.
func (c *Controller) Drain() {
	for {
		select {
		case fn := <-c.inbox:
			fn()
		default:
			return
		}
	}
}

// Run is the event loop. It returns nil when keys is closed and ctx.Err()
// when ctx is done. A closed events channel is dropped from the loop.
func (c *Controller) Run(ctx context.Context, keys <-chan string, events <-chan transport.Event) error {
	defer c.stopCommandTimer()
	defer c.stopRecovery()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case fn := <-c.inbox:
			fn()

		case unit, ok := <-keys:
			if !ok {
				return nil
			}
			c.HandleKey(unit)

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			c.HandleEvent(ev)
		}
	}
}
