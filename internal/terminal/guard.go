package terminal

import "sync"

// LeaveKey (Ctrl+]) asks to leave the session.
const LeaveKey = "\x1d"

const leavePrompt = "\r\n\x1b[33mLeave this session? [y/N]\x1b[0m "

// Writer is the output the guard writes its question to.
type Writer interface {
	Write(text string)
}

// LeaveGuard asks for confirmation before the session is left. There is one
// guard per process; it is never removed.
type LeaveGuard struct {
	mu         sync.Mutex
	w          Writer
	onLeave    func()
	onStay     func()
	confirming bool
}

var (
	guardOnce sync.Once
	guard     *LeaveGuard
)

// InstallLeaveGuard installs the process-wide guard. Later calls return the
// guard installed by the first call and ignore their arguments.
func InstallLeaveGuard(w Writer, onLeave, onStay func()) *LeaveGuard {
	guardOnce.Do(func() {
		guard = newLeaveGuard(w, onLeave, onStay)
	})
	return guard
}

func newLeaveGuard(w Writer, onLeave, onStay func()) *LeaveGuard {
	if onLeave == nil {
		onLeave = func() {}
	}
	if onStay == nil {
		onStay = func() {}
	}
	return &LeaveGuard{w: w, onLeave: onLeave, onStay: onStay}
}

// Request shows the confirmation question unless it is already showing.
func (g *LeaveGuard) Request() {
	g.mu.Lock()
	if g.confirming {
		g.mu.Unlock()
		return
	}
	g.confirming = true
	g.mu.Unlock()
	g.w.Write(leavePrompt)
}

// Intercept consumes key units that belong to the guard and reports whether
// it did. While the question is showing every unit is consumed; only y or Y
// leaves.
func (g *LeaveGuard) Intercept(unit string) bool {
	g.mu.Lock()
	if !g.confirming {
		g.mu.Unlock()
		if unit == LeaveKey {
			g.Request()
			return true
		}
		return false
	}
	g.confirming = false
	g.mu.Unlock()

	if unit == "y" || unit == "Y" {
		g.w.Write("y\r\n")
		g.onLeave()
		return true
	}
	g.w.Write("\r\n")
	g.onStay()
	return true
}

// Confirming reports whether the question is showing.
func (g *LeaveGuard) Confirming() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.confirming
}
