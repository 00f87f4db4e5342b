// Command webterm is a terminal client for a remote command execution
// backend. It logs in, then relays keystrokes and renders output; without a
// real-time connection it answers a few commands offline.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"webterm/internal/adapters/realclock"
	"webterm/internal/adapters/realrand"
	"webterm/internal/auth"
	"webterm/internal/config"
	"webterm/internal/controller"
	"webterm/internal/logging"
	"webterm/internal/session"
	"webterm/internal/simulator"
	"webterm/internal/terminal"
	"webterm/internal/transport"

	"github.com/charmbracelet/huh"
)

var version = "dev"

// flags holds command line overrides applied on top of file and env config.
type flags struct {
	configPath string
	serverURL  string
	offline    bool
	debug      bool
}

func (f flags) apply(cfg *config.Config) error {
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	if f.serverURL != "" {
		cfg.Server.URL = f.serverURL
	}
	if f.offline {
		cfg.Transport.Enabled = false
	}
	if f.debug {
		cfg.Logging.Level = "debug"
	}
	return nil
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", config.DefaultConfigPath(), "path to config file")
	flag.StringVar(&f.serverURL, "server", "", "backend base URL, e.g. https://host:5000")
	flag.BoolVar(&f.offline, "offline", false, "do not open the real-time connection")
	flag.BoolVar(&f.debug, "debug", false, "enable debug logging")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("webterm", version)
		return
	}

	if err := run(f); err != nil {
		fmt.Fprintf(os.Stderr, "webterm: %v\n", err)
		os.Exit(1)
	}
}

func run(f flags) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	if err := f.apply(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Server.URL == "" {
		return errors.New("no server configured: set server.url, WEBTERM_SERVER_URL or --server")
	}

	logCloser, err := logging.Setup(cfg.Logging.Level, cfg.Logging.Sanitize, cfg.Logging.File)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := realclock.New()
	sessionID, err := session.NewID(realrand.New())
	if err != nil {
		return err
	}
	slog.Info("starting webterm", "version", version, "session", sessionID, "server", cfg.Server.URL)

	// The real-time transport is structurally absent when disabled; the
	// controller then runs offline for the whole session.
	var (
		adapter *transport.Adapter
		remote  controller.Transport
		events  <-chan transport.Event
	)
	if cfg.TransportAvailable() {
		wsURL, err := cfg.WebSocketURL()
		if err != nil {
			return err
		}
		adapter = transport.New(transport.Options{
			URL:               wsURL,
			Insecure:          cfg.Server.Insecure,
			HandshakeTimeout:  cfg.Transport.HandshakeTimeout,
			ReconnectInterval: cfg.Transport.ReconnectInterval,
			PingInterval:      cfg.Transport.PingInterval,
			ReadTimeout:       cfg.Transport.ReadTimeout,
			WriteTimeout:      cfg.Transport.WriteTimeout,
			Clock:             clock,
		})
		remote = adapter
		events = adapter.Events()
	}

	screen := terminal.NewScreen(os.Stdout, terminal.ScreenOptions{
		Scrollback: cfg.Terminal.Scrollback,
		ConvertEOL: cfg.Terminal.ConvertEOL,
		SetTitle:   cfg.Terminal.SetTitle,
		Title:      "webterm",
	})

	var guard *terminal.LeaveGuard
	ctrl := controller.New(controller.Options{
		SessionID: sessionID,
		Screen:    screen,
		Status:    screen,
		Simulator: simulator.New(clock),
		Clock:     clock,
		Settings:  controller.SettingsFromConfig(cfg),
		Intercept: func(unit string) bool {
			return guard != nil && guard.Intercept(unit)
		},
	})
	guard = terminal.InstallLeaveGuard(screen, cancel, ctrl.Redraw)

	panel := auth.NewFormPanel("webterm password for " + cfg.Server.URL)
	gate := auth.NewGate(auth.Options{
		Endpoint: cfg.LoginURL(),
		Client:   httpClient(cfg),
		Clock:    clock,
		Panel:    panel,
		OnUnlock: func() {
			ctrl.Post(func() { ctrl.Start(remote) })
			if adapter != nil {
				go func() {
					if err := adapter.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
						slog.Error("transport stopped", "error", err)
					}
				}()
			}
		},
	})

	login := &auth.Login{
		Gate:     gate,
		Prompter: panel,
		Account:  cfg.LoginURL(),
		Remember: cfg.Auth.Remember,
		Preset:   os.Getenv(cfg.Auth.CredentialEnv),
	}
	if cfg.Auth.Remember {
		login.Store = auth.NewKeyringStore()
	}
	if err := login.Run(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return nil
		}
		return fmt.Errorf("login: %w", err)
	}

	if w := watchConfig(f, ctrl); w != nil {
		defer w.Close()
	}

	input, err := terminal.OpenInput(os.Stdin)
	if err != nil {
		return err
	}
	defer input.Restore()
	terminal.WatchResize(ctx, os.Stdout, screen)

	stopSignals := handleSignals(ctx, cancel, ctrl, guard)
	defer stopSignals()

	err = ctrl.Run(ctx, input.Keys(ctx), events)
	screen.Write("\r\n")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("session ended", "session", sessionID)
	return nil
}

func httpClient(cfg *config.Config) *http.Client {
	client := &http.Client{Timeout: cfg.Auth.RequestTimeout}
	if cfg.Server.Insecure {
		client.Transport = &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return client
}

// watchConfig hot-reloads the session settings when the config file exists.
func watchConfig(f flags, ctrl *controller.Controller) *config.Watcher {
	if _, err := os.Stat(f.configPath); err != nil {
		return nil
	}
	w, err := config.NewWatcher(f.configPath, f.apply, func(cfg *config.Config) {
		ctrl.UpdateConfig(controller.SettingsFromConfig(cfg))
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "path", f.configPath, "error", err)
		return nil
	}
	return w
}

// handleSignals asks for leave confirmation on SIGINT and SIGTERM. SIGHUP
// ends the session at once since nobody is left to answer.
func handleSignals(ctx context.Context, cancel context.CancelFunc, ctrl *controller.Controller, guard *terminal.LeaveGuard) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigCh:
				slog.Info("signal received", "signal", sig.String())
				if sig == syscall.SIGHUP {
					cancel()
					return
				}
				ctrl.Post(guard.Request)
			}
		}
	}()

	return func() { signal.Stop(sigCh) }
}
