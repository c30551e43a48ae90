// Command asciichat-server runs the relay that mediates an ASCII chat
// session: it accepts client connections, performs the handshake, and
// fans video/audio/control traffic out to every other active
// participant.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/asciichat/asciichat-go/internal/cmdutil"
	"github.com/asciichat/asciichat-go/internal/identity"
	"github.com/asciichat/asciichat-go/internal/server"
	"github.com/asciichat/asciichat-go/internal/version"
	"github.com/asciichat/asciichat-go/observability"
	"github.com/asciichat/asciichat-go/observability/prom"
)

var (
	appVersion = "dev"
	commit     = "unknown"
	date       = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type switchHandler struct {
	mu      sync.RWMutex
	handler http.Handler
}

func newSwitchHandler() *switchHandler {
	return &switchHandler{handler: http.NotFoundHandler()}
}

func (h *switchHandler) Set(next http.Handler) {
	if next == nil {
		next = http.NotFoundHandler()
	}
	h.mu.Lock()
	h.handler = next
	h.mu.Unlock()
}

func (h *switchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	handler := h.handler
	h.mu.RUnlock()
	handler.ServeHTTP(w, r)
}

type metricsController struct {
	mu       sync.Mutex
	enabled  bool
	handler  *switchHandler
	observer *observability.AtomicServerObserver
}

func newMetricsController(handler *switchHandler, observer *observability.AtomicServerObserver) *metricsController {
	return &metricsController{handler: handler, observer: observer}
}

func (c *metricsController) Enable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enabled {
		return
	}
	reg := prom.NewRegistry()
	c.handler.Set(prom.Handler(reg))
	c.observer.Set(prom.NewServerObserver(reg))
	c.enabled = true
}

func (c *metricsController) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return
	}
	c.handler.Set(nil)
	c.observer.Set(observability.NoopServerObserver)
	c.enabled = false
}

type ready struct {
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	Date       string `json:"date"`
	Listen     string `json:"listen"`
	MetricsURL string `json:"metrics_url,omitempty"`
}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	listen := cmdutil.EnvString("ASCIICHAT_LISTEN", "0.0.0.0:7722")
	identityFile := cmdutil.EnvString("ASCIICHAT_IDENTITY_FILE", "")
	identityPassword := cmdutil.EnvString("ASCIICHAT_IDENTITY_PASSWORD", "")
	requirePassword, err := cmdutil.EnvBool("ASCIICHAT_REQUIRE_PASSWORD", false)
	if err != nil {
		fmt.Fprintf(stderr, "invalid ASCIICHAT_REQUIRE_PASSWORD: %v\n", err)
		return 2
	}
	password := cmdutil.EnvString("ASCIICHAT_PASSWORD", "")
	maxClients, err := cmdutil.EnvInt("ASCIICHAT_MAX_CLIENTS", 16)
	if err != nil {
		fmt.Fprintf(stderr, "invalid ASCIICHAT_MAX_CLIENTS: %v\n", err)
		return 2
	}
	maxFrameBytes, err := cmdutil.EnvInt("ASCIICHAT_MAX_FRAME_BYTES", 4<<20)
	if err != nil {
		fmt.Fprintf(stderr, "invalid ASCIICHAT_MAX_FRAME_BYTES: %v\n", err)
		return 2
	}
	composeOnServer, err := cmdutil.EnvBool("ASCIICHAT_COMPOSE_ON_SERVER", false)
	if err != nil {
		fmt.Fprintf(stderr, "invalid ASCIICHAT_COMPOSE_ON_SERVER: %v\n", err)
		return 2
	}
	renderFPS, err := cmdutil.EnvInt("ASCIICHAT_RENDER_FPS", 30)
	if err != nil {
		fmt.Fprintf(stderr, "invalid ASCIICHAT_RENDER_FPS: %v\n", err)
		return 2
	}
	metricsListen := cmdutil.EnvString("ASCIICHAT_METRICS_LISTEN", "")

	fs := flag.NewFlagSet("asciichat-server", flag.ContinueOnError)
	fs.SetOutput(stderr)
	showVersion := false
	fs.BoolVar(&showVersion, "version", false, "print version and exit")
	fs.StringVar(&listen, "listen", listen, "listen address (env: ASCIICHAT_LISTEN)")
	fs.StringVar(&identityFile, "identity-file", identityFile, "server identity key file, generated with asciichat-keygen (required) (env: ASCIICHAT_IDENTITY_FILE)")
	fs.StringVar(&identityPassword, "identity-password", identityPassword, "password unwrapping --identity-file, if it was generated with one (env: ASCIICHAT_IDENTITY_PASSWORD)")
	fs.BoolVar(&requirePassword, "require-password", requirePassword, "require a shared password at handshake (env: ASCIICHAT_REQUIRE_PASSWORD)")
	fs.StringVar(&password, "password", password, "shared password, when --require-password is set (env: ASCIICHAT_PASSWORD)")
	fs.IntVar(&maxClients, "max-clients", maxClients, "maximum concurrent clients (env: ASCIICHAT_MAX_CLIENTS)")
	fs.IntVar(&maxFrameBytes, "max-frame-bytes", maxFrameBytes, "maximum accepted payload size in bytes (env: ASCIICHAT_MAX_FRAME_BYTES)")
	fs.BoolVar(&composeOnServer, "compose-on-server", composeOnServer, "compose the grid server-side instead of pass-through broadcast (env: ASCIICHAT_COMPOSE_ON_SERVER)")
	fs.IntVar(&renderFPS, "render-fps", renderFPS, "server-composed grid cadence in Hz (env: ASCIICHAT_RENDER_FPS)")
	fs.StringVar(&metricsListen, "metrics-listen", metricsListen, "listen address for the metrics server (empty disables) (env: ASCIICHAT_METRICS_LISTEN)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if showVersion {
		fmt.Fprintln(stdout, version.String(appVersion, commit, date))
		return 0
	}
	if identityFile == "" {
		fmt.Fprintln(stderr, "missing --identity-file")
		fs.Usage()
		return 2
	}
	if requirePassword && password == "" {
		fmt.Fprintln(stderr, "--require-password requires --password")
		return 2
	}

	ident, err := identity.Load(identityFile, func() (string, error) {
		if identityPassword == "" {
			return "", identity.ErrPasswordRequired
		}
		return identityPassword, nil
	})
	if err != nil {
		fmt.Fprintf(stderr, "loading identity: %v\n", err)
		return 4
	}

	observer := observability.NewAtomicServerObserver()
	cfg := server.DefaultConfig()
	cfg.Identity = ident
	cfg.RequirePassword = requirePassword
	cfg.Password = password
	cfg.MaxFrameBytes = maxFrameBytes
	cfg.ServerComposedGrid = composeOnServer
	cfg.GridFPS = renderFPS
	cfg.Observer = observer
	cfg.MaxClients = maxClients

	srv, err := server.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "configuring server: %v\n", err)
		return 2
	}

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		fmt.Fprintf(stderr, "listening: %v\n", err)
		return 3
	}

	var metrics *metricsController
	var metricsSrv *http.Server
	if metricsListen != "" {
		mux := http.NewServeMux()
		handler := newSwitchHandler()
		mux.Handle("/metrics", handler)
		metrics = newMetricsController(handler, observer)
		metrics.Enable()
		metricsLn, err := net.Listen("tcp", metricsListen)
		if err != nil {
			fmt.Fprintf(stderr, "listening for metrics: %v\n", err)
			return 3
		}
		metricsSrv = &http.Server{Handler: mux}
		go func() {
			if err := metricsSrv.Serve(metricsLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "err", err)
			}
		}()
	}

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- srv.Serve(ln) }()

	out := ready{Version: appVersion, Commit: commit, Date: date, Listen: ln.Addr().String()}
	if metrics != nil {
		out.MetricsURL = "http://" + metricsListen + "/metrics"
	}
	_ = cmdutil.WriteJSON(stdout, out, false)

	sig := make(chan os.Signal, 2)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)

	for {
		select {
		case err := <-serveErrCh:
			if err != nil {
				fmt.Fprintf(stderr, "server stopped: %v\n", err)
				return 3
			}
			return 0
		case s := <-sig:
			switch s {
			case syscall.SIGUSR1:
				if metrics == nil {
					logger.Info("metrics server disabled (missing --metrics-listen)")
					continue
				}
				metrics.Enable()
				logger.Info("metrics enabled")
			case syscall.SIGUSR2:
				if metrics == nil {
					continue
				}
				metrics.Disable()
				logger.Info("metrics disabled")
			default:
				srv.Stop()
				_ = ln.Close()
				if metricsSrv != nil {
					_ = metricsSrv.Close()
				}
				<-serveErrCh
				if s == syscall.SIGINT {
					return 130
				}
				return 0
			}
		}
	}
}
