// Command teleop-relay runs the robot/controller WebSocket relay.
//
// It supports three modes:
//  1. "serve" (default) – runs the relay hub with its status API, /metrics and an /mcp HTTP endpoint
//  2. "drive" – keyboard client that streams throttle/steering to the hub's controller endpoint
//  3. "mcp" – MCP stdio server proxying a running hub's status API
//
// Flags can also be set from the environment or a .env file, and the hub can
// optionally be exposed through an ngrok tunnel.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"github.com/wricardo/teleop-relay/api"
	"github.com/wricardo/teleop-relay/config"
	"github.com/wricardo/teleop-relay/control"
	"github.com/wricardo/teleop-relay/logging"
	"github.com/wricardo/teleop-relay/metrics"
	"github.com/wricardo/teleop-relay/transport/mcp"
	"github.com/wricardo/teleop-relay/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "teleop-relay"
)

const (
	shutdownTimeout = 10 * time.Second
	// How long drive mode waits for the quit handshake before giving up.
	quitTimeout = 5 * time.Second
)

func main() {
	// Load .env file if it exists (ignore error if not found)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
	}

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    AppName,
		Usage:   "relay frames between a robot and its controller",
		Version: Version,
		Flags:   serveFlags(),
		Action:  runServe,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the relay hub (default)",
				Flags:  serveFlags(),
				Action: runServe,
			},
			{
				Name:   "drive",
				Usage:  "drive the robot from the keyboard through a running hub",
				Flags:  driveFlags(),
				Action: runDrive,
			},
			{
				Name:   "mcp",
				Usage:  "serve MCP over stdio, proxying a running hub's status API",
				Flags:  mcpFlags(),
				Action: runMCP,
			},
		},
	}
}

func serveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "host", Value: config.DefaultServerHost, Usage: "listen host", Sources: cli.EnvVars("HOST")},
		&cli.IntFlag{Name: "port", Value: config.DefaultPort, Usage: "listen port", Sources: cli.EnvVars("PORT")},
		&cli.BoolFlag{Name: "debug", Usage: "enable debug logging", Sources: cli.EnvVars("DEBUG")},
		&cli.DurationFlag{Name: "keepalive", Value: 120 * time.Second, Usage: "ping idle peers this often (0 disables)"},
		&cli.BoolFlag{Name: "ngrok", Usage: "expose the hub through an ngrok tunnel", Sources: cli.EnvVars("NGROK_ENABLED")},
		&cli.StringFlag{Name: "ngrok-auth", Usage: "ngrok auth token", Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN")},
		&cli.StringFlag{Name: "ngrok-domain", Usage: "custom ngrok domain", Sources: cli.EnvVars("NGROK_DOMAIN")},
	}
}

func driveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "host", Value: config.DefaultClientHost, Usage: "hub host", Sources: cli.EnvVars("HUB_HOST")},
		&cli.IntFlag{Name: "port", Value: config.DefaultPort, Usage: "hub port", Sources: cli.EnvVars("PORT")},
		&cli.StringFlag{Name: "path", Value: config.DefaultControllerPath, Usage: "controller endpoint path", Sources: cli.EnvVars("CONTROLLER_PATH")},
		&cli.BoolFlag{Name: "debug", Usage: "enable debug logging", Sources: cli.EnvVars("DEBUG")},
		&cli.DurationFlag{Name: "probe-interval", Value: config.DefaultProbeInterval, Usage: "health probe period while the hub is down"},
		&cli.DurationFlag{Name: "send-interval", Value: config.DefaultSendInterval, Usage: "how often the pending command is sent"},
		&cli.DurationFlag{Name: "session-timeout", Value: config.DefaultSessionTimeout, Usage: "reconnect after this long"},
	}
}

func mcpFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "server", Usage: "hub base URL (default http://localhost:$PORT)", Sources: cli.EnvVars("RELAY_URL")},
		&cli.BoolFlag{Name: "debug", Usage: "enable debug logging", Sources: cli.EnvVars("DEBUG")},
	}
}

// serverConfig starts from config.DefaultServer and applies the flags that
// were set on the command line or through the environment.
func serverConfig(cmd *cli.Command) config.Server {
	cfg := config.DefaultServer()
	if cmd.IsSet("host") {
		cfg.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Port = int(cmd.Int("port"))
	}
	cfg.Debug = cmd.Bool("debug")
	cfg.Ngrok = config.Ngrok{
		Enabled:   cmd.Bool("ngrok"),
		AuthToken: cmd.String("ngrok-auth"),
		Domain:    cmd.String("ngrok-domain"),
	}
	return cfg
}

// clientConfig is serverConfig for drive mode.
func clientConfig(cmd *cli.Command) config.Client {
	cfg := config.DefaultClient()
	if cmd.IsSet("host") {
		cfg.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Port = int(cmd.Int("port"))
	}
	if cmd.IsSet("path") {
		cfg.Path = cmd.String("path")
	}
	if cmd.IsSet("probe-interval") {
		cfg.ProbeInterval = cmd.Duration("probe-interval")
	}
	if cmd.IsSet("send-interval") {
		cfg.SendInterval = cmd.Duration("send-interval")
	}
	if cmd.IsSet("session-timeout") {
		cfg.SessionTimeout = cmd.Duration("session-timeout")
	}
	cfg.Debug = cmd.Bool("debug")
	return cfg
}

// runServe starts the hub's HTTP server and, if enabled, an ngrok tunnel,
// then waits for SIGINT/SIGTERM.
func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg := serverConfig(cmd)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Debug)
	if err != nil {
		return err
	}
	defer logger.Sync()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	hub := websocket.NewHub(
		websocket.WithLogger(logger.Named("hub")),
		websocket.WithMetrics(collector),
		websocket.WithKeepAlive(cmd.Duration("keepalive")),
	)
	apiServer := api.NewServer(hub, collector, logger.Named("api"))

	// The MCP endpoint proxies our own status API over loopback.
	mcpClient := mcp.NewClient(fmt.Sprintf("http://%s", loopbackAddr(cfg)))

	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", apiServer.Router())
	mainRouter.HandleFunc("/mcp", mcpHandler(mcpClient))

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      mainRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("relay listening",
			zap.String("addr", cfg.Addr()),
			zap.Strings("endpoints", websocket.Paths()),
			zap.String("status", "/api/status"),
			zap.String("mcp", "/mcp"))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	tunnelDone := make(chan struct{})
	if cfg.Ngrok.Enabled {
		go func() {
			defer close(tunnelDone)
			runTunnel(ctx, cfg.Ngrok, mainRouter, logger.Named("ngrok"))
		}()
	} else {
		close(tunnelDone)
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			stop()
			<-tunnelDone
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", zap.Error(err))
	}
	// Hijacked WebSocket connections are not covered by http.Server.Shutdown.
	if err := hub.Shutdown(shutdownCtx); err != nil {
		logger.Warn("hub shutdown", zap.Error(err))
	}
	<-tunnelDone

	logger.Info("relay stopped")
	return nil
}

// loopbackAddr is an address this process can reach itself on.
func loopbackAddr(cfg config.Server) string {
	host := cfg.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return net.JoinHostPort(host, strconv.Itoa(cfg.Port))
}

// mcpHandler serves single MCP JSON-RPC messages over HTTP POST.
func mcpHandler(client *mcp.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := client.GetMCPServer().HandleMessage(r.Context(), body)

		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(responseData)
	}
}

// runTunnel serves handler through ngrok until ctx ends.
func runTunnel(ctx context.Context, cfg config.Ngrok, handler http.Handler, logger *zap.Logger) {
	var tunnel ngrokConfig.Tunnel
	if cfg.Domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(cfg.Domain))
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(cfg.AuthToken))
	if err != nil {
		logger.Error("failed to start tunnel", zap.Error(err))
		return
	}

	url := tun.URL()
	logger.Info("tunnel established",
		zap.String("url", url),
		zap.String("robot", url+"/robot"),
		zap.String("controller", url+"/oculus"))

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			logger.Warn("failed to close tunnel", zap.Error(err))
		}
	}()

	if err := http.Serve(tun, handler); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		logger.Error("tunnel server", zap.Error(err))
	}
	logger.Info("tunnel closed")
}

// runDrive connects to the hub's controller endpoint and drives from the
// keyboard until a quit key.
func runDrive(ctx context.Context, cmd *cli.Command) error {
	cfg := clientConfig(cmd)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Debug)
	if err != nil {
		return err
	}
	defer logger.Sync()

	keys, err := control.NewKeyReader(os.Stdin)
	if err != nil {
		return err
	}
	defer keys.Restore()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM)
	defer stop()
	linkCtx, cancelLink := context.WithCancel(context.Background())
	defer cancelLink()

	link := control.NewLink(cfg, logger.Named("link"))
	linkErr := make(chan error, 1)
	go func() { linkErr <- link.Run(linkCtx) }()

	driver := control.NewDriver(link, os.Stdout, logger.Named("drive"))
	driveErr := make(chan error, 1)
	go func() { driveErr <- driver.Run(ctx, keys) }()

	select {
	case err := <-driveErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			link.Quit()
			cancelLink()
			<-linkErr
			return err
		}
		link.Quit()
	case <-ctx.Done():
		link.Quit()
	case err := <-linkErr:
		return err
	}

	select {
	case <-link.Done():
	case <-time.After(quitTimeout):
		logger.Warn("hub unreachable, quitting without handshake")
		cancelLink()
	}
	err = <-linkErr
	if errors.Is(err, control.ErrQuit) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runMCP serves the MCP tools over stdio against a running hub.
func runMCP(ctx context.Context, cmd *cli.Command) error {
	// stdout carries the MCP protocol; a broken logger must not stop it.
	logger := logging.Must(cmd.Bool("debug"))
	defer logger.Sync()

	baseURL := cmd.String("server")
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%d", config.PortFromEnv())
	}

	probe := &http.Client{Timeout: 2 * time.Second}
	if resp, err := probe.Get(baseURL + "/health"); err != nil {
		logger.Warn("relay not reachable yet, tools will report errors until it is", zap.String("url", baseURL), zap.Error(err))
	} else {
		resp.Body.Close()
		logger.Info("using relay", zap.String("url", baseURL))
	}

	mcpClient := mcp.NewClient(baseURL)
	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("mcp stdio server: %w", err)
	}
	return nil
}
