package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults shared by the hub and the drive client.
const (
	DefaultPort           = 5000
	DefaultServerHost     = ""
	DefaultClientHost     = "localhost"
	DefaultControllerPath = "/oculus"

	DefaultProbeInterval  = 1 * time.Second
	DefaultProbeTimeout   = 2 * time.Second
	DefaultSessionTimeout = 120 * time.Second
	DefaultSendInterval   = 50 * time.Millisecond
)

var (
	ErrInvalidPort = errors.New("port must be between 1 and 65535")
	ErrInvalidPath = errors.New("path must start with /")
)

// Ngrok holds the optional tunnel settings.
type Ngrok struct {
	Enabled   bool
	AuthToken string
	Domain    string
}

// Server configures the relay hub process.
type Server struct {
	Host  string
	Port  int
	Debug bool
	Ngrok Ngrok
}

// Client configures the drive process and its link to the hub.
type Client struct {
	Host  string
	Port  int
	Path  string
	Debug bool

	ProbeInterval  time.Duration
	ProbeTimeout   time.Duration
	SessionTimeout time.Duration
	SendInterval   time.Duration
}

// DefaultServer returns a Server config with defaults applied.
func DefaultServer() Server {
	return Server{
		Host: DefaultServerHost,
		Port: PortFromEnv(),
	}
}

// DefaultClient returns a Client config with defaults applied.
func DefaultClient() Client {
	c := Client{Host: DefaultClientHost, Port: PortFromEnv()}
	c.ApplyDefaults()
	return c
}

// PortFromEnv reads PORT, falling back to DefaultPort when unset or unparsable.
func PortFromEnv() int {
	v := strings.TrimSpace(os.Getenv("PORT"))
	if v == "" {
		return DefaultPort
	}
	p, err := strconv.Atoi(v)
	if err != nil {
		return DefaultPort
	}
	return p
}

// Addr is the listen address of the hub.
func (s Server) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Validate checks the server settings.
func (s Server) Validate() error {
	if err := validatePort(s.Port); err != nil {
		return err
	}
	if s.Ngrok.Enabled && s.Ngrok.AuthToken == "" {
		return fmt.Errorf("ngrok enabled but no auth token provided")
	}
	return nil
}

// ApplyDefaults fills zero values.
func (c *Client) ApplyDefaults() {
	if c.Host == "" {
		c.Host = DefaultClientHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Path == "" {
		c.Path = DefaultControllerPath
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = DefaultProbeInterval
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = DefaultSessionTimeout
	}
	if c.SendInterval <= 0 {
		c.SendInterval = DefaultSendInterval
	}
}

// Validate checks the client settings.
func (c Client) Validate() error {
	if err := validatePort(c.Port); err != nil {
		return err
	}
	if !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, c.Path)
	}
	return nil
}

// HubAddr is host:port of the hub as seen from the client.
func (c Client) HubAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// HealthURL is the liveness probe target.
func (c Client) HealthURL() string {
	return "http://" + c.HubAddr() + "/health"
}

// LinkURL is the controller-facing WebSocket endpoint.
func (c Client) LinkURL() string {
	return "ws://" + c.HubAddr() + c.Path
}

func validatePort(p int) error {
	if p < 1 || p > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, p)
	}
	return nil
}
