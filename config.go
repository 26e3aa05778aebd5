package igd

import (
	"fmt"
	"net/netip"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"gopkg.in/yaml.v3"
)

// Config controls discovery and control of a gateway.
type Config struct {
	// MulticastAddr is where M-SEARCH requests are sent.
	MulticastAddr netip.AddrPort
	// Attempts bounds the number of M-SEARCH requests.
	Attempts int
	// AttemptTimeout is how long each attempt waits for a reply.
	AttemptTimeout time.Duration
	// DialTimeout bounds TCP connection setup to the gateway.
	DialTimeout time.Duration
	// ControlPoint is sent as the CPFN.UPNP.ORG friendly name.
	ControlPoint string
	Clock        clock.Clock
	Metrics      *Metrics
}

// DefaultConfig returns the standard discovery settings: three attempts of
// one second each against the SSDP multicast group.
func DefaultConfig() Config {
	return Config{
		MulticastAddr:  netip.MustParseAddrPort(defaultMulticastAddr),
		Attempts:       defaultAttempts,
		AttemptTimeout: defaultAttemptWait,
		DialTimeout:    defaultDialTimeout,
		ControlPoint:   defaultControlPoint,
		Clock:          clock.New(),
	}
}

// Option adjusts a Config.
type Option func(*Config)

// WithMulticastAddr sets where M-SEARCH requests are sent.
func WithMulticastAddr(addr netip.AddrPort) Option {
	return func(c *Config) { c.MulticastAddr = addr }
}

// WithAttempts sets how many M-SEARCH requests are sent before giving up.
func WithAttempts(n int) Option {
	return func(c *Config) { c.Attempts = n }
}

// WithAttemptTimeout sets how long each M-SEARCH waits for a reply.
func WithAttemptTimeout(d time.Duration) Option {
	return func(c *Config) { c.AttemptTimeout = d }
}

// WithDialTimeout bounds TCP connection setup to the gateway.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Config) { c.DialTimeout = d }
}

// WithControlPoint sets the name sent in the USER-AGENT and CPFN.UPNP.ORG headers.
func WithControlPoint(name string) Option {
	return func(c *Config) { c.ControlPoint = name }
}

// WithClock replaces the clock used for discovery timeouts.
func WithClock(clk clock.Clock) Option {
	return func(c *Config) { c.Clock = clk }
}

// WithMetrics enables Prometheus collection.
func WithMetrics(m *Metrics) Option {
	return func(c *Config) { c.Metrics = m }
}

func newConfig(opts []Option) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Attempts < 1 {
		cfg.Attempts = defaultAttempts
	}
	return &cfg
}

// FileConfig is the YAML form of the client configuration used by igdctl.
type FileConfig struct {
	Bind           []string      `yaml:"bind"`
	MulticastAddr  string        `yaml:"multicast_addr"`
	Attempts       int           `yaml:"attempts"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	ControlPoint   string        `yaml:"control_point"`
	LogLevel       string        `yaml:"log_level"`
	Description    string        `yaml:"description"`
	Lease          time.Duration `yaml:"lease"`
}

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &fc, nil
}

// Options converts the non-zero fields into client options.
func (fc *FileConfig) Options() ([]Option, error) {
	var opts []Option
	if fc.MulticastAddr != "" {
		addr, err := netip.ParseAddrPort(fc.MulticastAddr)
		if err != nil {
			return nil, fmt.Errorf("invalid multicast_addr: %w", err)
		}
		opts = append(opts, WithMulticastAddr(addr))
	}
	if fc.Attempts > 0 {
		opts = append(opts, WithAttempts(fc.Attempts))
	}
	if fc.AttemptTimeout > 0 {
		opts = append(opts, WithAttemptTimeout(fc.AttemptTimeout))
	}
	if fc.DialTimeout > 0 {
		opts = append(opts, WithDialTimeout(fc.DialTimeout))
	}
	if fc.ControlPoint != "" {
		opts = append(opts, WithControlPoint(fc.ControlPoint))
	}
	return opts, nil
}

// BindAddrs parses the bind list. An empty list binds the IPv4 wildcard on an
// ephemeral port.
func (fc *FileConfig) BindAddrs() ([]netip.AddrPort, error) {
	return ParseBindAddrs(fc.Bind)
}

// ParseBindAddrs parses "ip:port" strings.
func ParseBindAddrs(specs []string) ([]netip.AddrPort, error) {
	if len(specs) == 0 {
		return []netip.AddrPort{netip.AddrPortFrom(netip.IPv4Unspecified(), 0)}, nil
	}
	addrs := make([]netip.AddrPort, 0, len(specs))
	for _, s := range specs {
		ap, err := netip.ParseAddrPort(s)
		if err != nil {
			return nil, fmt.Errorf("invalid bind address %q: %w", s, err)
		}
		addrs = append(addrs, ap)
	}
	return addrs, nil
}
