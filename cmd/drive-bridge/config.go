package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kstaniek/go-drive-bridge/internal/layout"
	"github.com/kstaniek/go-drive-bridge/internal/logging"
)

const envPrefix = "DRIVE_BRIDGE_"

type appConfig struct {
	backend         string
	serialDev       string
	baud            int
	serialReadTO    time.Duration
	canIf           string
	canLinkUp       bool
	httpAddr        string
	logFormat       string
	logLevel        string
	driverBase      uint32
	motorBase       uint32
	txQueue         int
	openAttempts    uint
	openDelay       time.Duration
	mdnsEnable      bool
	mdnsName        string
	logMetricsEvery time.Duration
}

// idFlag accepts decimal or 0x-prefixed identifier bases.
type idFlag struct{ v *uint32 }

func (f idFlag) String() string {
	if f.v == nil {
		return ""
	}
	return fmt.Sprintf("0x%X", *f.v)
}

func (f idFlag) Set(s string) error {
	n, err := parseID(s)
	if err != nil {
		return err
	}
	*f.v = n
	return nil
}

func parseID(s string) (uint32, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid identifier %q: %w", s, err)
	}
	return uint32(n), nil
}

func defaultConfig() *appConfig {
	return &appConfig{
		backend:      "socketcan",
		serialDev:    "/dev/ttyUSB0",
		baud:         115200,
		serialReadTO: 50 * time.Millisecond,
		canIf:        "can0",
		httpAddr:     ":9100",
		logFormat:    "text",
		logLevel:     "info",
		driverBase:   layout.DefaultDriverBase,
		motorBase:    layout.DefaultMotorBase,
		txQueue:      txQueueSize,
		openAttempts: 5,
		openDelay:    500 * time.Millisecond,
	}
}

// parseFlags parses args, applies DRIVE_BRIDGE_* overrides for flags that were
// not given explicitly and validates the result.
func parseFlags(args []string, stderr io.Writer) (*appConfig, bool, error) {
	cfg := defaultConfig()
	fs := flag.NewFlagSet("drive-bridge", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.backend, "backend", cfg.backend, "CAN backend: serial|socketcan")
	fs.StringVar(&cfg.serialDev, "serial", cfg.serialDev, "Serial device path (when --backend=serial)")
	fs.IntVar(&cfg.baud, "baud", cfg.baud, "Serial baud rate")
	fs.DurationVar(&cfg.serialReadTO, "serial-read-timeout", cfg.serialReadTO, "Serial read timeout")
	fs.StringVar(&cfg.canIf, "can-if", cfg.canIf, "SocketCAN interface (when --backend=socketcan)")
	fs.BoolVar(&cfg.canLinkUp, "can-link-up", cfg.canLinkUp, "Bring the SocketCAN interface up before opening it (needs CAP_NET_ADMIN)")
	fs.StringVar(&cfg.httpAddr, "http-addr", cfg.httpAddr, "HTTP listen address for API and metrics; empty disables")
	fs.StringVar(&cfg.logFormat, "log-format", cfg.logFormat, "Log format: text|json")
	fs.StringVar(&cfg.logLevel, "log-level", cfg.logLevel, "Log level: debug|info|warn|error")
	fs.Var(idFlag{&cfg.driverBase}, "driver-base", "Identifier base of driver controls (default 0x500)")
	fs.Var(idFlag{&cfg.motorBase}, "motor-base", "Identifier base of motor controller broadcasts (default 0x400)")
	fs.IntVar(&cfg.txQueue, "tx-queue", cfg.txQueue, "Transmit queue capacity (frames)")
	fs.UintVar(&cfg.openAttempts, "open-attempts", cfg.openAttempts, "Attempts to open the backend device before giving up")
	fs.DurationVar(&cfg.openDelay, "open-delay", cfg.openDelay, "Initial delay between open attempts (doubles per attempt)")
	fs.BoolVar(&cfg.mdnsEnable, "mdns-enable", cfg.mdnsEnable, "Advertise the HTTP API via mDNS")
	fs.StringVar(&cfg.mdnsName, "mdns-name", cfg.mdnsName, "mDNS instance name (default drive-bridge-<hostname>)")
	fs.DurationVar(&cfg.logMetricsEvery, "log-metrics-interval", cfg.logMetricsEvery, "If >0, periodically log metrics counters")
	showVersion := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return nil, false, err
	}
	if *showVersion {
		return cfg, true, nil
	}

	// Explicit flags take precedence over the environment.
	set := map[string]struct{}{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = struct{}{} })
	if err := applyEnvOverrides(cfg, set); err != nil {
		return nil, false, fmt.Errorf("environment override: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, false, err
	}
	return cfg, false, nil
}

// validate checks values and ranges only; it does not open devices or listeners.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	if _, err := logging.ParseLevel(c.logLevel); err != nil {
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	switch c.backend {
	case "serial", "socketcan":
	default:
		return fmt.Errorf("invalid backend: %s", c.backend)
	}
	if c.baud <= 0 {
		return fmt.Errorf("baud must be > 0 (got %d)", c.baud)
	}
	if c.serialReadTO <= 0 {
		return fmt.Errorf("serial-read-timeout must be > 0")
	}
	if c.backend == "socketcan" && c.canIf == "" {
		return fmt.Errorf("can-if must be set for the socketcan backend")
	}
	if c.txQueue <= 0 {
		return fmt.Errorf("tx-queue must be > 0 (got %d)", c.txQueue)
	}
	if c.openAttempts == 0 {
		return fmt.Errorf("open-attempts must be >= 1")
	}
	if c.openDelay < 0 {
		return fmt.Errorf("open-delay must be >= 0")
	}
	if c.logMetricsEvery < 0 {
		return fmt.Errorf("log-metrics-interval must be >= 0")
	}
	if c.mdnsEnable && c.httpAddr == "" {
		return fmt.Errorf("mdns-enable requires http-addr")
	}
	if _, err := c.codec(); err != nil {
		return fmt.Errorf("identifier bases: %w", err)
	}
	return nil
}

// codec builds the layout codec for the configured identifier bases.
func (c *appConfig) codec() (*layout.Codec, error) {
	return layout.New(layout.WithDriverBase(c.driverBase), layout.WithMotorBase(c.motorBase))
}

// applyEnvOverrides maps DRIVE_BRIDGE_* variables onto c unless the matching
// flag is in set. Empty values are ignored; the first parse error is returned
// after all variables have been considered.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	fail := func(key string, err error) {
		if firstErr == nil {
			firstErr = fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
		}
	}
	lookup := func(flagName, key string) (string, bool) {
		if _, ok := set[flagName]; ok {
			return "", false
		}
		v, ok := os.LookupEnv(envPrefix + key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	str := func(flagName, key string, dst *string) {
		if v, ok := lookup(flagName, key); ok {
			*dst = v
		}
	}
	num := func(flagName, key string, dst *int) {
		if v, ok := lookup(flagName, key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				fail(key, err)
				return
			}
			*dst = n
		}
	}
	dur := func(flagName, key string, dst *time.Duration) {
		if v, ok := lookup(flagName, key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				fail(key, err)
				return
			}
			*dst = d
		}
	}
	boolean := func(flagName, key string, dst *bool) {
		if v, ok := lookup(flagName, key); ok {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				*dst = true
			case "0", "false", "no", "off":
				*dst = false
			default:
				fail(key, fmt.Errorf("not a boolean: %q", v))
			}
		}
	}
	id := func(flagName, key string, dst *uint32) {
		if v, ok := lookup(flagName, key); ok {
			n, err := parseID(v)
			if err != nil {
				fail(key, err)
				return
			}
			*dst = n
		}
	}

	str("backend", "BACKEND", &c.backend)
	str("serial", "SERIAL", &c.serialDev)
	num("baud", "BAUD", &c.baud)
	dur("serial-read-timeout", "SERIAL_READ_TIMEOUT", &c.serialReadTO)
	str("can-if", "IF", &c.canIf)
	boolean("can-link-up", "CAN_LINK_UP", &c.canLinkUp)
	// HTTP_ADDR may be set to empty to disable the listener.
	if _, ok := set["http-addr"]; !ok {
		if v, ok := os.LookupEnv(envPrefix + "HTTP_ADDR"); ok {
			c.httpAddr = strings.TrimSpace(v)
		}
	}
	str("log-format", "LOG_FORMAT", &c.logFormat)
	str("log-level", "LOG_LEVEL", &c.logLevel)
	id("driver-base", "DRIVER_BASE", &c.driverBase)
	id("motor-base", "MOTOR_BASE", &c.motorBase)
	num("tx-queue", "TX_QUEUE", &c.txQueue)
	if v, ok := lookup("open-attempts", "OPEN_ATTEMPTS"); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			fail("OPEN_ATTEMPTS", err)
		} else {
			c.openAttempts = uint(n)
		}
	}
	dur("open-delay", "OPEN_DELAY", &c.openDelay)
	boolean("mdns-enable", "MDNS_ENABLE", &c.mdnsEnable)
	str("mdns-name", "MDNS_NAME", &c.mdnsName)
	dur("log-metrics-interval", "LOG_METRICS_INTERVAL", &c.logMetricsEvery)
	return firstErr
}
