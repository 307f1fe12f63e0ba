// Package config loads plugin-mq settings from defaults, an optional config
// file and PLUGINMQ_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/srediag/plugin-mq/internal/logging"
	"github.com/srediag/plugin-mq/pkg/codec"
	"github.com/srediag/plugin-mq/pkg/container"
	"github.com/srediag/plugin-mq/pkg/transport"
)

// EnvPrefix prefixes every environment override, e.g. PLUGINMQ_HIGH_WATER_MARK.
const EnvPrefix = "PLUGINMQ"

// ErrInvalidConfig wraps every error reported by Verify.
var ErrInvalidConfig = errors.New("config: invalid")

var knownSchemes = []string{"tcp", "ipc", "inproc", "mem"}

// Config is the merged runtime configuration.
type Config struct {
	OutboundAddress        string        `mapstructure:"outbound_address"`
	InboundAddress         string        `mapstructure:"inbound_address"`
	HighWaterMark          int           `mapstructure:"high_water_mark"`
	ReceiveRetryInitial    time.Duration `mapstructure:"receive_retry_initial"`
	ReceiveRetryMax        time.Duration `mapstructure:"receive_retry_max"`
	ReceiveRetryMaxElapsed time.Duration `mapstructure:"receive_retry_max_elapsed"`
	// StopTimeout bounds a graceful stop.
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
	// Codec names the structured payload codec: json, cbor or proto.
	Codec string `mapstructure:"codec"`
	// AdminAddress serves health and metrics. Empty disables it.
	AdminAddress string `mapstructure:"admin_address"`
	LogLevel     string `mapstructure:"log_level"`
}

var defaultConfig = Config{
	OutboundAddress:        "tcp://127.0.0.1:5557",
	InboundAddress:         "tcp://127.0.0.1:5558",
	HighWaterMark:          container.DefaultHighWaterMark,
	ReceiveRetryInitial:    100 * time.Millisecond,
	ReceiveRetryMax:        5 * time.Second,
	ReceiveRetryMaxElapsed: time.Minute,
	StopTimeout:            5 * time.Second,
	Codec:                  "json",
	AdminAddress:           "127.0.0.1:8086",
	LogLevel:               "warn",
}

// Default returns a copy of the built-in defaults.
func Default() *Config {
	cfg := defaultConfig
	return &cfg
}

// Load merges defaults, the file at path (skipped when path is empty) and
// the environment. The file format follows its extension.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %q: %w", path, err)
		}
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		trimSpaceHook(),
	)
	if err := v.Unmarshal(&cfg, func(c *mapstructure.DecoderConfig) {
		c.DecodeHook = decodeHook
	}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func trimSpaceHook() mapstructure.DecodeHookFuncKind {
	return func(from, to reflect.Kind, data any) (any, error) {
		if s, ok := data.(string); ok && from == reflect.String && to == reflect.String {
			return strings.TrimSpace(s), nil
		}
		return data, nil
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("outbound_address", defaultConfig.OutboundAddress)
	v.SetDefault("inbound_address", defaultConfig.InboundAddress)
	v.SetDefault("high_water_mark", defaultConfig.HighWaterMark)
	v.SetDefault("receive_retry_initial", defaultConfig.ReceiveRetryInitial)
	v.SetDefault("receive_retry_max", defaultConfig.ReceiveRetryMax)
	v.SetDefault("receive_retry_max_elapsed", defaultConfig.ReceiveRetryMaxElapsed)
	v.SetDefault("stop_timeout", defaultConfig.StopTimeout)
	v.SetDefault("codec", defaultConfig.Codec)
	v.SetDefault("admin_address", defaultConfig.AdminAddress)
	v.SetDefault("log_level", defaultConfig.LogLevel)
}

// Verify reports every invalid field at once.
func (c *Config) Verify() error {
	var errs []error
	for _, a := range []struct{ key, val string }{
		{"outbound_address", c.OutboundAddress},
		{"inbound_address", c.InboundAddress},
	} {
		if err := verifyAddress(a.val); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", a.key, err))
		}
	}
	if c.HighWaterMark <= 0 {
		errs = append(errs, fmt.Errorf("high_water_mark must be > 0, got %d", c.HighWaterMark))
	}
	for _, d := range []struct {
		key string
		val time.Duration
	}{
		{"receive_retry_initial", c.ReceiveRetryInitial},
		{"receive_retry_max", c.ReceiveRetryMax},
		{"receive_retry_max_elapsed", c.ReceiveRetryMaxElapsed},
		{"stop_timeout", c.StopTimeout},
	} {
		if d.val <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0, got %s", d.key, d.val))
		}
	}
	if c.ReceiveRetryMax < c.ReceiveRetryInitial {
		errs = append(errs, fmt.Errorf("receive_retry_max %s is below receive_retry_initial %s", c.ReceiveRetryMax, c.ReceiveRetryInitial))
	}
	if _, err := codec.Lookup(c.Codec); err != nil {
		errs = append(errs, fmt.Errorf("codec: %w", err))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func verifyAddress(addr string) error {
	ep, err := transport.ParseEndpoint(addr)
	if err != nil {
		return err
	}
	for _, s := range knownSchemes {
		if ep.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("unknown scheme %q (allowed: %s)", ep.Scheme, strings.Join(knownSchemes, ", "))
}

// ContainerConfig maps the transport and retry settings onto a container
// config.
func (c *Config) ContainerConfig() *container.Config {
	cc := container.DefaultConfig()
	cc.OutboundAddress = c.OutboundAddress
	cc.InboundAddress = c.InboundAddress
	cc.HighWaterMark = c.HighWaterMark
	cc.ReceiveRetryInitial = c.ReceiveRetryInitial
	cc.ReceiveRetryMax = c.ReceiveRetryMax
	cc.ReceiveRetryMaxElapsed = c.ReceiveRetryMaxElapsed
	return cc
}

// WriteTOML renders c as TOML, durations in their string form.
func (c *Config) WriteTOML(w io.Writer) error {
	if w == nil {
		return errors.New("writer is required")
	}
	v := viper.New()
	v.SetConfigType("toml")
	v.Set("outbound_address", c.OutboundAddress)
	v.Set("inbound_address", c.InboundAddress)
	v.Set("high_water_mark", c.HighWaterMark)
	v.Set("receive_retry_initial", c.ReceiveRetryInitial.String())
	v.Set("receive_retry_max", c.ReceiveRetryMax.String())
	v.Set("receive_retry_max_elapsed", c.ReceiveRetryMaxElapsed.String())
	v.Set("stop_timeout", c.StopTimeout.String())
	v.Set("codec", c.Codec)
	v.Set("admin_address", c.AdminAddress)
	v.Set("log_level", c.LogLevel)
	if err := v.WriteConfigTo(w); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
