// Package config loads engine settings from an optional config file and
// ROWFLOW_ environment variables, and turns them into executor options.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/wbrown/janus-rowflow/rowflow/executor"
	"github.com/wbrown/janus-rowflow/rowflow/logging"
	"github.com/wbrown/janus-rowflow/rowflow/materialize"
)

// EnvPrefix is the environment variable prefix: batch.size is read from
// ROWFLOW_BATCH_SIZE
const EnvPrefix = "ROWFLOW"

// Keys beyond the executor's own setting keys
const (
	KeyPolicy    = "materialize.policy"
	KeyPolicyDir = "materialize.dir"
	KeyLogLevel  = "log.level"
	KeyLogFormat = "log.format"
)

// Materialization policy names
const (
	PolicyMemory = "memory"
	PolicyBadger = "badger"
)

var ErrUnknownPolicy = errors.New("unknown materialization policy")

// Settings implements executor.Settings over viper
type Settings struct {
	v *viper.Viper
}

// New returns settings holding only defaults and the environment
func New() *Settings {
	v := viper.New()
	v.SetDefault(executor.SettingBatchSize, executor.DefaultBatchSize)
	v.SetDefault(executor.SettingMaxScannedRows, 0)
	v.SetDefault(executor.SettingPushdownEnabled, true)
	v.SetDefault(executor.SettingApplyParallelism, 1)
	v.SetDefault(KeyPolicy, PolicyMemory)
	v.SetDefault(KeyPolicyDir, "")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Settings{v: v}
}

// Load reads path (yaml, toml or json by extension) over the defaults. An
// empty path loads defaults and the environment only.
func Load(path string) (*Settings, error) {
	s := New()
	if path == "" {
		return s, nil
	}
	s.v.SetConfigFile(path)
	if err := s.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return s, nil
}

func (s *Settings) Lookup(key string) (any, bool) {
	if !s.v.IsSet(key) {
		return nil, false
	}
	return s.v.Get(key), true
}

// Set overrides a key, as command line flags do
func (s *Settings) Set(key string, value any) { s.v.Set(key, value) }

func (s *Settings) String(key string) string { return cast.ToString(s.v.Get(key)) }

func (s *Settings) Int(key string) int { return cast.ToInt(s.v.Get(key)) }

// Logger builds the logger described by log.level and log.format
func (s *Settings) Logger(w io.Writer) *logging.Logger {
	return logging.New(logging.Config{
		Level:  s.String(KeyLogLevel),
		Format: s.String(KeyLogFormat),
		Output: w,
	})
}

// Policy opens the configured materialization policy. The closer releases
// whatever the policy holds open.
func (s *Settings) Policy() (materialize.Policy, io.Closer, error) {
	switch name := strings.ToLower(s.String(KeyPolicy)); name {
	case PolicyMemory, "":
		return materialize.MemoryPolicy{}, closerFunc(func() error { return nil }), nil
	case PolicyBadger:
		p, err := materialize.OpenBadgerPolicy(s.String(KeyPolicyDir), s.Int(executor.SettingBatchSize))
		if err != nil {
			return nil, nil, err
		}
		return p, p, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
}

// Options assembles executor options from the settings. Numeric limits are
// left to the context, which reads them back through Lookup.
func (s *Settings) Options(logger *logging.Logger) (executor.Options, io.Closer, error) {
	policy, closer, err := s.Policy()
	if err != nil {
		return executor.Options{}, nil, err
	}
	return executor.Options{Logger: logger, Settings: s, Policy: policy}, closer, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
