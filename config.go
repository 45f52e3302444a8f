package matsys

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/matsys/pushbuf"
	"github.com/gogpu/matsys/shadercache"
)

// ErrConfigFormat is returned for config files that are neither TOML nor
// YAML.
var ErrConfigFormat = errors.New("matsys: unknown config format")

// Config is the file form of the System options. Zero values keep the
// package defaults.
type Config struct {
	// ShaderRoot is the directory holding shaders/fxc, shaders/vsh,
	// shaders/psh and shaders/wgsl.
	ShaderRoot string `toml:"shader_root" yaml:"shader_root"`

	// LogLevel is one of debug, info, warn, error. Empty disables logging.
	LogLevel string `toml:"log_level" yaml:"log_level"`

	PushBuffer PushBufferConfig `toml:"push_buffer" yaml:"push_buffer"`
	Shaders    ShaderConfig     `toml:"shaders" yaml:"shaders"`
}

// PushBufferConfig configures the push-buffer engine.
type PushBufferConfig struct {
	Async              bool   `toml:"async" yaml:"async"`
	Buffered           bool   `toml:"buffered" yaml:"buffered"`
	Buffers            int    `toml:"buffers" yaml:"buffers"`
	BufferWords        int    `toml:"buffer_words" yaml:"buffer_words"`
	QueueCapacity      int    `toml:"queue_capacity" yaml:"queue_capacity"`
	RememberedCapacity int    `toml:"remembered_capacity" yaml:"remembered_capacity"`
	SpinLimit          int    `toml:"spin_limit" yaml:"spin_limit"`
	IdleSleep          string `toml:"idle_sleep" yaml:"idle_sleep"`
}

// ShaderConfig configures the shader combo cache.
type ShaderConfig struct {
	CreateOnDemand bool     `toml:"create_on_demand" yaml:"create_on_demand"`
	FileCacheSize  int      `toml:"file_cache_size" yaml:"file_cache_size"`
	PreloadWorkers int      `toml:"preload_workers" yaml:"preload_workers"`
	LoadWorkers    int      `toml:"load_workers" yaml:"load_workers"`
	DynamicCompile bool     `toml:"dynamic_compile" yaml:"dynamic_compile"`
	SourceDir      string   `toml:"source_dir" yaml:"source_dir"`
	CheckSourceCRC bool     `toml:"check_source_crc" yaml:"check_source_crc"`
	CompileRetries int      `toml:"compile_retries" yaml:"compile_retries"`
	RetryPause     string   `toml:"retry_pause" yaml:"retry_pause"`
	Watch          []string `toml:"watch" yaml:"watch"`
}

// DefaultConfig returns the configuration matching the package defaults
// with async replay enabled.
func DefaultConfig() Config {
	return Config{
		ShaderRoot: ".",
		PushBuffer: PushBufferConfig{Async: true},
		Shaders:    ShaderConfig{SourceDir: "shaders/wgsl"},
	}
}

// LoadConfig reads a .toml, .yaml or .yml file over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("matsys: read config: %w", err)
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	cfg, err := ParseConfig(data, format)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes data in the given format ("toml", "yaml" or "yml")
// over DefaultConfig. Unknown keys are errors.
func ParseConfig(data []byte, format string) (Config, error) {
	cfg := DefaultConfig()
	switch format {
	case "toml":
		dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("matsys: parse toml config: %w", err)
		}
	case "yaml", "yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("matsys: parse yaml config: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrConfigFormat, format)
	}
	return cfg, nil
}

// Logger builds a text logger writing to w at the configured level, or
// nil when LogLevel is empty.
func (c Config) Logger(w io.Writer) (*slog.Logger, error) {
	if c.LogLevel == "" {
		return nil, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return nil, fmt.Errorf("matsys: log level: %w", err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

// Options converts c to System options. fsys is the shader root used by
// the compiler and the source CRC check.
func (c Config) Options(fsys fs.FS) ([]Option, error) {
	var pb []pushbuf.Option
	p := c.PushBuffer
	if p.Buffers > 0 {
		pb = append(pb, pushbuf.WithBufferCount(p.Buffers))
	}
	if p.BufferWords > 0 {
		pb = append(pb, pushbuf.WithBufferWords(p.BufferWords))
	}
	if p.QueueCapacity > 0 {
		pb = append(pb, pushbuf.WithQueueCapacity(p.QueueCapacity))
	}
	if p.RememberedCapacity > 0 {
		pb = append(pb, pushbuf.WithRememberedCapacity(p.RememberedCapacity))
	}
	if p.Buffered {
		pb = append(pb, pushbuf.WithBufferedCalls())
	}
	if p.SpinLimit > 0 || p.IdleSleep != "" {
		sleep, err := parseDuration("push_buffer.idle_sleep", p.IdleSleep, 50*time.Microsecond)
		if err != nil {
			return nil, err
		}
		spin := p.SpinLimit
		if spin <= 0 {
			spin = 2000
		}
		pb = append(pb, pushbuf.WithIdlePolicy(spin, sleep))
	}

	var sc []shadercache.Option
	s := c.Shaders
	if s.CreateOnDemand {
		sc = append(sc, shadercache.WithCreateOnDemand())
	}
	if s.FileCacheSize > 0 {
		sc = append(sc, shadercache.WithFileCacheSize(s.FileCacheSize))
	}
	if s.PreloadWorkers > 0 {
		sc = append(sc, shadercache.WithPreloadWorkers(s.PreloadWorkers))
	}
	if s.DynamicCompile {
		comp := shadercache.NewNagaCompiler(fsys)
		if s.SourceDir != "" {
			comp.Dir = s.SourceDir
		}
		sc = append(sc, shadercache.WithDynamicCompile(comp))
		if s.CheckSourceCRC {
			sc = append(sc, shadercache.WithSourceCRC(shadercache.SourceFileCRC{
				FS:  fsys,
				Dir: comp.Dir,
				Ext: ".wgsl",
			}))
		}
	}
	if s.CompileRetries > 0 || s.RetryPause != "" {
		pause, err := parseDuration("shaders.retry_pause", s.RetryPause, 500*time.Millisecond)
		if err != nil {
			return nil, err
		}
		retries := s.CompileRetries
		if retries <= 0 {
			retries = 3
		}
		sc = append(sc, shadercache.WithCompileRetry(retries, pause))
	}

	opts := []Option{
		WithAsync(p.Async),
		WithPushBufferOptions(pb...),
		WithShaderCacheOptions(sc...),
	}
	if s.LoadWorkers > 0 {
		opts = append(opts, WithQueuedLoads(s.LoadWorkers))
	}
	if len(s.Watch) > 0 {
		dirs := make([]string, len(s.Watch))
		for i, d := range s.Watch {
			if !filepath.IsAbs(d) {
				d = filepath.Join(c.ShaderRoot, d)
			}
			dirs[i] = d
		}
		opts = append(opts, WithShaderWatch(dirs...))
	}
	return opts, nil
}

func parseDuration(key, s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("matsys: %s: %w", key, err)
	}
	return d, nil
}
