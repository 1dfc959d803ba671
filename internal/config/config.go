package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Release assets of the published Kokoro v1.0 ONNX export.
const (
	DefaultModelURL = "https://github.com/thewh1teagle/kokoro-onnx/releases/download/model-files-v1.0/kokoro-v1.0.onnx"
	DefaultDataURL  = "https://github.com/thewh1teagle/kokoro-onnx/releases/download/model-files-v1.0/voices-v1.0.bin"
)

type Config struct {
	Paths      PathsConfig      `mapstructure:"paths"`
	Runtime    RuntimeConfig    `mapstructure:"runtime"`
	TTS        TTSConfig        `mapstructure:"tts"`
	Phonemizer PhonemizerConfig `mapstructure:"phonemizer"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
}

type PathsConfig struct {
	Model        string `mapstructure:"model"`
	Data         string `mapstructure:"data"`
	ModelURL     string `mapstructure:"model_url"`
	DataURL      string `mapstructure:"data_url"`
	AutoDownload bool   `mapstructure:"auto_download"`
}

type RuntimeConfig struct {
	Backend        string   `mapstructure:"backend"`
	Providers      []string `mapstructure:"providers"`
	Instances      int      `mapstructure:"instances"`
	ORTLibraryPath string   `mapstructure:"ort_library_path"`
	ORTVersion     string   `mapstructure:"ort_version"`
	APIVersion     int      `mapstructure:"api_version"`
	TokensInput    string   `mapstructure:"tokens_input"`
	StyleInput     string   `mapstructure:"style_input"`
	SpeedInput     string   `mapstructure:"speed_input"`
}

type TTSConfig struct {
	Language       string  `mapstructure:"language"`
	Style          string  `mapstructure:"style"`
	Speed          float64 `mapstructure:"speed"`
	Mono           bool    `mapstructure:"mono"`
	InitialSilence int     `mapstructure:"initial_silence"`
	PhaseShift     float64 `mapstructure:"phase_shift"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	ParallelChunks bool    `mapstructure:"parallel_chunks"`
	SampleFormat   string  `mapstructure:"sample_format"`
}

type PhonemizerConfig struct {
	Command   string `mapstructure:"command"`
	CacheSize int    `mapstructure:"cache_size"`
}

type ServerConfig struct {
	IP              string        `mapstructure:"ip"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	MaxTextBytes    int           `mapstructure:"max_text_bytes"`
	QueueSize       int           `mapstructure:"queue_size"`
	RateLimit       float64       `mapstructure:"rate_limit"`
	RateBurst       int           `mapstructure:"rate_burst"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.IP, s.Port)
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Destination string `mapstructure:"destination"`
	File        string `mapstructure:"file"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			Model:        "checkpoints/kokoro-v1.0.onnx",
			Data:         "data/voices-v1.0.bin",
			ModelURL:     DefaultModelURL,
			DataURL:      DefaultDataURL,
			AutoDownload: true,
		},
		Runtime: RuntimeConfig{
			Backend:     BackendCPU,
			Providers:   []string{"CUDAExecutionProvider"},
			Instances:   2,
			APIVersion:  23,
			TokensInput: "input_ids",
			StyleInput:  "style",
			SpeedInput:  "speed",
		},
		TTS: TTSConfig{
			Language:     "en-us",
			Style:        "af_sarah.4+af_nicole.6",
			Speed:        1.0,
			MaxTokens:    500,
			SampleFormat: "f32",
		},
		Phonemizer: PhonemizerConfig{
			Command:   "espeak-ng -q --ipa",
			CacheSize: 4096,
		},
		Server: ServerConfig{
			IP:              "0.0.0.0",
			Port:            3000,
			ShutdownTimeout: 10 * time.Second,
			RequestTimeout:  5 * time.Minute,
			MaxTextBytes:    64 << 10,
			QueueSize:       64,
			RateBurst:       10,
		},
		Log: LogConfig{
			Level:       "info",
			Destination: LogCLI,
			File:        "logs/kokorotts.log",
		},
	}
}

// flagKeys maps config keys to the flag names that set them.
var flagKeys = []struct{ key, flag string }{
	{"paths.model", "model"},
	{"paths.data", "data"},
	{"paths.model_url", "model-url"},
	{"paths.data_url", "data-url"},
	{"paths.auto_download", "auto-download"},
	{"runtime.backend", "backend"},
	{"runtime.providers", "providers"},
	{"runtime.instances", "instances"},
	{"runtime.ort_library_path", "ort-lib"},
	{"runtime.ort_version", "ort-version"},
	{"tts.language", "lan"},
	{"tts.style", "style"},
	{"tts.speed", "speed"},
	{"tts.mono", "mono"},
	{"tts.initial_silence", "initial-silence"},
	{"tts.phase_shift", "stereo-phase-shift"},
	{"tts.max_tokens", "max-tokens"},
	{"tts.parallel_chunks", "parallel-chunks"},
	{"tts.sample_format", "sample-format"},
	{"phonemizer.command", "phonemizer"},
	{"server.ip", "ip"},
	{"server.port", "port"},
	{"server.queue_size", "queue-size"},
	{"server.rate_limit", "rate-limit"},
	{"server.max_text_bytes", "max-text-bytes"},
	{"log.level", "log-level"},
	{"log.destination", "log"},
	{"log.file", "log-file"},
}

// RegisterFlags adds the global synthesis flags shared by every command.
func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.StringP("lan", "l", defaults.TTS.Language, "espeak-ng language code of the input text")
	fs.StringP("model", "m", defaults.Paths.Model, "Path to the Kokoro ONNX model")
	fs.StringP("data", "d", defaults.Paths.Data, "Path to the voices data file (.bin/.npz, .json, .json.gz)")
	fs.StringP("style", "s", defaults.TTS.Style, `Style name or blend such as "af_sarah.4+af_nicole.6"`)
	fs.Float64P("speed", "p", defaults.TTS.Speed, "Speech rate coefficient (1.0 is normal)")
	fs.Bool("mono", defaults.TTS.Mono, "Write mono instead of stereo output")
	fs.Int("initial-silence", defaults.TTS.InitialSilence, "Silence tokens prepended to every chunk")
	fs.Float64("stereo-phase-shift", defaults.TTS.PhaseShift, "All-pass coefficient in [-1, 1] for the right channel")
	fs.Int("max-tokens", defaults.TTS.MaxTokens, "Token budget per chunk")
	fs.Bool("parallel-chunks", defaults.TTS.ParallelChunks, "Fan chunks of one request out across instances")
	fs.String("sample-format", defaults.TTS.SampleFormat, "Output sample format: f32 or s16")
	fs.Int("instances", defaults.Runtime.Instances, "Inference instances in server mode")
	fs.String("backend", defaults.Runtime.Backend, "Execution backend: cpu or accelerated")
	fs.StringSlice("providers", defaults.Runtime.Providers, "ONNX Runtime execution providers of the accelerated backend")
	fs.String("ort-lib", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library")
	fs.String("ort-version", defaults.Runtime.ORTVersion, "Expected ONNX Runtime version")
	fs.Bool("auto-download", defaults.Paths.AutoDownload, "Download the model and voices when missing")
	fs.String("model-url", defaults.Paths.ModelURL, "Model download URL")
	fs.String("data-url", defaults.Paths.DataURL, "Voices data download URL")
	fs.String("phonemizer", defaults.Phonemizer.Command, "Phonemizer command (espeak-ng compatible)")
	fs.String("log", defaults.Log.Destination, "Log destination: cli, file, all or none")
	fs.String("log-file", defaults.Log.File, "Log file path (a date suffix is appended)")
	fs.String("log-level", defaults.Log.Level, "Log level: debug, info, warn or error")
}

// RegisterServerFlags adds the flags of the HTTP server command.
func RegisterServerFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("ip", defaults.Server.IP, "Listen IP address")
	fs.Int("port", defaults.Server.Port, "Listen port")
	fs.Int("queue-size", defaults.Server.QueueSize, "Pending inference requests before callers block")
	fs.Float64("rate-limit", defaults.Server.RateLimit, "Requests per second allowed (0 disables)")
	fs.Int("max-text-bytes", defaults.Server.MaxTextBytes, "Largest accepted input text in bytes")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		fs := opts.Cmd.Flags()
		for _, fk := range flagKeys {
			f := fs.Lookup(fk.flag)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(fk.key, f); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", fk.flag, err)
			}
		}
	}

	v.SetEnvPrefix("KOKOROTTS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	if err := v.BindEnv("runtime.ort_library_path", "KOKOROTTS_ORT_LIB", "ORT_LIBRARY_PATH"); err != nil {
		return Config{}, fmt.Errorf("bind ort env vars: %w", err)
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("kokorotts")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.ExpandPaths(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.model", c.Paths.Model)
	v.SetDefault("paths.data", c.Paths.Data)
	v.SetDefault("paths.model_url", c.Paths.ModelURL)
	v.SetDefault("paths.data_url", c.Paths.DataURL)
	v.SetDefault("paths.auto_download", c.Paths.AutoDownload)
	v.SetDefault("runtime.backend", c.Runtime.Backend)
	v.SetDefault("runtime.providers", c.Runtime.Providers)
	v.SetDefault("runtime.instances", c.Runtime.Instances)
	v.SetDefault("runtime.ort_library_path", c.Runtime.ORTLibraryPath)
	v.SetDefault("runtime.ort_version", c.Runtime.ORTVersion)
	v.SetDefault("runtime.api_version", c.Runtime.APIVersion)
	v.SetDefault("runtime.tokens_input", c.Runtime.TokensInput)
	v.SetDefault("runtime.style_input", c.Runtime.StyleInput)
	v.SetDefault("runtime.speed_input", c.Runtime.SpeedInput)
	v.SetDefault("tts.language", c.TTS.Language)
	v.SetDefault("tts.style", c.TTS.Style)
	v.SetDefault("tts.speed", c.TTS.Speed)
	v.SetDefault("tts.mono", c.TTS.Mono)
	v.SetDefault("tts.initial_silence", c.TTS.InitialSilence)
	v.SetDefault("tts.phase_shift", c.TTS.PhaseShift)
	v.SetDefault("tts.max_tokens", c.TTS.MaxTokens)
	v.SetDefault("tts.parallel_chunks", c.TTS.ParallelChunks)
	v.SetDefault("tts.sample_format", c.TTS.SampleFormat)
	v.SetDefault("phonemizer.command", c.Phonemizer.Command)
	v.SetDefault("phonemizer.cache_size", c.Phonemizer.CacheSize)
	v.SetDefault("server.ip", c.Server.IP)
	v.SetDefault("server.port", c.Server.Port)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.max_text_bytes", c.Server.MaxTextBytes)
	v.SetDefault("server.queue_size", c.Server.QueueSize)
	v.SetDefault("server.rate_limit", c.Server.RateLimit)
	v.SetDefault("server.rate_burst", c.Server.RateBurst)
	v.SetDefault("log.level", c.Log.Level)
	v.SetDefault("log.destination", c.Log.Destination)
	v.SetDefault("log.file", c.Log.File)
}

// ExpandPaths resolves a leading "~" in file system paths.
func (c *Config) ExpandPaths() error {
	for _, p := range []*string{&c.Paths.Model, &c.Paths.Data, &c.Runtime.ORTLibraryPath, &c.Log.File} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks value ranges that flags and files cannot express.
func (c Config) Validate() error {
	if c.TTS.Speed <= 0 {
		return fmt.Errorf("speed must be > 0, got %v", c.TTS.Speed)
	}
	if c.TTS.InitialSilence < 0 {
		return fmt.Errorf("initial silence must be >= 0, got %d", c.TTS.InitialSilence)
	}
	if c.TTS.PhaseShift < -1 || c.TTS.PhaseShift > 1 {
		return fmt.Errorf("stereo phase shift must be in [-1, 1], got %v", c.TTS.PhaseShift)
	}
	if c.TTS.MaxTokens < 1 {
		return fmt.Errorf("max tokens must be >= 1, got %d", c.TTS.MaxTokens)
	}
	switch strings.ToLower(c.TTS.SampleFormat) {
	case "f32", "s16":
	default:
		return fmt.Errorf("invalid sample format %q (expected f32|s16)", c.TTS.SampleFormat)
	}
	if c.Runtime.Instances < 1 {
		return fmt.Errorf("instances must be >= 1, got %d", c.Runtime.Instances)
	}
	if _, err := NormalizeBackend(c.Runtime.Backend); err != nil {
		return err
	}
	if _, err := NormalizeLogDestination(c.Log.Destination); err != nil {
		return err
	}
	return nil
}
