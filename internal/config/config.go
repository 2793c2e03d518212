package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel        string `yaml:"log_level"`
	LogFormat       string `yaml:"log_format"`
	OTLPEndpoint    string `yaml:"otlp_endpoint"`
	OTLPInsecure    bool   `yaml:"otlp_insecure"`
	TraceStdout     bool   `yaml:"trace_stdout"`
	MetricsTextfile string `yaml:"metrics_textfile"`
}

type Config struct {
	ServiceName string          `yaml:"service_name"`
	Environment string          `yaml:"environment"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Cleaner     CleanerConfig   `yaml:"cleaner"`
	STT         STTConfig       `yaml:"stt"`
	Entries     EntriesConfig   `yaml:"entries"`
	Summary     SummaryConfig   `yaml:"summary"`
	Journal     JournalConfig   `yaml:"journal"`
	Bus         BusConfig       `yaml:"bus"`
}

type CleanerConfig struct {
	WorkDir    string         `yaml:"work_dir"`
	FFmpegPath string         `yaml:"ffmpeg_path"`
	SampleRate int            `yaml:"sample_rate"`
	Denoiser   DenoiserConfig `yaml:"denoiser"`
}

type DenoiserConfig struct {
	Mode    string `yaml:"mode"` // exec, passthrough
	Command string `yaml:"command"`
	Device  string `yaml:"device"` // auto, cpu, cuda
}

type STTConfig struct {
	Mode      string `yaml:"mode"` // whisper, exec, mock
	Command   string `yaml:"command"`
	ModelDir  string `yaml:"model_dir"`
	ModelName string `yaml:"model_name"`
	ModelExt  string `yaml:"model_ext"`
	Language  string `yaml:"language"`
	Threads   int    `yaml:"threads"`
}

type EntriesConfig struct {
	Path string `yaml:"path"`
}

type SummaryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Mode        string  `yaml:"mode"` // mock, ollama, exec
	Endpoint    string  `yaml:"endpoint"`
	Command     string  `yaml:"command"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

type JournalConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
	MaxRuns       int    `yaml:"max_runs"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Servers        []string `yaml:"servers"`
	Subject        string   `yaml:"subject"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

func Default() Config {
	return Config{
		ServiceName: "loqa-scribe",
		Environment: "development",
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			LogFormat:    "text",
			OTLPInsecure: true,
		},
		Cleaner: CleanerConfig{
			FFmpegPath: "ffmpeg",
			SampleRate: 16000,
			Denoiser: DenoiserConfig{
				Mode:   "passthrough",
				Device: "auto",
			},
		},
		STT: STTConfig{
			Mode:      "whisper",
			ModelDir:  "models/whisper.cpp",
			ModelName: "ggml-tiny.bin",
			ModelExt:  ".bin",
			Language:  "de",
		},
		Entries: EntriesConfig{
			Path: "output/output.xml",
		},
		Summary: SummaryConfig{
			Enabled:     false,
			Mode:        "mock",
			Endpoint:    "http://localhost:11434",
			Model:       "llama3.2:latest",
			MaxTokens:   128,
			Temperature: 0.2,
		},
		Journal: JournalConfig{
			Enabled:       false,
			Path:          "./data/loqa-scribe.db",
			RetentionDays: 30,
			MaxRuns:       1000,
		},
		Bus: BusConfig{
			Enabled:        false,
			Servers:        []string{"nats://localhost:4222"},
			Subject:        "scribe.transcript.saved",
			ConnectTimeout: 2000,
		},
	}
}

// Load reads path over Default, applies env overrides and validates. A missing
// file is an error only when required is true.
func Load(path string, required bool) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config file: %w", err)
			}
		case os.IsNotExist(err):
			if required {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
		default:
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.ServiceName, "LOQA_SCRIBE_SERVICE_NAME")
	overrideString(&cfg.Environment, "LOQA_SCRIBE_ENVIRONMENT")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_SCRIBE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.LogFormat, "LOQA_SCRIBE_TELEMETRY_LOG_FORMAT")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_SCRIBE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_SCRIBE_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Telemetry.TraceStdout, "LOQA_SCRIBE_TELEMETRY_TRACE_STDOUT")
	overrideString(&cfg.Telemetry.MetricsTextfile, "LOQA_SCRIBE_TELEMETRY_METRICS_TEXTFILE")
	overrideString(&cfg.Cleaner.WorkDir, "LOQA_SCRIBE_CLEANER_WORK_DIR")
	overrideString(&cfg.Cleaner.FFmpegPath, "LOQA_SCRIBE_CLEANER_FFMPEG_PATH")
	overrideInt(&cfg.Cleaner.SampleRate, "LOQA_SCRIBE_CLEANER_SAMPLE_RATE")
	overrideString(&cfg.Cleaner.Denoiser.Mode, "LOQA_SCRIBE_DENOISER_MODE")
	overrideString(&cfg.Cleaner.Denoiser.Command, "LOQA_SCRIBE_DENOISER_COMMAND")
	overrideString(&cfg.Cleaner.Denoiser.Device, "LOQA_SCRIBE_DENOISER_DEVICE")
	overrideString(&cfg.STT.Mode, "LOQA_SCRIBE_STT_MODE")
	overrideString(&cfg.STT.Command, "LOQA_SCRIBE_STT_COMMAND")
	overrideString(&cfg.STT.ModelDir, "LOQA_SCRIBE_STT_MODEL_DIR")
	overrideString(&cfg.STT.ModelName, "LOQA_SCRIBE_STT_MODEL_NAME")
	overrideString(&cfg.STT.ModelExt, "LOQA_SCRIBE_STT_MODEL_EXT")
	overrideString(&cfg.STT.Language, "LOQA_SCRIBE_STT_LANGUAGE")
	overrideInt(&cfg.STT.Threads, "LOQA_SCRIBE_STT_THREADS")
	overrideString(&cfg.Entries.Path, "LOQA_SCRIBE_ENTRIES_PATH")
	overrideBool(&cfg.Summary.Enabled, "LOQA_SCRIBE_SUMMARY_ENABLED")
	overrideString(&cfg.Summary.Mode, "LOQA_SCRIBE_SUMMARY_MODE")
	overrideString(&cfg.Summary.Endpoint, "LOQA_SCRIBE_SUMMARY_ENDPOINT")
	overrideString(&cfg.Summary.Command, "LOQA_SCRIBE_SUMMARY_COMMAND")
	overrideString(&cfg.Summary.Model, "LOQA_SCRIBE_SUMMARY_MODEL")
	overrideInt(&cfg.Summary.MaxTokens, "LOQA_SCRIBE_SUMMARY_MAX_TOKENS")
	overrideFloat(&cfg.Summary.Temperature, "LOQA_SCRIBE_SUMMARY_TEMPERATURE")
	overrideBool(&cfg.Journal.Enabled, "LOQA_SCRIBE_JOURNAL_ENABLED")
	overrideString(&cfg.Journal.Path, "LOQA_SCRIBE_JOURNAL_PATH")
	overrideInt(&cfg.Journal.RetentionDays, "LOQA_SCRIBE_JOURNAL_RETENTION_DAYS")
	overrideInt(&cfg.Journal.MaxRuns, "LOQA_SCRIBE_JOURNAL_MAX_RUNS")
	overrideBool(&cfg.Bus.Enabled, "LOQA_SCRIBE_BUS_ENABLED")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_SCRIBE_BUS_SERVERS")
	overrideString(&cfg.Bus.Subject, "LOQA_SCRIBE_BUS_SUBJECT")
	overrideString(&cfg.Bus.Username, "LOQA_SCRIBE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_SCRIBE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_SCRIBE_BUS_TOKEN")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_SCRIBE_BUS_CONNECT_TIMEOUT_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	switch cfg.Telemetry.LogFormat {
	case "json", "text":
	default:
		return errors.New("telemetry.log_format must be one of json|text")
	}
	if cfg.Cleaner.SampleRate <= 0 {
		return errors.New("cleaner.sample_rate must be positive")
	}
	if cfg.Cleaner.FFmpegPath == "" {
		return errors.New("cleaner.ffmpeg_path must not be empty")
	}
	switch cfg.Cleaner.Denoiser.Mode {
	case "passthrough":
	case "exec":
		if cfg.Cleaner.Denoiser.Command == "" {
			return errors.New("cleaner.denoiser.command must be set when mode=exec")
		}
	default:
		return errors.New("cleaner.denoiser.mode must be one of exec|passthrough")
	}
	switch cfg.Cleaner.Denoiser.Device {
	case "auto", "cpu", "cuda":
	default:
		return errors.New("cleaner.denoiser.device must be one of auto|cpu|cuda")
	}
	switch cfg.STT.Mode {
	case "whisper", "mock":
	case "exec":
		if cfg.STT.Command == "" {
			return errors.New("stt.command must be set when mode=exec")
		}
	default:
		return errors.New("stt.mode must be one of whisper|exec|mock")
	}
	if cfg.STT.ModelDir == "" {
		return errors.New("stt.model_dir must not be empty")
	}
	if cfg.STT.ModelName == "" {
		return errors.New("stt.model_name must not be empty")
	}
	if cfg.STT.ModelExt == "" {
		return errors.New("stt.model_ext must not be empty")
	}
	if cfg.STT.Threads < 0 {
		return errors.New("stt.threads must be >= 0")
	}
	if cfg.Entries.Path == "" {
		return errors.New("entries.path must not be empty")
	}
	if cfg.Summary.Enabled {
		switch cfg.Summary.Mode {
		case "mock", "ollama", "exec":
		default:
			return errors.New("summary.mode must be one of mock|ollama|exec")
		}
		if cfg.Summary.Mode == "ollama" && cfg.Summary.Endpoint == "" {
			return errors.New("summary.endpoint must be set when mode=ollama")
		}
		if cfg.Summary.Mode == "exec" && cfg.Summary.Command == "" {
			return errors.New("summary.command must be set when mode=exec")
		}
		if cfg.Summary.MaxTokens < 0 {
			return errors.New("summary.max_tokens must be >= 0")
		}
	}
	if cfg.Journal.Enabled {
		if cfg.Journal.Path == "" {
			return errors.New("journal.path must not be empty when the journal is enabled")
		}
		if cfg.Journal.RetentionDays < 0 {
			return errors.New("journal.retention_days must be >= 0")
		}
	}
	if cfg.Bus.Enabled {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when the bus is enabled")
		}
		if cfg.Bus.Subject == "" {
			return errors.New("bus.subject must not be empty when the bus is enabled")
		}
	}
	return nil
}
