package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Vision   VisionConfig   `yaml:"vision"`
	Matching MatchingConfig `yaml:"matching"`
	Camera   CameraConfig   `yaml:"camera"`
	Station  StationConfig  `yaml:"station"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type DatabaseConfig struct {
	Driver     string `yaml:"driver"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Name       string `yaml:"name"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	MaxConns   int    `yaml:"max_conns"`
	SQLitePath string `yaml:"sqlite_path"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type VisionConfig struct {
	Provider           string  `yaml:"provider"` // onnx or dlib
	ModelsDir          string  `yaml:"models_dir"`
	ONNXLibPath        string  `yaml:"onnx_lib_path"`
	DetectorModel      string  `yaml:"detector_model"`
	EmbedderModel      string  `yaml:"embedder_model"`
	EmbedderInput      string  `yaml:"embedder_input"`
	EmbedderOutput     string  `yaml:"embedder_output"`
	DetectionThreshold float64 `yaml:"detection_threshold"`
	WorkerCount        int     `yaml:"worker_count"`
}

type MatchingConfig struct {
	Threshold        float64       `yaml:"threshold"`
	DescriptorLength int           `yaml:"descriptor_length"`
	EnrollWidth      int           `yaml:"enroll_width"`
	VerifyWidth      int           `yaml:"verify_width"`
	ReadyTimeout     time.Duration `yaml:"ready_timeout"`
	ThumbnailSize    int           `yaml:"thumbnail_size"`
	ThumbnailQuality int           `yaml:"thumbnail_quality"`
}

type CameraConfig struct {
	Device      string `yaml:"device"` // device path or stream URL
	InputFormat string `yaml:"input_format"`
	FFmpegPath  string `yaml:"ffmpeg_path"`
	FPS         int    `yaml:"fps"`
}

type StationConfig struct {
	ID               string `yaml:"id"`
	MetricsPort      int    `yaml:"metrics_port"`
	CaptureRetention int    `yaml:"capture_retention"` // captures kept in object storage; 0 keeps all
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
// An empty path yields defaults plus environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Vision.Provider {
	case "onnx", "dlib":
	default:
		return fmt.Errorf("unknown vision provider %q", c.Vision.Provider)
	}
	if c.Matching.Threshold <= 0 {
		return fmt.Errorf("matching threshold must be positive, got %v", c.Matching.Threshold)
	}
	if c.Matching.DescriptorLength <= 0 {
		return fmt.Errorf("descriptor length must be positive, got %d", c.Matching.DescriptorLength)
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverPostgres
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "facegate.db"
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "facegate"
	}
	if cfg.Vision.Provider == "" {
		cfg.Vision.Provider = "onnx"
	}
	if cfg.Vision.DetectorModel == "" {
		cfg.Vision.DetectorModel = "det_10g.onnx"
	}
	if cfg.Vision.EmbedderModel == "" {
		cfg.Vision.EmbedderModel = "mobilefacenet_128.onnx"
	}
	if cfg.Vision.EmbedderInput == "" {
		cfg.Vision.EmbedderInput = "input.1"
	}
	if cfg.Vision.EmbedderOutput == "" {
		cfg.Vision.EmbedderOutput = "embedding"
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Vision.WorkerCount == 0 {
		cfg.Vision.WorkerCount = 4
	}
	if cfg.Matching.Threshold == 0 {
		cfg.Matching.Threshold = 0.52
	}
	if cfg.Matching.DescriptorLength == 0 {
		cfg.Matching.DescriptorLength = 128
	}
	if cfg.Matching.EnrollWidth == 0 {
		cfg.Matching.EnrollWidth = 640
	}
	if cfg.Matching.VerifyWidth == 0 {
		cfg.Matching.VerifyWidth = 480
	}
	if cfg.Matching.ReadyTimeout == 0 {
		cfg.Matching.ReadyTimeout = 5 * time.Second
	}
	if cfg.Matching.ThumbnailSize == 0 {
		cfg.Matching.ThumbnailSize = 128
	}
	if cfg.Matching.ThumbnailQuality == 0 {
		cfg.Matching.ThumbnailQuality = 75
	}
	if cfg.Camera.FFmpegPath == "" {
		cfg.Camera.FFmpegPath = "ffmpeg"
	}
	if cfg.Camera.FPS == 0 {
		cfg.Camera.FPS = 5
	}
	if cfg.Station.ID == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.Station.ID = host
		} else {
			cfg.Station.ID = "station"
		}
	}
	if cfg.Station.MetricsPort == 0 {
		cfg.Station.MetricsPort = 8081
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FACEGATE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FACEGATE_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("FACEGATE_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("FACEGATE_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("FACEGATE_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("FACEGATE_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("FACEGATE_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("FACEGATE_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("FACEGATE_SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("FACEGATE_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("FACEGATE_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("FACEGATE_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("FACEGATE_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("FACEGATE_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("FACEGATE_VISION_PROVIDER"); v != "" {
		cfg.Vision.Provider = v
	}
	if v := os.Getenv("FACEGATE_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("FACEGATE_ONNX_LIB"); v != "" {
		cfg.Vision.ONNXLibPath = v
	}
	if v := os.Getenv("FACEGATE_MATCH_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Matching.Threshold = f
		}
	}
	if v := os.Getenv("FACEGATE_CAMERA_DEVICE"); v != "" {
		cfg.Camera.Device = v
	}
	if v := os.Getenv("FACEGATE_STATION_ID"); v != "" {
		cfg.Station.ID = v
	}
	if v := os.Getenv("FACEGATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
