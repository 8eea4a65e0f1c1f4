package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Application
	Version     string
	Environment string
	WorkerID    string
	Port        int
	LogLevel    string

	// Rotating log file, empty disables it
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	// Logdy (lightweight web log viewer)
	LogdyEnabled bool
	LogdyHost    string
	LogdyPort    int

	// Storage
	UploadFolder  string
	ResultsFolder string
	MaxUploadMB   int

	// Analysis
	DefaultConfidence float64
	// Detector class id to semantic category, e.g. "0:player,32:ball" (COCO person, sports ball)
	CategoryMap string

	// Detector
	DetectorBackend    string // "onnx" or "grpc"
	ModelPath          string
	ModelInputSize     int
	NMSThreshold       float64
	DetectorGRPCURL    string
	DetectorGRPCMethod string
	AITimeout          time.Duration

	// Output video
	OutputEncoder string // "opencv" or "ffmpeg"
	OutputCodec   string // fourcc for the opencv encoder
	FFmpegBinary  string
	FFmpegPreset  string
	FFmpegCRF     int

	// Live MJPEG preview of running analyses
	PreviewEnabled  bool
	PreviewInterval time.Duration
	PreviewQuality  int

	// Overlay
	OverlayPlayerColor string
	OverlayBallColor   string
	OverlayTextColor   string
	OverlayFont        int

	// NATS (progress events)
	NatsEnabled        bool
	NatsURL            string
	NatsConnectTimeout time.Duration
	NatsReconnectWait  time.Duration
	NatsMaxReconnects  int
	ProgressSubject    string

	// Swagger Configuration
	SwaggerHost string
	SwaggerPort int

	// Graceful Shutdown
	ShutdownTimeout time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found or error loading .env file, using environment variables and defaults")
	} else {
		log.Info().Msg("Loaded configuration from .env file")
	}

	return &Config{
		// Application
		Version:     getEnv("VERSION", "1.0.0"),
		Environment: getEnv("ENVIRONMENT", "development"),
		WorkerID:    getEnv("WORKER_ID", "analyzer-1"),
		Port:        getEnvInt("PORT", 5000),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
		LogMaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 7),

		LogdyEnabled: getEnvBool("LOGDY_ENABLED", false),
		LogdyHost:    getEnv("LOGDY_HOST", "localhost"),
		LogdyPort:    getEnvInt("LOGDY_PORT", 8080),

		// Storage
		UploadFolder:  getEnv("UPLOAD_FOLDER", "uploads"),
		ResultsFolder: getEnv("RESULTS_FOLDER", "results"),
		MaxUploadMB:   getEnvInt("MAX_UPLOAD_MB", 512),

		// Analysis
		DefaultConfidence: getEnvFloat("DEFAULT_CONFIDENCE", 0.5),
		CategoryMap:       getEnv("CATEGORY_MAP", "0:player,32:ball"),

		// Detector
		DetectorBackend:    strings.ToLower(getEnv("DETECTOR_BACKEND", "onnx")),
		ModelPath:          getEnv("MODEL_PATH", "yolov8n.onnx"),
		ModelInputSize:     getEnvInt("MODEL_INPUT_SIZE", 640),
		NMSThreshold:       getEnvFloat("NMS_THRESHOLD", 0.45),
		DetectorGRPCURL:    getEnv("DETECTOR_GRPC_URL", "localhost:50052"),
		DetectorGRPCMethod: getEnv("DETECTOR_GRPC_METHOD", "/detection.DetectionService/Detect"),
		AITimeout:          getEnvDuration("AI_TIMEOUT", 5*time.Second),

		OutputEncoder: strings.ToLower(getEnv("OUTPUT_ENCODER", "opencv")),
		OutputCodec:   getEnv("OUTPUT_CODEC", "mp4v"),
		FFmpegBinary:  getEnv("FFMPEG_BINARY", "ffmpeg"),
		FFmpegPreset:  getEnv("FFMPEG_PRESET", "medium"),
		FFmpegCRF:     getEnvInt("FFMPEG_CRF", 23),

		PreviewEnabled:  getEnvBool("PREVIEW_ENABLED", true),
		PreviewInterval: getEnvDuration("PREVIEW_INTERVAL", 200*time.Millisecond),
		PreviewQuality:  getEnvInt("PREVIEW_QUALITY", 75),

		// Overlay
		OverlayPlayerColor: getEnv("OVERLAY_PLAYER_COLOR", "#00FF00"),
		OverlayBallColor:   getEnv("OVERLAY_BALL_COLOR", "#FFA500"),
		OverlayTextColor:   getEnv("OVERLAY_TEXT_COLOR", "#FFFFFF"),
		OverlayFont:        getEnvInt("OVERLAY_FONT", 0),

		// NATS
		NatsEnabled:        getEnvBool("NATS_ENABLED", false),
		NatsURL:            getNatsURL(),
		NatsConnectTimeout: getEnvDuration("NATS_CONNECT_TIMEOUT", 10*time.Second),
		NatsReconnectWait:  getEnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		NatsMaxReconnects:  getEnvInt("NATS_MAX_RECONNECTS", -1), // -1 = unlimited
		ProgressSubject:    getEnv("PROGRESS_SUBJECT", "analysis.progress"),

		SwaggerHost: getEnv("SWAGGER_HOST", "localhost"),
		SwaggerPort: getEnvInt("SWAGGER_PORT", 5000),

		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func isRunningInDocker() bool {
	if os.Getenv("DOCKER_CONTAINER") == "true" {
		return true
	}

	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}

	return false
}

// getNatsURL returns the appropriate NATS URL based on environment
func getNatsURL() string {
	if envURL := os.Getenv("NATS_URL"); envURL != "" {
		return envURL
	}

	// If running in Docker, use service name; otherwise use localhost
	if isRunningInDocker() {
		return "nats://nats:4222"
	}

	return "nats://localhost:4222"
}
