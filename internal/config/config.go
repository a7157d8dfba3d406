package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/DoyleJ11/gridsync/internal/grid"
	"github.com/joho/godotenv"
)

const (
	defaultAddr            = ":8080"
	defaultLogLevel        = "info"
	defaultMaxMessageBytes = 1 << 20
	defaultRatePerSecond   = 20
	defaultRateBurst       = 40
	defaultShutdownTimeout = 10 * time.Second
	defaultServerURL       = "http://localhost:8080"
	defaultOwner           = "currentUser"
	defaultLogFile         = "gridedit.log"
	maxGridSide            = 100
)

// Server holds settings for cmd/server.
type Server struct {
	Addr            string
	DatabaseURL     string
	LogLevel        string
	Dev             bool
	AllowedOrigins  []string
	MaxMessageBytes int64
	RatePerSecond   int
	RateBurst       int
	ShutdownTimeout time.Duration
}

// Editor holds settings for cmd/gridedit. Command-line flags override them.
type Editor struct {
	ServerURL string
	Owner     string
	Height    int
	Width     int
	LogLevel  string
	LogFile   string
}

// LoadDotEnv reads .env from the working directory when one exists.
// Variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	err := godotenv.Load(paths...)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func LoadServer() (Server, error) {
	addr, err := readRequiredOrDefault("GRIDSYNC_ADDR", defaultAddr)
	if err != nil {
		return Server{}, err
	}
	level, err := readRequiredOrDefault("GRIDSYNC_LOG_LEVEL", defaultLogLevel)
	if err != nil {
		return Server{}, err
	}
	dev, err := readBool("GRIDSYNC_DEV", false)
	if err != nil {
		return Server{}, err
	}
	maxBytes, err := readInt("GRIDSYNC_MAX_MESSAGE_BYTES", defaultMaxMessageBytes, 1024, 64<<20)
	if err != nil {
		return Server{}, err
	}
	perSecond, err := readInt("GRIDSYNC_RATE_PER_SECOND", defaultRatePerSecond, 1, 10000)
	if err != nil {
		return Server{}, err
	}
	burst, err := readInt("GRIDSYNC_RATE_BURST", defaultRateBurst, 1, 10000)
	if err != nil {
		return Server{}, err
	}
	shutdown, err := readDuration("GRIDSYNC_SHUTDOWN_TIMEOUT", defaultShutdownTimeout)
	if err != nil {
		return Server{}, err
	}

	return Server{
		Addr:            addr,
		DatabaseURL:     os.Getenv("GRIDSYNC_DATABASE_URL"),
		LogLevel:        level,
		Dev:             dev,
		AllowedOrigins:  readList("GRIDSYNC_ALLOWED_ORIGINS"),
		MaxMessageBytes: int64(maxBytes),
		RatePerSecond:   perSecond,
		RateBurst:       burst,
		ShutdownTimeout: shutdown,
	}, nil
}

func LoadEditor() (Editor, error) {
	server, err := readRequiredOrDefault("GRIDSYNC_SERVER", defaultServerURL)
	if err != nil {
		return Editor{}, err
	}
	owner, err := readRequiredOrDefault("GRIDSYNC_OWNER", defaultOwner)
	if err != nil {
		return Editor{}, err
	}
	height, err := readInt("GRIDSYNC_HEIGHT", grid.DefaultHeight, 1, maxGridSide)
	if err != nil {
		return Editor{}, err
	}
	width, err := readInt("GRIDSYNC_WIDTH", grid.DefaultWidth, 1, maxGridSide)
	if err != nil {
		return Editor{}, err
	}
	level, err := readRequiredOrDefault("GRIDSYNC_LOG_LEVEL", defaultLogLevel)
	if err != nil {
		return Editor{}, err
	}
	logFile, err := readRequiredOrDefault("GRIDSYNC_LOG_FILE", defaultLogFile)
	if err != nil {
		return Editor{}, err
	}

	return Editor{
		ServerURL: strings.TrimRight(server, "/"),
		Owner:     owner,
		Height:    height,
		Width:     width,
		LogLevel:  level,
		LogFile:   logFile,
	}, nil
}

// ValidateSize applies the same bounds as GRIDSYNC_HEIGHT and GRIDSYNC_WIDTH.
func ValidateSize(height, width int) error {
	if height < 1 || height > maxGridSide || width < 1 || width > maxGridSide {
		return fmt.Errorf("grid size %dx%d out of range 1..%d", height, width, maxGridSide)
	}
	return nil
}

// WebSocketURL maps the editor's http(s) server URL to the relay endpoint.
func (e Editor) WebSocketURL() string {
	switch {
	case strings.HasPrefix(e.ServerURL, "https://"):
		return "wss://" + strings.TrimPrefix(e.ServerURL, "https://") + "/ws"
	case strings.HasPrefix(e.ServerURL, "http://"):
		return "ws://" + strings.TrimPrefix(e.ServerURL, "http://") + "/ws"
	default:
		return e.ServerURL + "/ws"
	}
}

func readRequiredOrDefault(key, fallback string) (string, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	if raw == "" {
		return "", fmt.Errorf("%s must not be empty", key)
	}

	return raw, nil
}

func readInt(key string, fallback, min, max int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}

	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	if parsed < min || parsed > max {
		return 0, fmt.Errorf("%s must be between %d and %d", key, min, max)
	}

	return parsed, nil
}

func readBool(key string, fallback bool) (bool, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}

	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return parsed, nil
}

func readDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}

	return parsed, nil
}

// readList splits a comma separated variable, dropping blanks.
func readList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
