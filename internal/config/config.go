package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/terravision/gaze-calibration/internal/calibration"
	"github.com/terravision/gaze-calibration/internal/eval"
	"github.com/terravision/gaze-calibration/internal/gate"
)

// #region config
// Config holds every setting of the calibration service.
type Config struct {
	// Storage
	DBPath     string
	StorageKey string

	// Model
	Regularization float64
	Decay          float64
	MinSamples     int
	HistorySize    int

	// Admission and validation
	MinConfidence float64
	MaxResidual   float64 // px; 0 disables the outlier veto
	WarnPx        float64

	// MQTT
	MQTTBroker             string
	MQTTClientID           string
	TopicGazeRaw           string
	TopicGazeCorrected     string
	TopicCalibrationSample string

	// Servers
	GRPCAddr string
	HTTPAddr string

	// Stage
	ScreenWidth  int
	ScreenHeight int
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	mc := calibration.DefaultConfig()
	return Config{
		DBPath:                 "calibration.db",
		StorageKey:             "terra-vision-calibration",
		Regularization:         mc.Regularization,
		Decay:                  mc.Decay,
		MinSamples:             mc.MinSamples,
		HistorySize:            mc.HistorySize,
		MinConfidence:          0.45,
		MaxResidual:            0,
		WarnPx:                 65,
		MQTTBroker:             "tcp://localhost:1883",
		MQTTClientID:           "gaze-calibration",
		TopicGazeRaw:           "gaze/raw",
		TopicGazeCorrected:     "gaze/corrected",
		TopicCalibrationSample: "gaze/calibration/sample",
		GRPCAddr:               ":50061",
		HTTPAddr:               ":8080",
		ScreenWidth:            1920,
		ScreenHeight:           1080,
	}
}

// #endregion config

// #region load
// Load builds the configuration from defaults, then the KEY=VALUE file at
// path (skipped when path is empty), then the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if err := c.setValue(key, value); err != nil {
			return fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for _, key := range keys {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		if err := c.setValue(key, v); err != nil {
			return fmt.Errorf("env: %w", err)
		}
	}
	return nil
}

// #endregion load

// #region set-value
var keys = []string{
	"CALIBRATION_DB", "CALIBRATION_KEY",
	"CALIBRATION_REGULARIZATION", "CALIBRATION_DECAY", "CALIBRATION_MIN_SAMPLES", "CALIBRATION_HISTORY_SIZE",
	"GAZE_MIN_CONFIDENCE", "GAZE_MAX_RESIDUAL", "CALIBRATION_WARN_PX",
	"MQTT_BROKER", "MQTT_CLIENT_ID",
	"TOPIC_GAZE_RAW", "TOPIC_GAZE_CORRECTED", "TOPIC_CALIBRATION_SAMPLE",
	"GRPC_ADDR", "HTTP_ADDR",
	"SCREEN_WIDTH", "SCREEN_HEIGHT",
}

func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	case "CALIBRATION_DB":
		c.DBPath = value
	case "CALIBRATION_KEY":
		c.StorageKey = value
	case "CALIBRATION_REGULARIZATION":
		c.Regularization, err = parseFloat(key, value)
	case "CALIBRATION_DECAY":
		c.Decay, err = parseFloat(key, value)
	case "CALIBRATION_MIN_SAMPLES":
		c.MinSamples, err = parseInt(key, value)
	case "CALIBRATION_HISTORY_SIZE":
		c.HistorySize, err = parseInt(key, value)
	case "GAZE_MIN_CONFIDENCE":
		c.MinConfidence, err = parseFloat(key, value)
	case "GAZE_MAX_RESIDUAL":
		c.MaxResidual, err = parseFloat(key, value)
	case "CALIBRATION_WARN_PX":
		c.WarnPx, err = parseFloat(key, value)
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "TOPIC_GAZE_RAW":
		c.TopicGazeRaw = value
	case "TOPIC_GAZE_CORRECTED":
		c.TopicGazeCorrected = value
	case "TOPIC_CALIBRATION_SAMPLE":
		c.TopicCalibrationSample = value
	case "GRPC_ADDR":
		c.GRPCAddr = value
	case "HTTP_ADDR":
		c.HTTPAddr = value
	case "SCREEN_WIDTH":
		c.ScreenWidth, err = parseInt(key, value)
	case "SCREEN_HEIGHT":
		c.ScreenHeight, err = parseInt(key, value)
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return err
}

func parseFloat(key, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func parseInt(key, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

// #endregion set-value

// #region validate
// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("CALIBRATION_DB is required")
	}
	if c.StorageKey == "" {
		return fmt.Errorf("CALIBRATION_KEY is required")
	}
	if !(c.Regularization > 0) {
		return fmt.Errorf("CALIBRATION_REGULARIZATION must be positive, got %g", c.Regularization)
	}
	if !(c.Decay > 0 && c.Decay <= 1) {
		return fmt.Errorf("CALIBRATION_DECAY must be in (0,1], got %g", c.Decay)
	}
	if c.MinSamples <= 0 {
		return fmt.Errorf("CALIBRATION_MIN_SAMPLES must be positive, got %d", c.MinSamples)
	}
	if c.HistorySize <= 0 {
		return fmt.Errorf("CALIBRATION_HISTORY_SIZE must be positive, got %d", c.HistorySize)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("GAZE_MIN_CONFIDENCE must be in [0,1], got %g", c.MinConfidence)
	}
	if c.MaxResidual < 0 {
		return fmt.Errorf("GAZE_MAX_RESIDUAL must not be negative, got %g", c.MaxResidual)
	}
	if c.ScreenWidth <= 0 || c.ScreenHeight <= 0 {
		return fmt.Errorf("screen size must be positive, got %dx%d", c.ScreenWidth, c.ScreenHeight)
	}
	return nil
}

// #endregion validate

// #region derived
// Model returns the calibration model settings.
func (c Config) Model() calibration.Config {
	return calibration.Config{
		Regularization: c.Regularization,
		Decay:          c.Decay,
		MinSamples:     c.MinSamples,
		HistorySize:    c.HistorySize,
	}
}

// Gate returns the sample admission thresholds.
func (c Config) Gate() gate.GateConfig {
	return gate.GateConfig{
		MinConfidence: c.MinConfidence,
		ScreenWidth:   float64(c.ScreenWidth),
		ScreenHeight:  float64(c.ScreenHeight),
		MaxResidual:   c.MaxResidual,
	}
}

// Eval returns the pass validation thresholds.
func (c Config) Eval() eval.EvalConfig {
	ec := eval.DefaultEvalConfig()
	ec.WarnThreshold = c.WarnPx
	return ec
}

// #endregion derived
