package hsicamera

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the file-backed configuration for a camera deployment. Only
// Camera.Host is mandatory; everything else has a working default.
type Config struct {
	Camera  CameraConfig  `yaml:"camera"`
	Capture CaptureConfig `yaml:"capture"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
}

// CameraConfig addresses the device and tunes the transport.
type CameraConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Timeouts in milliseconds; zero selects the transport defaults.
	GetTimeoutMS     int `yaml:"get_timeout_ms"`
	SetTimeoutMS     int `yaml:"set_timeout_ms"`
	ConnectTimeoutMS int `yaml:"connect_timeout_ms"`
	ReadTimeoutMS    int `yaml:"read_timeout_ms"`

	// HeaderDeadlineMS bounds the post-start header wait. Zero waits
	// indefinitely, matching the device's behavior in trigger modes.
	HeaderDeadlineMS int `yaml:"header_deadline_ms"`
}

// CaptureConfig is the acquisition setup applied before streaming.
// Negative values mean "leave the device setting alone".
type CaptureConfig struct {
	Mode        int    `yaml:"mode"`
	ExposureUS  int    `yaml:"exposure_us"`
	GainDB      int    `yaml:"gain_db"`
	Framerate   int    `yaml:"framerate"`
	PixelFormat string `yaml:"pixel_format"`
}

// MQTTConfig enables the telemetry emitter when Broker is set.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
}

// DefaultConfig returns a configuration with every optional field at its
// default. The host must still be filled in.
func DefaultConfig() Config {
	return Config{
		Capture: CaptureConfig{
			Mode:        -1,
			ExposureUS:  -1,
			GainDB:      -1,
			Framerate:   -1,
			PixelFormat: "",
		},
		MQTT: MQTTConfig{
			ClientID:    "hsi-capture",
			TopicPrefix: "hsi/camera",
			QoS:         1,
		},
	}
}

// LoadConfig reads and validates a yaml configuration file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the fields a typo would most plausibly corrupt.
func (c Config) Validate() error {
	if c.Camera.Host == "" {
		return fmt.Errorf("config: camera.host is required")
	}
	if c.Camera.Port < 0 || c.Camera.Port > 65535 {
		return fmt.Errorf("config: camera.port %d out of range", c.Camera.Port)
	}
	if c.Capture.PixelFormat != "" {
		if _, err := ParsePixelFormat(c.Capture.PixelFormat); err != nil {
			return fmt.Errorf("config: capture.pixel_format: %w", err)
		}
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("config: mqtt.qos %d out of range", c.MQTT.QoS)
	}
	return nil
}
