package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the fixture sequencer.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Station    StationConfig    `yaml:"station"`
	Fixture    FixtureConfig    `yaml:"fixture"`
	Sequencer  SequencerConfig  `yaml:"sequencer"`
	Programmer ProgrammerConfig `yaml:"programmer"`
	Checks     ChecksConfig     `yaml:"checks"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// StationConfig identifies the test station on the production line.
type StationConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// FixtureConfig describes the physical shape of the test fixture.
//
// Driver selects the board and programmer implementation: "sim" runs the
// whole fixture in memory, "jlink" programs through J-Link Commander while
// the boards stay simulated.
type FixtureConfig struct {
	Driver         string           `yaml:"driver"`
	SlotsPerBoard  int              `yaml:"slots_per_board"`
	PowerBoardID   int              `yaml:"power_board_id"`
	Boards         []BoardConfig    `yaml:"boards"`
	Simulation     SimulationConfig `yaml:"simulation"`
	ConnectTimeout time.Duration    `yaml:"connect_timeout"`
}

// BoardConfig describes one test board and the debug probe wired to it.
type BoardConfig struct {
	Number      int    `yaml:"number"`
	Serial      string `yaml:"serial"`
	ProbeSerial string `yaml:"probe_serial"`
}

// SimulationConfig drives the simulated fixture. Per-slot overrides replace
// the defaults for the matching board/slot pair.
type SimulationConfig struct {
	DetectRaw     int             `yaml:"detect_raw"`
	AINRaw        int             `yaml:"ain_raw"`
	CurrentRaw    int             `yaml:"current_raw"`
	TempRaw       int             `yaml:"temperature_raw"`
	RTCShortFirst bool            `yaml:"rtc_short_first"`
	Slots         []SimSlotConfig `yaml:"slots"`
	Disconnected  []int           `yaml:"disconnected"`
	Latency       time.Duration   `yaml:"latency"`
}

// SimSlotConfig overrides the simulated behaviour of one DUT.
type SimSlotConfig struct {
	Board     int    `yaml:"board"`
	Slot      int    `yaml:"slot"`
	Absent    bool   `yaml:"absent"`
	AINRaw    int    `yaml:"ain_raw"`
	ChipID    string `yaml:"chip_id"`
	DALIFail  bool   `yaml:"dali_fail"`
	RTCFail   bool   `yaml:"rtc_fail"`
	AccelFail bool   `yaml:"accel_fail"`
	RadioFail bool   `yaml:"radio_fail"`
	FlashFail bool   `yaml:"flash_fail"`
}

// SequencerConfig contains pipeline behaviour settings.
// ErrorPolicy is "continue" (default) or "abort".
type SequencerConfig struct {
	ErrorPolicy  string `yaml:"error_policy"`
	DetectPasses int    `yaml:"detect_passes"`
}

// ProgrammerConfig contains debug-probe programming settings.
// FlashMode is "dry-run" (connect, reset and resume only) or "live".
type ProgrammerConfig struct {
	Binary          string        `yaml:"binary"`
	TargetDevice    string        `yaml:"target_device"`
	SpeedKHz        int           `yaml:"speed_khz"`
	FlashMode       string        `yaml:"flash_mode"`
	TestImage       string        `yaml:"test_image"`
	ProductionImage string        `yaml:"production_image"`
	ImageOffset     string        `yaml:"image_offset"`
	Timeout         time.Duration `yaml:"timeout"`
}

// ChecksConfig contains functional check settings.
type ChecksConfig struct {
	Output12VEnabled     bool          `yaml:"output_12v_enabled"`
	Radio                RadioConfig   `yaml:"radio"`
	AccelerometerCommand []string      `yaml:"accelerometer_command"`
	RadioCommand         []string      `yaml:"radio_command"`
	CommandTimeout       time.Duration `yaml:"command_timeout"`
}

// RadioConfig contains the radio interface test parameters.
type RadioConfig struct {
	ModuleID string `yaml:"module_id"`
	Channel  int    `yaml:"channel"`
	Power    int    `yaml:"power"`
	RSSIMin  int    `yaml:"rssi_min"`
	RSSIMax  int    `yaml:"rssi_max"`
	Samples  int    `yaml:"samples"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: FIXTURE_SECTION_KEY
// For example: FIXTURE_DATABASE_PATH, FIXTURE_PROGRAMMER_FLASH_MODE
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config describing the standard 5-board, 3-slot fixture
// backed by the simulator.
func Default() *Config {
	return &Config{
		Station: StationConfig{
			ID:   "station-01",
			Name: "OLC NEMA fixture",
		},
		Fixture: FixtureConfig{
			Driver:        "sim",
			SlotsPerBoard: 3,
			PowerBoardID:  5,
			Boards: []BoardConfig{
				{Number: 1, Serial: "5CDA66603935"},
				{Number: 2, Serial: "5CDA626D3431"},
				{Number: 3, Serial: "5CDD786A3431"},
				{Number: 4, Serial: "5CE0646D3431"},
				{Number: 5, Serial: "5CDC766A3431"},
			},
			Simulation: SimulationConfig{
				DetectRaw:  48000,
				AINRaw:     71000,
				CurrentRaw: 125,
				TempRaw:    2048,
			},
			ConnectTimeout: 5 * time.Second,
		},
		Sequencer: SequencerConfig{
			ErrorPolicy:  "continue",
			DetectPasses: 2,
		},
		Programmer: ProgrammerConfig{
			Binary:       "JLinkExe",
			TargetDevice: "EFR32FG12PXXXF1024",
			SpeedKHz:     5000,
			FlashMode:    "dry-run",
			ImageOffset:  "0x0",
			Timeout:      60 * time.Second,
		},
		Checks: ChecksConfig{
			Radio: RadioConfig{
				ModuleID: "A5XK3RJTA",
				Channel:  19,
				Power:    80,
				RSSIMin:  -60,
				RSSIMax:  60,
				Samples:  7,
			},
			CommandTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:        "./data/fixture.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "fixture-sequencer",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: FIXTURE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FIXTURE_STATION_ID"); v != "" {
		cfg.Station.ID = v
	}

	if v := os.Getenv("FIXTURE_DRIVER"); v != "" {
		cfg.Fixture.Driver = v
	}

	if v := os.Getenv("FIXTURE_PROGRAMMER_FLASH_MODE"); v != "" {
		cfg.Programmer.FlashMode = v
	}
	if v := os.Getenv("FIXTURE_PROGRAMMER_BINARY"); v != "" {
		cfg.Programmer.Binary = v
	}

	if v := os.Getenv("FIXTURE_SEQUENCER_ERROR_POLICY"); v != "" {
		cfg.Sequencer.ErrorPolicy = v
	}

	if v := os.Getenv("FIXTURE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("FIXTURE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("FIXTURE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("FIXTURE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("FIXTURE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("FIXTURE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	if v := os.Getenv("FIXTURE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Station.ID == "" {
		errs = append(errs, "station.id is required")
	}

	switch c.Fixture.Driver {
	case "sim", "jlink":
	default:
		errs = append(errs, fmt.Sprintf("fixture.driver %q must be sim or jlink", c.Fixture.Driver))
	}
	if c.Fixture.SlotsPerBoard < 1 {
		errs = append(errs, "fixture.slots_per_board must be at least 1")
	}
	if len(c.Fixture.Boards) == 0 {
		errs = append(errs, "fixture.boards must list at least one board")
	}
	seen := make(map[int]bool, len(c.Fixture.Boards))
	for _, b := range c.Fixture.Boards {
		if b.Number < 1 {
			errs = append(errs, fmt.Sprintf("fixture.boards: number %d must be positive", b.Number))
		}
		if seen[b.Number] {
			errs = append(errs, fmt.Sprintf("fixture.boards: duplicate board number %d", b.Number))
		}
		seen[b.Number] = true
	}

	switch c.Sequencer.ErrorPolicy {
	case "continue", "abort":
	default:
		errs = append(errs, fmt.Sprintf("sequencer.error_policy %q must be continue or abort", c.Sequencer.ErrorPolicy))
	}
	if c.Sequencer.DetectPasses < 1 {
		errs = append(errs, "sequencer.detect_passes must be at least 1")
	}

	switch c.Programmer.FlashMode {
	case "dry-run":
	case "live":
		if c.Programmer.TestImage == "" {
			errs = append(errs, "programmer.test_image is required when flash_mode is live")
		}
	default:
		errs = append(errs, fmt.Sprintf("programmer.flash_mode %q must be dry-run or live", c.Programmer.FlashMode))
	}
	if c.Programmer.TargetDevice == "" {
		errs = append(errs, "programmer.target_device is required")
	}
	if c.Programmer.SpeedKHz <= 0 {
		errs = append(errs, "programmer.speed_khz must be positive")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ReadTimeout returns the API read timeout as a Duration.
func (c APIConfig) ReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// WriteTimeout returns the API write timeout as a Duration.
func (c APIConfig) WriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// IdleTimeout returns the API idle timeout as a Duration.
func (c APIConfig) IdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.Idle) * time.Second
}
