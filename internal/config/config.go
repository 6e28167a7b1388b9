// Package config provides the configuration record for the CalanDigital
// spectra tools.
package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	Roach   RoachConfig   `yaml:"roach"`   // ROACH board settings
	Spectra SpectraConfig `yaml:"spectra"` // Spectrometer model settings
	Display DisplayConfig `yaml:"display"` // Plot output settings
	Record  RecordConfig  `yaml:"record"`  // Session recording settings
	GPS     GPSConfig     `yaml:"gps"`     // Antenna site position settings
	Logging LoggingConfig `yaml:"logging"` // Logging configuration
}

// RoachConfig contains the board connection parameters
type RoachConfig struct {
	IP         string        `yaml:"ip"`          // ROACH IP address
	Port       int           `yaml:"port"`        // KATCP TCP port
	Boffile    string        `yaml:"boffile"`     // Bitstream to program (empty keeps the running design)
	Rver       int           `yaml:"rver"`        // ROACH version: 1 or 2
	UploadPort int           `yaml:"upload_port"` // Bitstream upload port (ROACH2 only)
	Timeout    time.Duration `yaml:"timeout"`     // Connect and request timeout
}

// SpectraConfig contains the spectrometer model parameters
type SpectraConfig struct {
	Bramnames []string `yaml:"bramnames"` // Names of bram blocks to read
	Nspecs    int      `yaml:"nspecs"`    // Number of independent spectra: 1, 2, 4 or 16
	Dtype     string   `yaml:"dtype"`     // Bram word layout, numpy style (e.g. ">i8")
	Addrwidth int      `yaml:"addrwidth"` // Bram address width in bits
	Datawidth int      `yaml:"datawidth"` // Bram data width in bits
	Bandwidth float64  `yaml:"bandwidth"` // Spectra bandwidth in MHz
	Nbits     int      `yaml:"nbits"`     // ADC sample bits
	Countreg  string   `yaml:"countreg"`  // Counter register, reset at initialization
	Accreg    string   `yaml:"accreg"`    // Accumulation register, set at initialization
	Acclen    int      `yaml:"acclen"`    // Accumulation length
}

// DisplayConfig contains the plot output parameters
type DisplayConfig struct {
	Mode     string        `yaml:"mode"`     // Display mode: "term", "png" or "none"
	Interval time.Duration `yaml:"interval"` // Delay between animation frames
	Width    int           `yaml:"width"`    // Per-axes graph width (characters or points)
	Height   int           `yaml:"height"`   // Per-axes graph height (characters or points)
	PNGFile  string        `yaml:"png_file"` // Output path for png mode
	Frames   int           `yaml:"frames"`   // Stop after this many frames (0 runs until interrupted)
}

// RecordConfig contains the session recording parameters
type RecordConfig struct {
	Enabled       bool   `yaml:"enabled"`        // Record every frame to a session file
	File          string `yaml:"file"`           // Recording file path
	CSVFile       string `yaml:"csv_file"`       // Export the session as CSV after the run
	SQLiteFile    string `yaml:"sqlite_file"`    // Export the session into sqlite after the run
	WaterfallFile string `yaml:"waterfall_file"` // Render a waterfall PNG after the run
}

// GPSConfig contains the site position parameters used to tag recordings
type GPSConfig struct {
	Mode      string        `yaml:"mode"`      // GPS mode: "manual", "nmea" or "gpsd"
	Port      string        `yaml:"port"`      // Serial port device path (for NMEA mode)
	BaudRate  int           `yaml:"baud_rate"` // Serial baud rate (for NMEA mode)
	GPSDHost  string        `yaml:"gpsd_host"` // GPSD host address (for gpsd mode)
	GPSDPort  string        `yaml:"gpsd_port"` // GPSD port (for gpsd mode)
	Timeout   time.Duration `yaml:"timeout"`   // Timeout for fix acquisition
	Latitude  float64       `yaml:"latitude"`  // Site latitude in decimal degrees (manual mode)
	Longitude float64       `yaml:"longitude"` // Site longitude in decimal degrees (manual mode)
	Altitude  float64       `yaml:"altitude"`  // Site altitude in meters (manual mode)
}

// LoggingConfig contains logging configuration parameters
type LoggingConfig struct {
	Level string `yaml:"level"` // Log level (debug, info, warn, error)
	File  string `yaml:"file"`  // Log file path (empty logs to stderr)
}

// DefaultConfig returns a configuration with sensible default values
func DefaultConfig() *Config {
	return &Config{
		Roach: RoachConfig{
			IP:         "",               // Required, no default
			Port:       7147,             // Stock tcpborphserver port
			Boffile:    "",               // Keep the running design by default
			Rver:       2,                // ROACH2 by default
			UploadPort: 3000,             // Bitstream upload port
			Timeout:    10 * time.Second, // Connect and request timeout
		},
		Spectra: SpectraConfig{
			Bramnames: nil,       // Required, no default
			Nspecs:    2,         // Two independent spectra
			Dtype:     ">i8",     // Big-endian signed 64 bit accumulators
			Addrwidth: 9,         // 512 word brams
			Datawidth: 64,        // 64 bit bram words
			Bandwidth: 1080.0,    // 1080 MHz bandwidth
			Nbits:     8,         // 8 bit ADC
			Countreg:  "cnt_rst", // Counter reset register
			Accreg:    "acc_len", // Accumulation length register
			Acclen:    65536,     // 2^16 accumulations
		},
		Display: DisplayConfig{
			Mode:     "term",                 // Terminal graph by default
			Interval: 500 * time.Millisecond, // Two frames per second
			Width:    80,                     // Graph width
			Height:   15,                     // Graph height
			PNGFile:  "spectra.png",          // Output for png mode
			Frames:   0,                      // Run until interrupted
		},
		Record: RecordConfig{
			Enabled: false,          // Recording off by default
			File:    "spectra.cdsp", // Recording file
		},
		GPS: GPSConfig{
			Mode:     "manual",         // Fixed coordinates by default
			Port:     "/dev/ttyUSB0",   // Common USB GPS device path
			BaudRate: 9600,             // Standard NMEA baud rate
			GPSDHost: "localhost",      // Default gpsd host
			GPSDPort: "2947",           // Default gpsd port
			Timeout:  30 * time.Second, // Fix acquisition timeout
		},
		Logging: LoggingConfig{
			Level: "info", // Info level logging
			File:  "",     // Log to stderr
		},
	}
}

// Validate rejects configurations the plotter cannot run with. The bram
// split check is deliberate: an uneven split is an operator error, not
// something to silently truncate.
func (c *Config) Validate() error {
	if c.Roach.IP == "" {
		return fmt.Errorf("ROACH IP address is required")
	}
	if c.Roach.Port <= 0 || c.Roach.Port > 65535 {
		return fmt.Errorf("invalid KATCP port: %d", c.Roach.Port)
	}
	if c.Roach.Rver != 1 && c.Roach.Rver != 2 {
		return fmt.Errorf("invalid ROACH version: %d (must be 1 or 2)", c.Roach.Rver)
	}

	switch c.Spectra.Nspecs {
	case 1, 2, 4, 16:
	default:
		return fmt.Errorf("invalid number of spectra: %d (must be 1, 2, 4 or 16)", c.Spectra.Nspecs)
	}
	if len(c.Spectra.Bramnames) == 0 {
		return fmt.Errorf("at least one bram name is required")
	}
	if len(c.Spectra.Bramnames)%c.Spectra.Nspecs != 0 {
		return fmt.Errorf("number of bram names (%d) is not divisible by the number of spectra (%d)",
			len(c.Spectra.Bramnames), c.Spectra.Nspecs)
	}
	if c.Spectra.Addrwidth <= 0 || c.Spectra.Addrwidth > 32 {
		return fmt.Errorf("invalid bram address width: %d", c.Spectra.Addrwidth)
	}
	if c.Spectra.Datawidth <= 0 || c.Spectra.Datawidth%8 != 0 {
		return fmt.Errorf("invalid bram data width: %d (must be a positive multiple of 8)", c.Spectra.Datawidth)
	}
	if c.Spectra.Bandwidth <= 0 {
		return fmt.Errorf("invalid bandwidth: %v", c.Spectra.Bandwidth)
	}
	if c.Spectra.Nbits <= 0 {
		return fmt.Errorf("invalid ADC bit count: %d", c.Spectra.Nbits)
	}
	if c.Spectra.Acclen <= 0 {
		return fmt.Errorf("invalid accumulation length: %d", c.Spectra.Acclen)
	}
	if c.Spectra.Countreg == "" || c.Spectra.Accreg == "" {
		return fmt.Errorf("register names must not be empty")
	}

	switch c.Display.Mode {
	case "term", "png", "none":
	default:
		return fmt.Errorf("invalid display mode: %s (must be 'term', 'png' or 'none')", c.Display.Mode)
	}
	if c.Display.Mode == "png" && c.Display.PNGFile == "" {
		return fmt.Errorf("png display mode requires an output file")
	}

	if c.Record.Enabled && c.Record.File == "" {
		return fmt.Errorf("recording requires a session file path")
	}

	return nil
}
