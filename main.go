// CalanDigital spectra plotter - live spectrometer display for ROACH boards
// This program connects to an FPGA spectrometer over KATCP, programs it,
// sets its accumulation registers and animates the spectra it produces.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FrancoCalan/CalanDigital/internal/config"
	"github.com/FrancoCalan/CalanDigital/internal/gps"
	"github.com/FrancoCalan/CalanDigital/internal/plotter"
	"github.com/FrancoCalan/CalanDigital/internal/recorder"
	"github.com/FrancoCalan/CalanDigital/internal/roach"
	"github.com/FrancoCalan/CalanDigital/internal/spectra"
	"github.com/FrancoCalan/CalanDigital/internal/version"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Command line flag variables
var (
	cfgFile     string   // Configuration file path
	ip          string   // ROACH IP address
	boffile     string   // Bitstream to program
	rver        int      // ROACH version: 1 or 2
	bramnames   []string // Bram names to read
	nspecs      int      // Number of simultaneous spectra
	dtype       string   // Bram word layout, numpy style
	addrwidth   int      // Bram address width in bits
	datawidth   int      // Bram data width in bits
	bandwidth   float64  // Spectra bandwidth in MHz
	nbits       int      // ADC sample bits
	countreg    string   // Counter reset register name
	accreg      string   // Accumulation length register name
	acclen      int      // Accumulation length
	displayMode string   // Display mode: term, png or none
	interval    string   // Delay between frames (e.g. "500ms")
	frames      int      // Frame budget, 0 runs until interrupted
	pngFile     string   // Output path for png display mode
	record      bool     // Record frames to a session file
	recordFile  string   // Session file path
	gpsMode     string   // GPS mode: manual, nmea or gpsd
	latitude    float64  // Site latitude in decimal degrees (manual mode)
	longitude   float64  // Site longitude in decimal degrees (manual mode)
	altitude    float64  // Site altitude in meters (manual mode)
	verbose     bool     // Enable verbose logging
	showVersion bool     // Show version information and exit
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "plot-spectra",
	Short: "Live spectra display for ROACH spectrometers",
	Long: `CalanDigital spectra plotter connects to a CASPER ROACH board over
KATCP, optionally programs a bitstream, sets the accumulation registers
and animates the spectrometer output as a grid of plots.`,
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion {
			fmt.Println(version.GetVersionInfo("plot-spectra"))
			return
		}
		if err := runPlotter(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

// init initializes the CLI flags and configuration
func init() {
	// Initialize configuration when cobra starts
	cobra.OnInitialize(initConfig)

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "./config.yaml", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Board connection options
	rootCmd.Flags().StringVarP(&ip, "ip", "i", "", "ROACH IP address")
	rootCmd.Flags().StringVarP(&boffile, "bof", "b", "", "bitstream to program (empty keeps the running design)")
	rootCmd.Flags().IntVarP(&rver, "rver", "r", 2, "ROACH version: 1 or 2")

	// Spectrometer model options
	rootCmd.Flags().StringSliceVar(&bramnames, "bramnames", nil, "bram names to read (comma separated)")
	rootCmd.Flags().IntVar(&nspecs, "nspecs", 2, "number of simultaneous spectra: 1, 2, 4 or 16")
	rootCmd.Flags().StringVar(&dtype, "dtype", ">i8", "bram word layout, numpy style")
	rootCmd.Flags().IntVar(&addrwidth, "addrwidth", 9, "bram address width in bits")
	rootCmd.Flags().IntVar(&datawidth, "datawidth", 64, "bram data width in bits")
	rootCmd.Flags().Float64Var(&bandwidth, "bandwidth", 1080.0, "spectra bandwidth (MHz)")
	rootCmd.Flags().IntVar(&nbits, "nbits", 8, "ADC sample bits")
	rootCmd.Flags().StringVar(&countreg, "countreg", "cnt_rst", "counter reset register")
	rootCmd.Flags().StringVar(&accreg, "accreg", "acc_len", "accumulation length register")
	rootCmd.Flags().IntVar(&acclen, "acclen", 65536, "accumulation length")

	// Display options
	rootCmd.Flags().StringVar(&displayMode, "display", "term", "display mode: term, png or none")
	rootCmd.Flags().StringVar(&interval, "interval", "500ms", "delay between animation frames")
	rootCmd.Flags().IntVar(&frames, "frames", 0, "stop after this many frames (0 runs until interrupted)")
	rootCmd.Flags().StringVar(&pngFile, "png-file", "spectra.png", "output file for png display mode")

	// Recording options
	rootCmd.Flags().BoolVar(&record, "record", false, "record every frame to a session file")
	rootCmd.Flags().StringVar(&recordFile, "record-file", "spectra.cdsp", "session file path")

	// Site position options (tags recordings)
	rootCmd.Flags().StringVar(&gpsMode, "gps-mode", "manual", "GPS mode: manual, nmea or gpsd")
	rootCmd.Flags().Float64Var(&latitude, "latitude", 0.0, "site latitude in decimal degrees (for manual mode)")
	rootCmd.Flags().Float64Var(&longitude, "longitude", 0.0, "site longitude in decimal degrees (for manual mode)")
	rootCmd.Flags().Float64Var(&altitude, "altitude", 0.0, "site altitude in meters (for manual mode)")

	rootCmd.Flags().BoolVar(&showVersion, "version", false, "show version information")

	// Bind command line flags to viper configuration keys
	viper.BindPFlag("roach.ip", rootCmd.Flags().Lookup("ip"))
	viper.BindPFlag("roach.boffile", rootCmd.Flags().Lookup("bof"))
	viper.BindPFlag("roach.rver", rootCmd.Flags().Lookup("rver"))
	viper.BindPFlag("spectra.bramnames", rootCmd.Flags().Lookup("bramnames"))
	viper.BindPFlag("spectra.nspecs", rootCmd.Flags().Lookup("nspecs"))
	viper.BindPFlag("spectra.dtype", rootCmd.Flags().Lookup("dtype"))
	viper.BindPFlag("spectra.addrwidth", rootCmd.Flags().Lookup("addrwidth"))
	viper.BindPFlag("spectra.datawidth", rootCmd.Flags().Lookup("datawidth"))
	viper.BindPFlag("spectra.bandwidth", rootCmd.Flags().Lookup("bandwidth"))
	viper.BindPFlag("spectra.nbits", rootCmd.Flags().Lookup("nbits"))
	viper.BindPFlag("spectra.countreg", rootCmd.Flags().Lookup("countreg"))
	viper.BindPFlag("spectra.accreg", rootCmd.Flags().Lookup("accreg"))
	viper.BindPFlag("spectra.acclen", rootCmd.Flags().Lookup("acclen"))
	viper.BindPFlag("display.mode", rootCmd.Flags().Lookup("display"))
	viper.BindPFlag("display.interval", rootCmd.Flags().Lookup("interval"))
	viper.BindPFlag("display.frames", rootCmd.Flags().Lookup("frames"))
	viper.BindPFlag("display.png_file", rootCmd.Flags().Lookup("png-file"))
	viper.BindPFlag("record.enabled", rootCmd.Flags().Lookup("record"))
	viper.BindPFlag("record.file", rootCmd.Flags().Lookup("record-file"))
	viper.BindPFlag("gps.mode", rootCmd.Flags().Lookup("gps-mode"))
	viper.BindPFlag("gps.latitude", rootCmd.Flags().Lookup("latitude"))
	viper.BindPFlag("gps.longitude", rootCmd.Flags().Lookup("longitude"))
	viper.BindPFlag("gps.altitude", rootCmd.Flags().Lookup("altitude"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config.yaml in current directory
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	// Read in environment variables that match
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig merges the defaults with the config file and the flags.
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()

	cfg.Roach.IP = viper.GetString("roach.ip")
	if v := viper.GetString("roach.boffile"); v != "" {
		cfg.Roach.Boffile = v
	}
	cfg.Roach.Rver = viper.GetInt("roach.rver")
	if v := viper.GetInt("roach.port"); v != 0 {
		cfg.Roach.Port = v
	}
	if v := viper.GetInt("roach.upload_port"); v != 0 {
		cfg.Roach.UploadPort = v
	}
	if v := viper.GetDuration("roach.timeout"); v != 0 {
		cfg.Roach.Timeout = v
	}

	cfg.Spectra.Bramnames = viper.GetStringSlice("spectra.bramnames")
	cfg.Spectra.Nspecs = viper.GetInt("spectra.nspecs")
	cfg.Spectra.Dtype = viper.GetString("spectra.dtype")
	cfg.Spectra.Addrwidth = viper.GetInt("spectra.addrwidth")
	cfg.Spectra.Datawidth = viper.GetInt("spectra.datawidth")
	cfg.Spectra.Bandwidth = viper.GetFloat64("spectra.bandwidth")
	cfg.Spectra.Nbits = viper.GetInt("spectra.nbits")
	cfg.Spectra.Countreg = viper.GetString("spectra.countreg")
	cfg.Spectra.Accreg = viper.GetString("spectra.accreg")
	cfg.Spectra.Acclen = viper.GetInt("spectra.acclen")

	cfg.Display.Mode = viper.GetString("display.mode")
	cfg.Display.Frames = viper.GetInt("display.frames")
	cfg.Display.PNGFile = viper.GetString("display.png_file")
	if v := viper.GetInt("display.width"); v != 0 {
		cfg.Display.Width = v
	}
	if v := viper.GetInt("display.height"); v != 0 {
		cfg.Display.Height = v
	}

	// Parse the interval string into a time.Duration
	intervalParsed, err := time.ParseDuration(viper.GetString("display.interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid interval format: %w", err)
	}
	cfg.Display.Interval = intervalParsed

	cfg.Record.Enabled = viper.GetBool("record.enabled")
	cfg.Record.File = viper.GetString("record.file")
	if v := viper.GetString("record.csv_file"); v != "" {
		cfg.Record.CSVFile = v
	}
	if v := viper.GetString("record.sqlite_file"); v != "" {
		cfg.Record.SQLiteFile = v
	}
	if v := viper.GetString("record.waterfall_file"); v != "" {
		cfg.Record.WaterfallFile = v
	}

	cfg.GPS.Mode = viper.GetString("gps.mode")
	cfg.GPS.Latitude = viper.GetFloat64("gps.latitude")
	cfg.GPS.Longitude = viper.GetFloat64("gps.longitude")
	cfg.GPS.Altitude = viper.GetFloat64("gps.altitude")
	if v := viper.GetString("gps.port"); v != "" {
		cfg.GPS.Port = v
	}
	if v := viper.GetInt("gps.baud_rate"); v != 0 {
		cfg.GPS.BaudRate = v
	}
	if v := viper.GetString("gps.gpsd_host"); v != "" {
		cfg.GPS.GPSDHost = v
	}
	if v := viper.GetString("gps.gpsd_port"); v != "" {
		cfg.GPS.GPSDPort = v
	}

	return cfg, nil
}

// runPlotter is the main application logic
func runPlotter() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	dt, err := roach.ParseDType(cfg.Spectra.Dtype)
	if err != nil {
		return fmt.Errorf("invalid dtype: %w", err)
	}
	if dt.ItemSize()*8 != cfg.Spectra.Datawidth {
		return fmt.Errorf("dtype %s is %d bits wide, bram words are %d",
			dt, dt.ItemSize()*8, cfg.Spectra.Datawidth)
	}

	params, err := spectra.DeriveParams(cfg.Spectra.Bramnames, cfg.Spectra.Nspecs,
		cfg.Spectra.Addrwidth, cfg.Spectra.Nbits, cfg.Spectra.Bandwidth)
	if err != nil {
		return err
	}

	// Display startup information
	fmt.Printf("CalanDigital spectra plotter starting...\n")
	fmt.Printf("Board: %s (ROACH%d)\n", cfg.Roach.IP, cfg.Roach.Rver)
	if cfg.Roach.Boffile != "" {
		fmt.Printf("Bitstream: %s\n", cfg.Roach.Boffile)
	}
	fmt.Printf("Spectra: %d x %d channels over %.1f MHz\n",
		cfg.Spectra.Nspecs, params.NChannels, cfg.Spectra.Bandwidth)
	fmt.Printf("Accumulation: %d (%.2f dBFS full scale)\n", cfg.Spectra.Acclen, params.DBFS)

	board, err := roach.Initialize(roach.Options{
		IP:         cfg.Roach.IP,
		Port:       cfg.Roach.Port,
		Boffile:    cfg.Roach.Boffile,
		Rver:       cfg.Roach.Rver,
		UploadPort: cfg.Roach.UploadPort,
		Timeout:    cfg.Roach.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize board: %w", err)
	}
	defer board.Close()

	// Set up signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Printf("\nReceived interrupt signal, shutting down...\n")
		cancel()
	}()

	if err := roach.SetupSpectrometer(ctx, board, cfg.Spectra.Accreg, cfg.Spectra.Acclen, cfg.Spectra.Countreg); err != nil {
		return err
	}

	fig, err := plotter.NewFigure(cfg.Spectra.Nspecs, cfg.Spectra.Bandwidth, params.DBFS)
	if err != nil {
		return err
	}

	var rec *recorder.Writer
	if cfg.Record.Enabled {
		rec, err = startRecording(cfg, board.Addr(), params)
		if err != nil {
			return err
		}
		defer rec.Close()
		fmt.Printf("Recording: %s (session %s)\n", cfg.Record.File, rec.Session().ID)
	}

	var renderer plotter.Renderer
	switch cfg.Display.Mode {
	case "term":
		renderer = plotter.NewTermRenderer(os.Stdout, cfg.Display.Width, cfg.Display.Height)
	case "png":
		renderer = plotter.NewPNGRenderer(cfg.Display.PNGFile, cfg.Display.Width, cfg.Display.Height)
	case "none":
		renderer = nil
	}

	frame := func(ctx context.Context) error {
		return updateSpectra(ctx, board, fig, params, dt, cfg, rec)
	}

	anim := &plotter.Animator{
		Interval: cfg.Display.Interval,
		Frames:   cfg.Display.Frames,
	}
	if err := anim.Run(ctx, fig, frame, renderer); err != nil && err != context.Canceled {
		return fmt.Errorf("animation failed: %w", err)
	}

	if rec != nil {
		fmt.Printf("Recorded %d frames.\n", rec.Frames())
		if err := rec.Close(); err != nil {
			return fmt.Errorf("failed to close recording: %w", err)
		}
		if err := exportRecording(cfg); err != nil {
			return err
		}
	}

	fmt.Printf("Done.\n")
	return nil
}

// updateSpectra reads every spectrum from the board, records the raw bins
// and refreshes the figure lines with their dBFS values.
func updateSpectra(ctx context.Context, dev roach.Device, fig *plotter.Figure,
	params spectra.Params, dt roach.DType, cfg *config.Config, rec *recorder.Writer) error {

	raw := make([][]float64, len(params.Groups))
	for i, group := range params.Groups {
		data, err := roach.ReadInterleaveData(ctx, dev, group,
			cfg.Spectra.Addrwidth, cfg.Spectra.Datawidth, dt)
		if err != nil {
			return err
		}
		raw[i] = data
	}

	if rec != nil {
		if err := rec.WriteFrame(time.Now(), raw); err != nil {
			return fmt.Errorf("failed to record frame: %w", err)
		}
	}

	for i, data := range raw {
		fig.Lines[i].SetData(params.Freqs, spectra.ScaleDBFS(data, cfg.Spectra.Acclen, params.DBFS))
	}
	return nil
}

// startRecording resolves the site position and opens the session file.
func startRecording(cfg *config.Config, addr string, params spectra.Params) (*recorder.Writer, error) {
	provider, err := gps.New(cfg.GPS.Mode, cfg.GPS.Port, cfg.GPS.BaudRate,
		cfg.GPS.GPSDHost, cfg.GPS.GPSDPort,
		cfg.GPS.Latitude, cfg.GPS.Longitude, cfg.GPS.Altitude)
	if err != nil {
		return nil, fmt.Errorf("failed to set up GPS: %w", err)
	}
	defer provider.Close()

	if err := provider.Start(); err != nil {
		return nil, fmt.Errorf("failed to start GPS: %w", err)
	}
	pos, err := provider.WaitForFix(cfg.GPS.Timeout)
	if err != nil {
		return nil, fmt.Errorf("GPS fix failed: %w", err)
	}

	session := recorder.Session{
		ID:        uuid.New().String(),
		StartTime: time.Now(),
		Address:   addr,
		Boffile:   cfg.Roach.Boffile,
		Latitude:  pos.Latitude,
		Longitude: pos.Longitude,
		Altitude:  pos.Altitude,
		Bandwidth: cfg.Spectra.Bandwidth,
		AccLen:    uint32(cfg.Spectra.Acclen),
		NBits:     uint16(cfg.Spectra.Nbits),
		NChannels: uint32(params.NChannels),
		NSpecs:    uint16(cfg.Spectra.Nspecs),
		DBFS:      params.DBFS,
	}

	return recorder.NewWriter(cfg.Record.File, session)
}

// exportRecording runs the post-run exports that have output paths set.
func exportRecording(cfg *config.Config) error {
	if cfg.Record.CSVFile == "" && cfg.Record.SQLiteFile == "" && cfg.Record.WaterfallFile == "" {
		return nil
	}

	session, recFrames, err := recorder.ReadSession(cfg.Record.File)
	if err != nil {
		return fmt.Errorf("failed to read back recording: %w", err)
	}

	if cfg.Record.CSVFile != "" {
		if err := recorder.ExportCSV(cfg.Record.CSVFile, session, recFrames); err != nil {
			return err
		}
		fmt.Printf("CSV export: %s\n", cfg.Record.CSVFile)
	}
	if cfg.Record.SQLiteFile != "" {
		if err := recorder.ExportSQLite(cfg.Record.SQLiteFile, session, recFrames); err != nil {
			return err
		}
		fmt.Printf("SQLite export: %s\n", cfg.Record.SQLiteFile)
	}
	if cfg.Record.WaterfallFile != "" {
		if err := recorder.ExportWaterfall(cfg.Record.WaterfallFile, session, recFrames, 0); err != nil {
			return err
		}
		fmt.Printf("Waterfall export: %s\n", cfg.Record.WaterfallFile)
	}
	return nil
}

// main is the entry point of the application
func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
