// Spectra Reader - Utility to display contents of CalanDigital recordings
// This program reads and displays the metadata and spectra from .cdsp files
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/FrancoCalan/CalanDigital/internal/plotter"
	"github.com/FrancoCalan/CalanDigital/internal/recorder"
	"github.com/FrancoCalan/CalanDigital/internal/spectra"
	"github.com/FrancoCalan/CalanDigital/internal/version"

	"github.com/spf13/cobra"
)

var (
	showGraph     bool
	graphFrame    int
	graphWidth    int
	graphHeight   int
	csvFile       string
	sqliteFile    string
	waterfallFile string
	wfSpectrum    int
	showVersion   bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "spectra-reader [file.cdsp]",
	Short: "Display contents of CalanDigital recording files",
	Long: `Spectra Reader displays the session metadata and recorded spectra from
CalanDigital .cdsp files and exports them to other formats.

Display modes:
  --graph      Render one recorded frame as a terminal graph
  --csv        Export the whole session as CSV
  --sqlite     Export the whole session into a SQLite database
  --waterfall  Render one spectrum of the session as a waterfall PNG`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		// Handle version flag
		if showVersion {
			fmt.Println(version.GetVersionInfo("Spectra Reader"))
			return
		}

		// Require filename if not showing version
		if len(args) == 0 {
			fmt.Fprintf(os.Stderr, "Error: filename required\n")
			cmd.Usage()
			os.Exit(1)
		}

		if err := displayFile(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "show version information")
	rootCmd.Flags().BoolVarP(&showGraph, "graph", "g", false, "render a recorded frame as a terminal graph")
	rootCmd.Flags().IntVar(&graphFrame, "frame", 0, "frame to graph (0-based)")
	rootCmd.Flags().IntVar(&graphWidth, "graph-width", 80, "width of the terminal graph in characters")
	rootCmd.Flags().IntVar(&graphHeight, "graph-height", 15, "height of the terminal graph in lines")
	rootCmd.Flags().StringVar(&csvFile, "csv", "", "export the session as CSV to this file")
	rootCmd.Flags().StringVar(&sqliteFile, "sqlite", "", "export the session into this SQLite database")
	rootCmd.Flags().StringVar(&waterfallFile, "waterfall", "", "render a waterfall PNG to this file")
	rootCmd.Flags().IntVar(&wfSpectrum, "spectrum", 0, "spectrum index for the waterfall")
}

// displayFile reads and displays the contents of a recording
func displayFile(filename string) error {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", filename)
	}

	session, frames, err := recorder.ReadSession(filename)
	if err != nil {
		return fmt.Errorf("failed to read recording: %w", err)
	}

	fmt.Printf("CALANDIGITAL RECORDING READER %s\n\n", version.GetFullVersion())

	fileInfo, err := os.Stat(filename)
	if err != nil {
		return err
	}

	fmt.Printf("📁 File Information:\n")
	fmt.Printf("Name: %s\n", filepath.Base(filename))
	fmt.Printf("Size: %.2f MB (%d bytes)\n", float64(fileInfo.Size())/(1024*1024), fileInfo.Size())
	fmt.Printf("Modified: %s\n\n", fileInfo.ModTime().Format("2006-01-02 15:04:05"))

	fmt.Printf("📋 Session Information:\n")
	fmt.Printf("Session ID: %s\n", session.ID)
	fmt.Printf("Started: %s\n", session.StartTime.Format("2006-01-02 15:04:05.000 MST"))
	fmt.Printf("Board: %s\n", session.Address)
	if session.Boffile != "" {
		fmt.Printf("Bitstream: %s\n", session.Boffile)
	}
	fmt.Printf("Site: %.8f°, %.8f° (%.1f m)\n", session.Latitude, session.Longitude, session.Altitude)
	fmt.Printf("Spectra: %d x %d channels over %.1f MHz\n",
		session.NSpecs, session.NChannels, session.Bandwidth)
	fmt.Printf("Accumulation: %d (%d bit ADC, %.2f dBFS full scale)\n\n",
		session.AccLen, session.NBits, session.DBFS)

	fmt.Printf("📊 Frames: %d\n", len(frames))
	if len(frames) > 0 {
		first, last := frames[0].Captured, frames[len(frames)-1].Captured
		fmt.Printf("Span: %s to %s (%v)\n\n",
			first.Format("15:04:05.000"), last.Format("15:04:05.000"), last.Sub(first))
	}

	if showGraph {
		if err := graphRecordedFrame(session, frames); err != nil {
			return err
		}
	}

	if csvFile != "" {
		if err := recorder.ExportCSV(csvFile, session, frames); err != nil {
			return err
		}
		fmt.Printf("CSV export: %s\n", csvFile)
	}
	if sqliteFile != "" {
		if err := recorder.ExportSQLite(sqliteFile, session, frames); err != nil {
			return err
		}
		fmt.Printf("SQLite export: %s\n", sqliteFile)
	}
	if waterfallFile != "" {
		if err := recorder.ExportWaterfall(waterfallFile, session, frames, wfSpectrum); err != nil {
			return err
		}
		fmt.Printf("Waterfall export: %s\n", waterfallFile)
	}

	return nil
}

// graphRecordedFrame renders one frame's spectra the way the live plotter
// would have shown them.
func graphRecordedFrame(session *recorder.Session, frames []recorder.Frame) error {
	if graphFrame < 0 || graphFrame >= len(frames) {
		return fmt.Errorf("frame %d out of range, recording has %d", graphFrame, len(frames))
	}

	fig, err := plotter.NewFigure(int(session.NSpecs), session.Bandwidth, session.DBFS)
	if err != nil {
		return err
	}

	freqs := make([]float64, session.NChannels)
	for i := range freqs {
		freqs[i] = session.Bandwidth * float64(i) / float64(session.NChannels)
	}

	frame := frames[graphFrame]
	for i, raw := range frame.Spectra {
		fig.Lines[i].SetData(freqs, spectra.ScaleDBFS(raw, int(session.AccLen), session.DBFS))
	}

	r := plotter.NewTermRenderer(os.Stdout, graphWidth, graphHeight)
	r.Plain = true
	fmt.Printf("📈 Frame %d (%s):\n", frame.Index, frame.Captured.Format("15:04:05.000"))
	return r.Render(fig)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
