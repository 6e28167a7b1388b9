// Package recorder persists animation frames to a binary session file and
// exports recordings to CSV, SQLite and waterfall images. Frames carry raw
// accumulator values so offline tools can re-derive dBFS from the header.
package recorder

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const fileMagic = "CDSP"

// FormatVersion is bumped whenever the file layout changes.
const FormatVersion uint16 = 1

// Session describes one recording run. It is written once as the file
// header and never changes afterwards.
type Session struct {
	ID        string    // Session UUID
	StartTime time.Time // Wall clock at the first frame
	Address   string    // ROACH KATCP address
	Boffile   string    // Bitstream in use, may be empty
	Latitude  float64   // Antenna site position
	Longitude float64
	Altitude  float64
	Bandwidth float64 // Spectra bandwidth in MHz
	AccLen    uint32  // Accumulation length
	NBits     uint16  // ADC sample bits
	NChannels uint32  // Channels per spectrum
	NSpecs    uint16  // Simultaneous spectra
	DBFS      float64 // Full-scale reference
}

// Frame is one animation tick worth of raw accumulator values, one slice
// per spectrum.
type Frame struct {
	Index    uint32
	Captured time.Time
	Spectra  [][]float64
}

// Writer appends frames to a session file.
type Writer struct {
	file    *os.File
	session Session
	frames  uint32
}

// NewWriter creates the session file and writes its header.
func NewWriter(filename string, session Session) (*Writer, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}

	if err := writeHeader(f, session); err != nil {
		f.Close()
		os.Remove(filename)
		return nil, fmt.Errorf("failed to write recording header: %w", err)
	}

	return &Writer{file: f, session: session}, nil
}

// Session returns the header this writer was created with.
func (w *Writer) Session() Session { return w.session }

// Frames returns the number of frames written so far.
func (w *Writer) Frames() uint32 { return w.frames }

// WriteFrame appends one frame. The spectra must match the shape declared
// in the session header.
func (w *Writer) WriteFrame(captured time.Time, spectra [][]float64) error {
	if len(spectra) != int(w.session.NSpecs) {
		return fmt.Errorf("frame has %d spectra, session declares %d", len(spectra), w.session.NSpecs)
	}
	for i, spec := range spectra {
		if len(spec) != int(w.session.NChannels) {
			return fmt.Errorf("spectrum %d has %d channels, session declares %d",
				i, len(spec), w.session.NChannels)
		}
	}

	if err := binary.Write(w.file, binary.LittleEndian, w.frames); err != nil {
		return fmt.Errorf("failed to write frame index: %w", err)
	}
	if err := writeTime(w.file, captured); err != nil {
		return fmt.Errorf("failed to write frame time: %w", err)
	}
	for _, spec := range spectra {
		if err := binary.Write(w.file, binary.LittleEndian, spec); err != nil {
			return fmt.Errorf("failed to write frame bins: %w", err)
		}
	}

	w.frames++
	return nil
}

// Close flushes and closes the session file.
func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func writeHeader(f *os.File, s Session) error {
	if _, err := f.WriteString(fileMagic); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, FormatVersion); err != nil {
		return err
	}
	for _, str := range []string{s.ID, s.Address, s.Boffile} {
		if err := writeString(f, str); err != nil {
			return err
		}
	}
	if err := writeTime(f, s.StartTime); err != nil {
		return err
	}
	for _, v := range []float64{s.Latitude, s.Longitude, s.Altitude, s.Bandwidth} {
		if err := binary.Write(f, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	if err := binary.Write(f, binary.LittleEndian, s.AccLen); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, s.NBits); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, s.NChannels); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, s.NSpecs); err != nil {
		return err
	}
	return binary.Write(f, binary.LittleEndian, s.DBFS)
}

func writeString(w io.Writer, s string) error {
	b := []byte(s)
	if len(b) > 255 {
		b = b[:255]
	}
	if err := binary.Write(w, binary.LittleEndian, uint8(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func writeTime(w io.Writer, t time.Time) error {
	if err := binary.Write(w, binary.LittleEndian, t.Unix()); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, int32(t.Nanosecond()))
}

// ReadHeader reads only the session header.
func ReadHeader(filename string) (*Session, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open recording: %w", err)
	}
	defer f.Close()

	return readHeader(f)
}

// ReadSession reads the header and every frame of a recording.
func ReadSession(filename string) (*Session, []Frame, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open recording: %w", err)
	}
	defer f.Close()

	session, err := readHeader(f)
	if err != nil {
		return nil, nil, err
	}

	var frames []Frame
	for {
		frame, err := readFrame(f, session)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read frame %d: %w", len(frames), err)
		}
		frames = append(frames, *frame)
	}

	return session, frames, nil
}

func readHeader(r io.Reader) (*Session, error) {
	magic := make([]byte, len(fileMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("failed to read magic: %w", err)
	}
	if string(magic) != fileMagic {
		return nil, fmt.Errorf("not a spectra recording (magic %q)", magic)
	}

	var version uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, err
	}
	if version != FormatVersion {
		return nil, fmt.Errorf("unsupported recording format version %d", version)
	}

	var s Session
	for _, dst := range []*string{&s.ID, &s.Address, &s.Boffile} {
		str, err := readString(r)
		if err != nil {
			return nil, err
		}
		*dst = str
	}

	start, err := readTime(r)
	if err != nil {
		return nil, err
	}
	s.StartTime = start

	for _, dst := range []*float64{&s.Latitude, &s.Longitude, &s.Altitude, &s.Bandwidth} {
		if err := binary.Read(r, binary.LittleEndian, dst); err != nil {
			return nil, err
		}
	}
	if err := binary.Read(r, binary.LittleEndian, &s.AccLen); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &s.NBits); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &s.NChannels); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &s.NSpecs); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &s.DBFS); err != nil {
		return nil, err
	}

	return &s, nil
}

func readFrame(r io.Reader, s *Session) (*Frame, error) {
	var frame Frame
	if err := binary.Read(r, binary.LittleEndian, &frame.Index); err != nil {
		return nil, err
	}

	captured, err := readTime(r)
	if err != nil {
		return nil, fmt.Errorf("truncated frame: %w", err)
	}
	frame.Captured = captured

	frame.Spectra = make([][]float64, s.NSpecs)
	for i := range frame.Spectra {
		bins := make([]float64, s.NChannels)
		if err := binary.Read(r, binary.LittleEndian, bins); err != nil {
			return nil, fmt.Errorf("truncated frame: %w", err)
		}
		frame.Spectra[i] = bins
	}
	return &frame, nil
}

func readString(r io.Reader) (string, error) {
	var n uint8
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func readTime(r io.Reader) (time.Time, error) {
	var sec int64
	var nsec int32
	if err := binary.Read(r, binary.LittleEndian, &sec); err != nil {
		return time.Time{}, err
	}
	if err := binary.Read(r, binary.LittleEndian, &nsec); err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, int64(nsec)), nil
}
