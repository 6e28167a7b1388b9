package recorder

import (
	"database/sql"
	"encoding/csv"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testSession() Session {
	return Session{
		ID:        "4cf18dc7-3bcd-4f1c-9d4a-2e9ad67c8a11",
		StartTime: time.Date(2024, 8, 2, 15, 4, 5, 123000000, time.UTC),
		Address:   "192.168.1.12:7147",
		Boffile:   "spectrometer_2048.bof",
		Latitude:  -33.4489,
		Longitude: -70.6693,
		Altitude:  570.0,
		Bandwidth: 1080.0,
		AccLen:    65536,
		NBits:     8,
		NChannels: 4,
		NSpecs:    2,
		DBFS:      77.01,
	}
}

func testFrames() [][][]float64 {
	return [][][]float64{
		{{0, 10, 20, 30}, {1, 11, 21, 31}},
		{{100, 110, 120, 130}, {101, 111, 121, 131}},
		{{200, 210, 220, 230}, {201, 211, 221, 231}},
	}
}

func writeTestRecording(t *testing.T, dir string) string {
	t.Helper()

	path := filepath.Join(dir, "session.cdsp")
	w, err := NewWriter(path, testSession())
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	base := time.Date(2024, 8, 2, 15, 4, 6, 0, time.UTC)
	for i, spectra := range testFrames() {
		if err := w.WriteFrame(base.Add(time.Duration(i)*time.Second), spectra); err != nil {
			t.Fatalf("WriteFrame %d failed: %v", i, err)
		}
	}
	if w.Frames() != 3 {
		t.Fatalf("writer counted %d frames, want 3", w.Frames())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return path
}

func TestRecordingRoundTrip(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "recorder_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	path := writeTestRecording(t, tempDir)

	session, frames, err := ReadSession(path)
	if err != nil {
		t.Fatalf("ReadSession failed: %v", err)
	}

	want := testSession()
	if session.ID != want.ID {
		t.Errorf("ID = %q, want %q", session.ID, want.ID)
	}
	if session.Address != want.Address {
		t.Errorf("Address = %q, want %q", session.Address, want.Address)
	}
	if session.Boffile != want.Boffile {
		t.Errorf("Boffile = %q, want %q", session.Boffile, want.Boffile)
	}
	if !session.StartTime.Equal(want.StartTime) {
		t.Errorf("StartTime = %v, want %v", session.StartTime, want.StartTime)
	}
	if session.Latitude != want.Latitude || session.Longitude != want.Longitude {
		t.Errorf("position = (%v, %v), want (%v, %v)",
			session.Latitude, session.Longitude, want.Latitude, want.Longitude)
	}
	if session.AccLen != want.AccLen || session.NChannels != want.NChannels || session.NSpecs != want.NSpecs {
		t.Errorf("shape = (%d, %d, %d), want (%d, %d, %d)",
			session.AccLen, session.NChannels, session.NSpecs,
			want.AccLen, want.NChannels, want.NSpecs)
	}

	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	for i, frame := range frames {
		if frame.Index != uint32(i) {
			t.Errorf("frame %d has index %d", i, frame.Index)
		}
		wantSpectra := testFrames()[i]
		for s, spec := range frame.Spectra {
			for ch, v := range spec {
				if v != wantSpectra[s][ch] {
					t.Errorf("frame %d spectrum %d channel %d = %v, want %v",
						i, s, ch, v, wantSpectra[s][ch])
				}
			}
		}
	}
}

func TestReadHeaderOnly(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "recorder_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	path := writeTestRecording(t, tempDir)

	session, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	if session.NChannels != 4 || session.NSpecs != 2 {
		t.Errorf("header shape = (%d, %d), want (4, 2)", session.NChannels, session.NSpecs)
	}
}

func TestReadSessionRejectsWrongMagic(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "recorder_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	path := filepath.Join(tempDir, "bogus.cdsp")
	if err := os.WriteFile(path, []byte("WAVnot a recording"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if _, _, err := ReadSession(path); err == nil {
		t.Error("ReadSession of a foreign file succeeded, want error")
	}
}

func TestWriteFrameRejectsWrongShape(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "recorder_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	w, err := NewWriter(filepath.Join(tempDir, "s.cdsp"), testSession())
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	defer w.Close()

	if err := w.WriteFrame(time.Now(), [][]float64{{1, 2, 3, 4}}); err == nil {
		t.Error("WriteFrame with one spectrum succeeded, session declares two")
	}
	if err := w.WriteFrame(time.Now(), [][]float64{{1, 2}, {3, 4}}); err == nil {
		t.Error("WriteFrame with two channels succeeded, session declares four")
	}
}

func TestExportCSV(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "recorder_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	path := writeTestRecording(t, tempDir)
	session, frames, err := ReadSession(path)
	if err != nil {
		t.Fatalf("ReadSession failed: %v", err)
	}

	csvPath := filepath.Join(tempDir, "session.csv")
	if err := ExportCSV(csvPath, session, frames); err != nil {
		t.Fatalf("ExportCSV failed: %v", err)
	}

	f, err := os.Open(csvPath)
	if err != nil {
		t.Fatalf("failed to open CSV: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse CSV: %v", err)
	}

	// Header plus frames * spectra * channels rows.
	wantRows := 1 + 3*2*4
	if len(rows) != wantRows {
		t.Fatalf("got %d rows, want %d", len(rows), wantRows)
	}
	if rows[0][4] != "power_dbfs" {
		t.Errorf("header = %v", rows[0])
	}
}

func TestExportSQLite(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "recorder_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	path := writeTestRecording(t, tempDir)
	session, frames, err := ReadSession(path)
	if err != nil {
		t.Fatalf("ReadSession failed: %v", err)
	}

	dbPath := filepath.Join(tempDir, "session.db")
	if err := ExportSQLite(dbPath, session, frames); err != nil {
		t.Fatalf("ExportSQLite failed: %v", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("failed to open exported DB: %v", err)
	}
	defer db.Close()

	var sessions int
	if err := db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&sessions); err != nil {
		t.Fatalf("failed to count sessions: %v", err)
	}
	if sessions != 1 {
		t.Errorf("got %d sessions, want 1", sessions)
	}

	var frameRows int
	if err := db.QueryRow("SELECT COUNT(*) FROM frames").Scan(&frameRows); err != nil {
		t.Fatalf("failed to count frames: %v", err)
	}
	if frameRows != 3*2 {
		t.Errorf("got %d frame rows, want 6", frameRows)
	}

	var blob []byte
	if err := db.QueryRow("SELECT Bins FROM frames WHERE Frame = 0 AND Spectrum = 0").Scan(&blob); err != nil {
		t.Fatalf("failed to read bins blob: %v", err)
	}
	if len(blob) != 4*8 {
		t.Errorf("bins blob is %d bytes, want 32", len(blob))
	}
}

func TestExportWaterfall(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "recorder_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	path := writeTestRecording(t, tempDir)
	session, frames, err := ReadSession(path)
	if err != nil {
		t.Fatalf("ReadSession failed: %v", err)
	}

	imgPath := filepath.Join(tempDir, "waterfall.png")
	if err := ExportWaterfall(imgPath, session, frames, 0); err != nil {
		t.Fatalf("ExportWaterfall failed: %v", err)
	}

	f, err := os.Open(imgPath)
	if err != nil {
		t.Fatalf("failed to open waterfall: %v", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("waterfall is not a PNG: %v", err)
	}

	// Heatmap area is frames tall and channels wide plus the margins.
	if img.Bounds().Dx() <= int(session.NChannels) {
		t.Errorf("image width %d does not cover %d channels", img.Bounds().Dx(), session.NChannels)
	}
	if img.Bounds().Dy() <= len(frames) {
		t.Errorf("image height %d does not cover %d frames", img.Bounds().Dy(), len(frames))
	}

	// Out-of-range spectrum must be rejected.
	if err := ExportWaterfall(imgPath, session, frames, 5); err == nil {
		t.Error("ExportWaterfall for spectrum 5 succeeded, session has 2")
	}
}
