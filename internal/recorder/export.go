package recorder

import (
	"bytes"
	"database/sql"
	"encoding/binary"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	// Driver for the sqlite exporter.
	_ "github.com/mattn/go-sqlite3"

	"github.com/FrancoCalan/CalanDigital/internal/spectra"
)

const (
	sqlCreateSessions = `CREATE TABLE IF NOT EXISTS sessions (
		"ID"        TEXT NOT NULL PRIMARY KEY,
		"Start"     INTEGER,
		"Address"   TEXT,
		"Boffile"   TEXT,
		"Latitude"  REAL,
		"Longitude" REAL,
		"Altitude"  REAL,
		"Bandwidth" REAL,
		"AccLen"    INTEGER,
		"NBits"     INTEGER,
		"NChannels" INTEGER,
		"NSpecs"    INTEGER,
		"DBFS"      REAL
	);`
	sqlCreateFrames = `CREATE TABLE IF NOT EXISTS frames (
		"Session"  TEXT NOT NULL,
		"Frame"    INTEGER NOT NULL,
		"Spectrum" INTEGER NOT NULL,
		"Captured" INTEGER,
		"Bins"     BLOB NOT NULL
	);`
	sqlInsertSession = `INSERT OR REPLACE INTO sessions (
		ID, Start, Address, Boffile, Latitude, Longitude, Altitude,
		Bandwidth, AccLen, NBits, NChannels, NSpecs, DBFS
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`
	sqlInsertFrame = `INSERT INTO frames (
		Session, Frame, Spectrum, Captured, Bins
	) VALUES (?, ?, ?, ?, ?);`
)

// ExportCSV writes one row per channel per spectrum per frame, with power
// rescaled to dBFS from the raw recorded values.
func ExportCSV(filename string, session *Session, frames []Frame) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"frame", "spectrum", "channel", "freq_mhz", "power_dbfs"}); err != nil {
		return err
	}

	nchan := int(session.NChannels)
	for _, frame := range frames {
		for specIdx, raw := range frame.Spectra {
			power := spectra.ScaleDBFS(raw, int(session.AccLen), session.DBFS)
			for ch := 0; ch < nchan; ch++ {
				freq := session.Bandwidth * float64(ch) / float64(nchan)
				row := []string{
					strconv.FormatUint(uint64(frame.Index), 10),
					strconv.Itoa(specIdx),
					strconv.Itoa(ch),
					strconv.FormatFloat(freq, 'f', 6, 64),
					strconv.FormatFloat(power[ch], 'f', 6, 64),
				}
				if err := w.Write(row); err != nil {
					return err
				}
			}
		}
	}

	w.Flush()
	return w.Error()
}

// ExportSQLite writes the session and its frames into an sqlite database.
// Frame bins are stored raw as little-endian float64 blobs.
func ExportSQLite(filename string, session *Session, frames []Frame) error {
	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return fmt.Errorf("failed to open sqlite DB %s: %w", filename, err)
	}
	defer db.Close()

	for _, stmt := range []string{sqlCreateSessions, sqlCreateFrames} {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(sqlInsertSession,
		session.ID, session.StartTime.UnixMilli(), session.Address, session.Boffile,
		session.Latitude, session.Longitude, session.Altitude,
		session.Bandwidth, session.AccLen, session.NBits,
		session.NChannels, session.NSpecs, session.DBFS); err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	insert, err := tx.Prepare(sqlInsertFrame)
	if err != nil {
		return fmt.Errorf("failed to prepare frame insert: %w", err)
	}
	defer insert.Close()

	for _, frame := range frames {
		for specIdx, bins := range frame.Spectra {
			blob, err := binsBlob(bins)
			if err != nil {
				return err
			}
			if _, err := insert.Exec(session.ID, frame.Index, specIdx,
				frame.Captured.UnixMilli(), blob); err != nil {
				return fmt.Errorf("failed to insert frame %d: %w", frame.Index, err)
			}
		}
	}

	return tx.Commit()
}

func binsBlob(bins []float64) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(bins) * 8)
	if err := binary.Write(&buf, binary.LittleEndian, bins); err != nil {
		return nil, fmt.Errorf("failed to pack bins: %w", err)
	}
	return buf.Bytes(), nil
}
