package gps

import (
	"testing"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/stratoberry/go-gpsd"
)

func TestManualProvider(t *testing.T) {
	p := NewManual(-33.4489, -70.6693, 570.0)

	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	pos, err := p.WaitForFix(time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForFix failed: %v", err)
	}
	if pos.Latitude != -33.4489 || pos.Longitude != -70.6693 || pos.Altitude != 570.0 {
		t.Errorf("position = (%v, %v, %v), want (-33.4489, -70.6693, 570)",
			pos.Latitude, pos.Longitude, pos.Altitude)
	}
	if pos.FixQuality != 7 {
		t.Errorf("fix quality = %d, want 7 (manual input mode)", pos.FixQuality)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestNewRejectsUnknownMode(t *testing.T) {
	if _, err := New("barometric", "", 0, "", "", 0, 0, 0); err == nil {
		t.Error("New with unknown mode succeeded, want error")
	}
}

func TestNewManualMode(t *testing.T) {
	p, err := New("manual", "", 0, "", "", 12.5, -70.1, 100)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	pos, err := p.CurrentPosition()
	if err != nil {
		t.Fatalf("CurrentPosition failed: %v", err)
	}
	if pos.Latitude != 12.5 {
		t.Errorf("latitude = %v, want 12.5", pos.Latitude)
	}
}

func TestNMEAProcessGGA(t *testing.T) {
	n := &NMEA{fixChan: make(chan Position, 10)}

	n.processGGA(nmea.GGA{
		FixQuality:    nmea.GPS,
		Latitude:      -33.45,
		Longitude:     -70.66,
		Altitude:      560,
		NumSatellites: 9,
	})

	pos, err := n.CurrentPosition()
	if err != nil {
		t.Fatalf("CurrentPosition failed: %v", err)
	}
	if pos.FixQuality != 1 {
		t.Errorf("fix quality = %d, want 1", pos.FixQuality)
	}
	if pos.Satellites != 9 {
		t.Errorf("satellites = %d, want 9", pos.Satellites)
	}

	select {
	case fix := <-n.fixChan:
		if fix.Latitude != -33.45 {
			t.Errorf("fix latitude = %v, want -33.45", fix.Latitude)
		}
	default:
		t.Error("no fix delivered on the channel")
	}
}

func TestNMEAIgnoresInvalidFix(t *testing.T) {
	n := &NMEA{fixChan: make(chan Position, 10)}

	n.processGGA(nmea.GGA{FixQuality: nmea.Invalid, Latitude: 1, Longitude: 2})

	if _, err := n.CurrentPosition(); err == nil {
		t.Error("CurrentPosition returned a position for an invalid fix")
	}
	select {
	case <-n.fixChan:
		t.Error("invalid fix was delivered on the channel")
	default:
	}
}

func TestGPSDSatelliteCountSurvivesTPV(t *testing.T) {
	g := NewGPSD("localhost", "2947")

	// SKY arrives first with the satellite count.
	g.position.Satellites = len(make([]gpsd.Satellite, 6))

	// A TPV-style update must keep the satellite count around.
	g.mu.Lock()
	pos := Position{Latitude: -33.45, Longitude: -70.66, FixQuality: 1, Satellites: g.position.Satellites}
	g.position = pos
	g.mu.Unlock()

	got, err := g.CurrentPosition()
	if err != nil {
		t.Fatalf("CurrentPosition failed: %v", err)
	}
	if got.Satellites != 6 {
		t.Errorf("satellites = %d, want 6", got.Satellites)
	}
}

func TestPrintableASCII(t *testing.T) {
	if !printableASCII("$GPGGA,123519,4807.038,N") {
		t.Error("valid NMEA line rejected")
	}
	if printableASCII("$GP\xb5\x62GA") {
		t.Error("binary burst accepted")
	}
}
