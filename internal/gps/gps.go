// Package gps resolves the antenna site position that tags recording
// sessions. Three providers are supported: a fixed manual position from
// the configuration, a gpsd daemon, and raw NMEA sentences on a serial
// port.
package gps

import (
	"bufio"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/stratoberry/go-gpsd"
	"go.bug.st/serial"
)

// Position is a resolved site fix.
type Position struct {
	Latitude   float64
	Longitude  float64
	Altitude   float64
	Timestamp  time.Time
	FixQuality int
	Satellites int
}

// Provider is the common surface of the position sources.
type Provider interface {
	Start() error
	WaitForFix(timeout time.Duration) (*Position, error)
	CurrentPosition() (*Position, error)
	Close() error
}

// New returns the provider for the configured mode.
func New(mode, port string, baud int, host, gpsdPort string, lat, lon, alt float64) (Provider, error) {
	switch mode {
	case "manual":
		return NewManual(lat, lon, alt), nil
	case "nmea":
		return NewNMEA(port, baud)
	case "gpsd":
		return NewGPSD(host, gpsdPort), nil
	default:
		return nil, fmt.Errorf("invalid GPS mode: %s (must be 'nmea', 'gpsd', or 'manual')", mode)
	}
}

// Manual is a fixed position taken from the configuration. It is the
// default for observatory installations where the antenna never moves.
type Manual struct {
	pos Position
}

// NewManual wraps fixed coordinates in a provider.
func NewManual(lat, lon, alt float64) *Manual {
	return &Manual{pos: Position{
		Latitude:   lat,
		Longitude:  lon,
		Altitude:   alt,
		Timestamp:  time.Now(),
		FixQuality: 7, // Manual input mode
	}}
}

func (m *Manual) Start() error { return nil }

func (m *Manual) WaitForFix(timeout time.Duration) (*Position, error) {
	pos := m.pos
	return &pos, nil
}

func (m *Manual) CurrentPosition() (*Position, error) {
	pos := m.pos
	return &pos, nil
}

func (m *Manual) Close() error { return nil }

// NMEA reads GGA/RMC sentences from a serial port.
type NMEA struct {
	port     serial.Port
	mu       sync.RWMutex
	position Position
	fixChan  chan Position
}

// NewNMEA opens the serial port in standard 8N1 framing.
func NewNMEA(portName string, baudRate int) (*NMEA, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open GPS port %s: %w", portName, err)
	}

	return &NMEA{
		port:    port,
		fixChan: make(chan Position, 10),
	}, nil
}

func (n *NMEA) Start() error {
	go n.readLoop()
	return nil
}

func (n *NMEA) readLoop() {
	scanner := bufio.NewScanner(n.port)
	log.Printf("GPS: starting NMEA read loop")

	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 || line[0] != '$' || !printableASCII(line) {
			continue
		}

		sentence, err := nmea.Parse(line)
		if err != nil {
			continue
		}
		if gga, ok := sentence.(nmea.GGA); ok {
			n.processGGA(gga)
		}
	}

	if err := scanner.Err(); err != nil {
		log.Printf("GPS: scanner error: %v", err)
	}
	log.Printf("GPS: NMEA read loop ended")
}

// printableASCII filters out binary protocol bursts (u-blox UBX and the
// like) interleaved with the NMEA stream.
func printableASCII(line string) bool {
	for _, r := range line {
		if r < 32 || r > 126 {
			return false
		}
	}
	return true
}

func (n *NMEA) processGGA(s nmea.GGA) {
	var quality int
	switch s.FixQuality {
	case nmea.GPS:
		quality = 1
	case nmea.DGPS:
		quality = 2
	case nmea.PPS:
		quality = 3
	case nmea.RTK:
		quality = 4
	case nmea.FRTK:
		quality = 5
	case nmea.Manual:
		quality = 7
	default:
		quality = 0
	}
	if quality == 0 {
		return
	}

	pos := Position{
		Latitude:   s.Latitude,
		Longitude:  s.Longitude,
		Altitude:   s.Altitude,
		Timestamp:  time.Now(),
		FixQuality: quality,
		Satellites: int(s.NumSatellites),
	}

	n.mu.Lock()
	n.position = pos
	n.mu.Unlock()

	select {
	case n.fixChan <- pos:
	default:
	}
}

func (n *NMEA) WaitForFix(timeout time.Duration) (*Position, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case pos := <-n.fixChan:
			if pos.FixQuality > 0 {
				return &pos, nil
			}
		case <-timer.C:
			return nil, fmt.Errorf("GPS fix timeout after %v", timeout)
		}
	}
}

func (n *NMEA) CurrentPosition() (*Position, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.position.FixQuality == 0 {
		return nil, fmt.Errorf("no GPS fix available")
	}
	pos := n.position
	return &pos, nil
}

func (n *NMEA) Close() error {
	if n.port != nil {
		return n.port.Close()
	}
	return nil
}

// GPSD subscribes to a gpsd daemon over its JSON socket.
type GPSD struct {
	client   *gpsd.Session
	mu       sync.RWMutex
	position Position
	fixChan  chan Position
	host     string
	port     string
}

// NewGPSD prepares a client; the connection is made in Start.
func NewGPSD(host, port string) *GPSD {
	return &GPSD{
		fixChan: make(chan Position, 10),
		host:    host,
		port:    port,
	}
}

func (g *GPSD) Start() error {
	address := fmt.Sprintf("%s:%s", g.host, g.port)
	client, err := gpsd.Dial(address)
	if err != nil {
		return fmt.Errorf("failed to connect to gpsd at %s: %w", address, err)
	}
	g.client = client

	g.client.AddFilter("TPV", func(r interface{}) {
		tpv, ok := r.(*gpsd.TPVReport)
		if !ok {
			return
		}

		// Mode 2 is a 2D fix, mode 3 a 3D fix; anything else is no fix.
		if tpv.Mode < 2 || (tpv.Lat == 0 && tpv.Lon == 0) {
			return
		}

		pos := Position{
			Latitude:   tpv.Lat,
			Longitude:  tpv.Lon,
			Altitude:   tpv.Alt,
			Timestamp:  tpv.Time,
			FixQuality: 1,
		}

		g.mu.Lock()
		pos.Satellites = g.position.Satellites
		g.position = pos
		g.mu.Unlock()

		select {
		case g.fixChan <- pos:
		default:
		}
	})

	g.client.AddFilter("SKY", func(r interface{}) {
		sky, ok := r.(*gpsd.SKYReport)
		if !ok {
			return
		}
		g.mu.Lock()
		g.position.Satellites = len(sky.Satellites)
		g.mu.Unlock()
	})

	g.client.Watch()
	return nil
}

func (g *GPSD) WaitForFix(timeout time.Duration) (*Position, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case pos := <-g.fixChan:
			if pos.FixQuality > 0 {
				return &pos, nil
			}
		case <-timer.C:
			return nil, fmt.Errorf("GPS fix timeout after %v", timeout)
		}
	}
}

func (g *GPSD) CurrentPosition() (*Position, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.position.FixQuality == 0 {
		return nil, fmt.Errorf("no GPS fix available")
	}
	pos := g.position
	return &pos, nil
}

func (g *GPSD) Close() error {
	if g.client != nil {
		g.client.Close()
	}
	return nil
}
