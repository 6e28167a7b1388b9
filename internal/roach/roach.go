// Package roach drives a CASPER ROACH board over KATCP: bitstream
// programming, register access and interleaved bram reads.
package roach

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/FrancoCalan/CalanDigital/internal/katcp"
)

// Device is the register and memory surface of a board. Roach implements
// it against real hardware; tests substitute a fake.
type Device interface {
	WriteInt(ctx context.Context, reg string, val int32) error
	ReadInt(ctx context.Context, reg string) (int32, error)
	Read(ctx context.Context, device string, offset, nbytes int) ([]byte, error)
}

// Options selects the board and how to bring it up.
type Options struct {
	IP         string        // Board address
	Port       int           // KATCP port, 7147 on stock tcpborphserver
	Boffile    string        // Bitstream to program; empty keeps the running design
	Rver       int           // ROACH version, 1 or 2
	UploadPort int           // Bitstream upload port (ROACH2 only)
	Timeout    time.Duration // Connect and request timeout
}

// Roach is a connected board.
type Roach struct {
	client *katcp.Client
	addr   string
}

// Initialize connects to the board, verifies the link with a watchdog ping
// and optionally programs a bitstream. ROACH1 boards program a boffile
// already present on the board via ?progdev; ROACH2 boards receive the
// local file over a second TCP connection opened by ?uploadbof.
func Initialize(opts Options) (*Roach, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	addr := net.JoinHostPort(opts.IP, strconv.Itoa(opts.Port))
	log.Printf("ROACH: connecting to %s", addr)
	client, err := katcp.Dial(addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ROACH: %w", err)
	}
	r := &Roach{client: client, addr: addr}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("ROACH did not answer watchdog: %w", err)
	}

	if opts.Boffile != "" {
		switch opts.Rver {
		case 1:
			err = r.Progdev(ctx, opts.Boffile)
		case 2:
			err = r.uploadBOF(ctx, opts.IP, opts.UploadPort, opts.Boffile, timeout)
		default:
			err = fmt.Errorf("unsupported ROACH version %d", opts.Rver)
		}
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to program %s: %w", opts.Boffile, err)
		}
		log.Printf("ROACH: programmed %s", opts.Boffile)
	}

	return r, nil
}

// Progdev programs a boffile that already lives on the board.
func (r *Roach) Progdev(ctx context.Context, boffile string) error {
	_, _, err := r.client.Request(ctx, "progdev", []byte(boffile))
	return err
}

// uploadBOF streams a local boffile to the board. The board opens a
// listener on the upload port when it receives the request, so the file is
// pushed from a goroutine while the request waits for its reply.
func (r *Roach) uploadBOF(ctx context.Context, ip string, port int, boffile string, timeout time.Duration) error {
	f, err := os.Open(boffile)
	if err != nil {
		return err
	}
	defer f.Close()

	uploadAddr := net.JoinHostPort(ip, strconv.Itoa(port))
	uploadErr := make(chan error, 1)
	go func() {
		uploadErr <- pushFile(uploadAddr, f, timeout)
	}()

	name := filepath.Base(boffile)
	_, _, reqErr := r.client.Request(ctx, "uploadbof",
		[]byte(strconv.Itoa(port)), []byte(name))

	if err := <-uploadErr; err != nil && reqErr == nil {
		return fmt.Errorf("upload to %s: %w", uploadAddr, err)
	}
	return reqErr
}

// pushFile copies the bitstream to the board's upload listener, retrying
// the dial briefly because the listener appears only after the board has
// parsed the request.
func pushFile(addr string, f io.Reader, timeout time.Duration) error {
	var conn net.Conn
	var err error
	deadline := time.Now().Add(timeout)
	for {
		conn, err = net.DialTimeout("tcp", addr, time.Second)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(100 * time.Millisecond)
	}
	defer conn.Close()

	if _, err := io.Copy(conn, f); err != nil {
		return err
	}
	return nil
}

// WriteInt packs val big-endian into a 4 byte register write and reads the
// register back to verify it. The spectrometer registers are all 32 bit.
func (r *Roach) WriteInt(ctx context.Context, reg string, val int32) error {
	buf := []byte{byte(val >> 24), byte(val >> 16), byte(val >> 8), byte(val)}
	if _, _, err := r.client.Request(ctx, "write", []byte(reg), []byte("0"), buf); err != nil {
		return fmt.Errorf("failed to write register %s: %w", reg, err)
	}

	got, err := r.ReadInt(ctx, reg)
	if err != nil {
		return fmt.Errorf("failed to read back register %s: %w", reg, err)
	}
	if got != val {
		return fmt.Errorf("register %s read back %d after writing %d", reg, got, val)
	}
	return nil
}

// ReadInt reads a 32 bit big-endian register.
func (r *Roach) ReadInt(ctx context.Context, reg string) (int32, error) {
	data, err := r.Read(ctx, reg, 0, 4)
	if err != nil {
		return 0, err
	}
	return int32(data[0])<<24 | int32(data[1])<<16 | int32(data[2])<<8 | int32(data[3]), nil
}

// Read fetches nbytes from a named device starting at offset.
func (r *Roach) Read(ctx context.Context, device string, offset, nbytes int) ([]byte, error) {
	reply, _, err := r.client.Request(ctx, "read",
		[]byte(device), []byte(strconv.Itoa(offset)), []byte(strconv.Itoa(nbytes)))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", device, err)
	}
	if len(reply.Arguments) < 2 {
		return nil, fmt.Errorf("read %s: reply carries no data", device)
	}
	data := reply.Arguments[1]
	if len(data) != nbytes {
		return nil, fmt.Errorf("read %s: got %d bytes, want %d", device, len(data), nbytes)
	}
	return data, nil
}

// ListDev returns the names of the devices in the running design.
func (r *Roach) ListDev(ctx context.Context) ([]string, error) {
	return r.listNames(ctx, "listdev")
}

// ListBOF returns the boffiles available on the board.
func (r *Roach) ListBOF(ctx context.Context) ([]string, error) {
	return r.listNames(ctx, "listbof")
}

func (r *Roach) listNames(ctx context.Context, request string) ([]string, error) {
	_, informs, err := r.client.Request(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", request, err)
	}
	names := make([]string, 0, len(informs))
	for _, inf := range informs {
		names = append(names, inf.Arg(0))
	}
	return names, nil
}

// Addr returns the board's KATCP address.
func (r *Roach) Addr() string { return r.addr }

// Close drops the KATCP connection.
func (r *Roach) Close() error {
	return r.client.Close()
}

// SetupSpectrometer performs the one-shot register setup: write the
// accumulation length, then pulse the counter reset register high and low.
// The three writes must happen in this order.
func SetupSpectrometer(ctx context.Context, dev Device, accReg string, acclen int, cntReg string) error {
	if err := dev.WriteInt(ctx, accReg, int32(acclen)); err != nil {
		return fmt.Errorf("failed to set accumulation length: %w", err)
	}
	if err := dev.WriteInt(ctx, cntReg, 1); err != nil {
		return fmt.Errorf("failed to raise counter reset: %w", err)
	}
	if err := dev.WriteInt(ctx, cntReg, 0); err != nil {
		return fmt.Errorf("failed to clear counter reset: %w", err)
	}
	return nil
}

// ReadInterleaveData reads one spectrum that the model spread round-robin
// over several brams: bram j holds channels j, j+n, j+2n... for n brams.
// Each bram is 2^awidth words of dwidth bits.
func ReadInterleaveData(ctx context.Context, dev Device, brams []string, awidth, dwidth int, dtype DType) ([]float64, error) {
	if len(brams) == 0 {
		return nil, errors.New("no bram names given")
	}

	depth := 1 << awidth
	nbytes := depth * dwidth / 8

	bramdata := make([][]float64, len(brams))
	for i, name := range brams {
		raw, err := dev.Read(ctx, name, 0, nbytes)
		if err != nil {
			return nil, fmt.Errorf("failed to read bram %s: %w", name, err)
		}
		vals, err := dtype.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode bram %s: %w", name, err)
		}
		bramdata[i] = vals
	}

	per := len(bramdata[0])
	out := make([]float64, per*len(brams))
	for i := 0; i < per; i++ {
		for j := range brams {
			out[i*len(brams)+j] = bramdata[j][i]
		}
	}
	return out, nil
}
