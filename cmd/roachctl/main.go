// Roachctl - bench utility for poking a ROACH board over KATCP
// This program wraps the board requests used by the spectra plotter so
// registers and bitstreams can be inspected from a shell.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/FrancoCalan/CalanDigital/internal/roach"
	"github.com/FrancoCalan/CalanDigital/internal/version"
)

var (
	ip          = flag.String("ip", "", "ROACH IP address")
	port        = flag.Int("port", 7147, "KATCP TCP port")
	timeout     = flag.Duration("timeout", 10*time.Second, "connect and request timeout")
	showVersion = flag.Bool("version", false, "show version information")
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: roachctl -ip <addr> [options] <command> [args]

Commands:
  ping                 verify the KATCP link with a watchdog request
  listdev              list the devices in the running design
  listbof              list the boffiles available on the board
  read <reg>           read a 32 bit register
  write <reg> <value>  write a 32 bit register and verify it
  progdev <bof>        program a boffile already on the board

Options:
`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetVersionInfo("roachctl"))
		return
	}
	if *ip == "" {
		usage()
		os.Exit(2)
	}
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	board, err := roach.Initialize(roach.Options{
		IP:      *ip,
		Port:    *port,
		Timeout: *timeout,
	})
	if err != nil {
		log.Fatalf("roachctl: %v", err)
	}
	defer board.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, board, flag.Args()); err != nil {
		log.Fatalf("roachctl: %v", err)
	}
}

func run(ctx context.Context, board *roach.Roach, args []string) error {
	switch cmd, rest := args[0], args[1:]; cmd {
	case "ping":
		// Initialize already pinged the board, so reaching here is the answer.
		fmt.Printf("%s is alive\n", board.Addr())
		return nil

	case "listdev":
		names, err := board.ListDev(ctx)
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil

	case "listbof":
		names, err := board.ListBOF(ctx)
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil

	case "read":
		if len(rest) != 1 {
			return fmt.Errorf("read takes one register name")
		}
		val, err := board.ReadInt(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s = %d (0x%08x)\n", rest[0], val, uint32(val))
		return nil

	case "write":
		if len(rest) != 2 {
			return fmt.Errorf("write takes a register name and a value")
		}
		val, err := strconv.ParseInt(rest[1], 0, 32)
		if err != nil {
			return fmt.Errorf("invalid value %q: %w", rest[1], err)
		}
		if err := board.WriteInt(ctx, rest[0], int32(val)); err != nil {
			return err
		}
		fmt.Printf("%s = %d\n", rest[0], int32(val))
		return nil

	case "progdev":
		if len(rest) != 1 {
			return fmt.Errorf("progdev takes one boffile name")
		}
		if err := board.Progdev(ctx, rest[0]); err != nil {
			return err
		}
		fmt.Printf("programmed %s\n", rest[0])
		return nil

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}
