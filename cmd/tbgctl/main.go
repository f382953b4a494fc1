// tbgctl is the Touchbridge command-line client: one subcommand per
// bus-level operation. Most are thin wrappers dialing touchbridged and
// issuing a handful of requests through package hostclient; adisc and
// nodes instead open their own CAN bus and run package discovery directly.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/touchbridge/touchbridge/canbus"
	"github.com/touchbridge/touchbridge/discovery"
	"github.com/touchbridge/touchbridge/frame"
	"github.com/touchbridge/touchbridge/hostclient"
)

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

const (
	configPort = 2

	// Global config indices (node.go's buildGlobalConfigs table).
	confProductID = 8

	// Config-port selector bit (spec §4.3).
	confBitPort = 0x40
)

var (
	daemonAddr = flag.String("addr", hostclient.DefaultAddr, "Address of the running touchbridged instance.")
	ifname     = flag.String("iface", "can0", "SocketCAN interface name, used only by adisc/nodes.")
	sim        = flag.Bool("sim", false, "Use an in-process simulated bus, used only by adisc/nodes.")
	csvOut     = flag.Bool("csv", false, "nodes: write CSV instead of a human-readable listing.")
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: %s [flags] command [args]

commands:
  adisc                         run address discovery, print assigned nodes
  nodes [--csv]                 run address discovery, list (or export) nodes
  info addr                     print a node's identity summary
  getstr addr conf [port]       read a chunked string config
  tbg addr port [data...]       send a raw request, print the response
  dout addr port pin [value]    write one digital-output bit
  dout2 addr port mask [value]  write digital-output bits under mask
  din addr port pin             print debounced transitions of one input bit
  aout addr port pin [value]    write one analogue-output channel
  ain addr port pin             read one analogue-input channel

flags:
`, os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}
	cmd, rest := args[0], args[1:]

	var err error
	switch cmd {
	case "adisc":
		err = cmdAdisc(rest)
	case "nodes":
		err = cmdNodes(rest)
	case "info":
		err = cmdInfo(rest)
	case "getstr":
		err = cmdGetstr(rest)
	case "tbg":
		err = cmdTbg(rest)
	case "dout":
		err = cmdDout(rest)
	case "dout2":
		err = cmdDout2(rest)
	case "din":
		err = cmdDin(rest)
	case "aout":
		err = cmdAout(rest)
	case "ain":
		err = cmdAin(rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		usage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func openBus() (canbus.Bus, error) {
	if *sim {
		return canbus.NewSimHub().Attach(), nil
	}
	return canbus.Open(*ifname)
}

func runDiscovery() (discovery.Result, error) {
	bus, err := openBus()
	if err != nil {
		return discovery.Result{}, err
	}
	defer bus.Close()
	return discovery.New(bus).Run(context.Background())
}

func cmdAdisc(args []string) error {
	result, err := runDiscovery()
	if err != nil {
		return err
	}
	for _, c := range result.Candidates {
		fmt.Printf("addr=%d hwid=0x%012x%012x\n", c.Address, c.High, c.Low)
	}
	if result.Exhausted {
		fmt.Fprintln(os.Stderr, "warning: address space exhausted, not every node was assigned")
	}
	return nil
}

func cmdNodes(args []string) error {
	result, err := runDiscovery()
	if err != nil {
		return err
	}
	inv := discovery.NewInventory()
	inv.Update(result.Candidates)
	if *csvOut {
		return inv.WriteCSV(os.Stdout)
	}
	for _, c := range inv.Snapshot() {
		fmt.Printf("addr=%d hwid=0x%012x%012x\n", c.Address, c.High, c.Low)
	}
	return nil
}

func dial() (*hostclient.Client, error) {
	return hostclient.Dial(context.Background(), *daemonAddr)
}

func parseUint8(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	return uint8(v), err
}

// readGlobalString reads a whole chunked global-config string (spec §4.3's
// 8-byte, NUL-terminated chunking), stopping at the first chunk that
// contains a NUL byte.
func readGlobalString(c *hostclient.Client, addr, confIndex uint8) (string, error) {
	var out []byte
	for idx := uint8(0); ; idx++ {
		resp, err := c.Request(context.Background(), addr, configPort, []byte{confIndex, idx})
		if err != nil {
			return "", err
		}
		chunk := resp.Data[:resp.Len]
		nul := -1
		for i, b := range chunk {
			if b == 0 {
				nul = i
				break
			}
		}
		if nul >= 0 {
			out = append(out, chunk[:nul]...)
			return string(out), nil
		}
		out = append(out, chunk...)
		if idx > 64 {
			return string(out), fmt.Errorf("tbgctl: string did not terminate after %d chunks", idx)
		}
	}
}

func cmdInfo(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: info addr")
	}
	addr, err := parseUint8(args[0])
	if err != nil {
		return err
	}
	c, err := dial()
	if err != nil {
		return err
	}
	defer c.Close()

	product, err := readGlobalString(c, addr, confProductID)
	if err != nil {
		return err
	}
	resp, err := c.Request(context.Background(), addr, configPort, []byte{2})
	if err != nil {
		return err
	}
	fmt.Printf("addr=%d product=%q protocol={%d,%d,%d}\n", addr, product, resp.Data[0], resp.Data[1], resp.Data[2])
	return nil
}

func cmdGetstr(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: getstr addr conf [port]")
	}
	addr, err := parseUint8(args[0])
	if err != nil {
		return err
	}
	conf, err := parseUint8(args[1])
	if err != nil {
		return err
	}
	c, err := dial()
	if err != nil {
		return err
	}
	defer c.Close()

	if len(args) > 2 {
		port, err := parseUint8(args[2])
		if err != nil {
			return err
		}
		var out []byte
		for idx := uint8(0); ; idx++ {
			resp, err := c.Request(context.Background(), addr, configPort, []byte{conf | confBitPort, port, idx})
			if err != nil {
				return err
			}
			chunk := resp.Data[:resp.Len]
			nul := -1
			for i, b := range chunk {
				if b == 0 {
					nul = i
					break
				}
			}
			if nul >= 0 {
				out = append(out, chunk[:nul]...)
				break
			}
			out = append(out, chunk...)
		}
		fmt.Println(string(out))
		return nil
	}

	s, err := readGlobalString(c, addr, conf)
	if err != nil {
		return err
	}
	fmt.Println(s)
	return nil
}

func cmdTbg(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: tbg addr port [data...]")
	}
	addr, err := parseUint8(args[0])
	if err != nil {
		return err
	}
	port, err := parseUint8(args[1])
	if err != nil {
		return err
	}
	var data []byte
	for _, s := range args[2:] {
		b, err := parseUint8(s)
		if err != nil {
			return err
		}
		data = append(data, b)
	}
	c, err := dial()
	if err != nil {
		return err
	}
	defer c.Close()

	resp, err := c.Request(context.Background(), addr, port, data)
	if err != nil {
		if er, ok := err.(*hostclient.ErrorResponse); ok {
			return fmt.Errorf("node error: %s", er.Code)
		}
		return err
	}
	fmt.Printf("response: type=%s data=% x\n", resp.Type(), resp.Data[:resp.Len])
	return nil
}

func cmdDout(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: dout addr port pin [value]")
	}
	addr, err := parseUint8(args[0])
	if err != nil {
		return err
	}
	port, err := parseUint8(args[1])
	if err != nil {
		return err
	}
	pin, err := strconv.Atoi(args[2])
	if err != nil || pin < 1 || pin > 8 {
		return fmt.Errorf("pin must be in 1..8")
	}
	mask := byte(1) << uint(pin-1)
	value := byte(0)
	if len(args) > 3 {
		v, err := strconv.Atoi(args[3])
		if err != nil {
			return err
		}
		if v != 0 {
			value = 0xff
		}
	}
	c, err := dial()
	if err != nil {
		return err
	}
	defer c.Close()
	_, err = c.Request(context.Background(), addr, port, []byte{value, mask})
	return err
}

func cmdDout2(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: dout2 addr port mask [value]")
	}
	addr, err := parseUint8(args[0])
	if err != nil {
		return err
	}
	port, err := parseUint8(args[1])
	if err != nil {
		return err
	}
	mask, err := parseUint8(args[2])
	if err != nil {
		return err
	}
	var value uint8
	if len(args) > 3 {
		value, err = parseUint8(args[3])
		if err != nil {
			return err
		}
	}
	data := make([]byte, 8)
	data[0] = value
	data[4] = mask
	c, err := dial()
	if err != nil {
		return err
	}
	defer c.Close()
	_, err = c.Request(context.Background(), addr, port, data)
	return err
}

// cmdDin prints '0'/'1' each time the port's Indication reports a
// debounced transition of the given bit, per debounce.Debouncer's
// {events, state} frame (spec §4.5). Arming which edges a channel
// debounces is a per-device config outside this generic dispatcher's
// fixed tables (spec §3's port Configs are attached per node, not
// defined globally), so din only observes; enabling the channel is
// assumed to already be done on the device.
func cmdDin(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: din addr port pin")
	}
	addr, err := parseUint8(args[0])
	if err != nil {
		return err
	}
	port, err := parseUint8(args[1])
	if err != nil {
		return err
	}
	pin, err := strconv.Atoi(args[2])
	if err != nil || pin < 1 || pin > 32 {
		return fmt.Errorf("pin must be in 1..32")
	}
	mask := uint32(1) << uint(pin-1)

	c, err := dial()
	if err != nil {
		return err
	}
	defer c.Close()

	for {
		f, err := c.ReadFrame(context.Background())
		if err != nil {
			return err
		}
		if f.Type() != frame.Indication || f.SrcAddr() != addr || f.SrcPort() != port {
			continue
		}
		events := binary.LittleEndian.Uint32(f.Data[0:4])
		state := binary.LittleEndian.Uint32(f.Data[4:8])
		if events&mask != 0 {
			if state&mask != 0 {
				fmt.Println("1")
			} else {
				fmt.Println("0")
			}
		}
	}
}

func cmdAout(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: aout addr port pin [value]")
	}
	addr, err := parseUint8(args[0])
	if err != nil {
		return err
	}
	port, err := parseUint8(args[1])
	if err != nil {
		return err
	}
	pin, err := strconv.Atoi(args[2])
	if err != nil || pin < 1 || pin > 8 {
		return fmt.Errorf("pin must be in 1..8")
	}
	var value int
	if len(args) > 3 {
		value, err = strconv.Atoi(args[3])
		if err != nil {
			return err
		}
	}
	if value < 0 {
		value = 0
	}
	data := []byte{byte(pin - 1), byte(value), byte(value >> 8)}
	c, err := dial()
	if err != nil {
		return err
	}
	defer c.Close()
	_, err = c.Request(context.Background(), addr, port, data)
	return err
}

func cmdAin(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: ain addr port pin")
	}
	addr, err := parseUint8(args[0])
	if err != nil {
		return err
	}
	port, err := parseUint8(args[1])
	if err != nil {
		return err
	}
	pin, err := strconv.Atoi(args[2])
	if err != nil || pin < 1 || pin > 8 {
		return fmt.Errorf("pin must be in 1..8")
	}
	c, err := dial()
	if err != nil {
		return err
	}
	defer c.Close()
	c.Timeout = 200 * time.Millisecond
	resp, err := c.Request(context.Background(), addr, port, []byte{byte(pin - 1)})
	if err != nil {
		if _, ok := err.(*hostclient.ErrorResponse); ok {
			return fmt.Errorf("ain: %w (analogue input reads are device-specific and may be unimplemented)", err)
		}
		return err
	}
	if resp.Len >= 2 {
		value := binary.LittleEndian.Uint16(resp.Data[0:2])
		fmt.Println(value)
	}
	return nil
}
