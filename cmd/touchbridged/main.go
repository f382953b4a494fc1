// touchbridged is the Touchbridge bridge daemon: it owns one CAN bus
// (real or simulated), runs periodic address discovery against it, and
// serves TCP clients speaking the tlv-framed request/response/indication
// protocol of spec §4.7.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"

	"github.com/touchbridge/touchbridge/canbus"
	"github.com/touchbridge/touchbridge/daemon"
	"github.com/touchbridge/touchbridge/daemon/trace"
	"github.com/touchbridge/touchbridge/discovery"
	"github.com/touchbridge/touchbridge/metrics"
)

func init() {
	// Always prepend the filename and line number.
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

var (
	listenAddr   = flag.String("listen", daemon.DefaultAddr, "Address to listen on for TCP clients.")
	ifname       = flag.String("iface", "can0", "SocketCAN interface name.")
	sim          = flag.Bool("sim", false, "Use an in-process simulated bus instead of a real SocketCAN interface.")
	promAddr     = flag.String("prom", ":9090", "Prometheus metrics export address and port.")
	traceDir     = flag.String("trace-dir", "", "If set, record every frame crossing the bridge to rotating zstd files in this directory.")
	discoverEvery = flag.Duration("discover-every", 30*time.Second, "How often to re-run address discovery.")
)

// busOpener returns a fresh, independent Bus endpoint on each call: the
// daemon and the discovery loop each need their own socket onto the same
// shared medium, exactly as two separate AF_CAN sockets bound to the same
// SocketCAN interface would each see every frame independently.
func busOpener() func() (canbus.Bus, error) {
	if *sim {
		hub := canbus.NewSimHub()
		return func() (canbus.Bus, error) { return hub.Attach(), nil }
	}
	return func() (canbus.Bus, error) { return canbus.Open(*ifname) }
}

// runDiscovery runs address discovery against bus on a fixed interval
// until ctx is cancelled, logging newly vanished nodes the way
// tbg_api.c's own inventory sweep did (spec §4.4 supplement).
func runDiscovery(ctx context.Context, bus canbus.Bus) {
	inv := discovery.NewInventory()
	ticker := time.NewTicker(*discoverEvery)
	defer ticker.Stop()
	for {
		start := time.Now()
		result, err := discovery.New(bus).Run(ctx)
		if err != nil {
			log.Printf("touchbridged: discovery run failed: %v", err)
		} else {
			metrics.DiscoveryDurationHistogram.WithLabelValues("run").Observe(time.Since(start).Seconds())
			vanished := inv.Update(result.Candidates)
			log.Printf("touchbridged: discovery found %d node(s), exhausted=%v", len(result.Candidates), result.Exhausted)
			for _, v := range vanished {
				log.Printf("touchbridged: node 0x%012x%012x (was addr %d) no longer responds", v.High, v.Low, v.Address)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not get args from environment variables")

	promSrv := prometheusx.MustStartPrometheus(*promAddr)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("touchbridged: received %v, shutting down", sig)
		cancel()
	}()

	open := busOpener()

	daemonBus, err := open()
	rtx.Must(err, "Could not open CAN bus for the daemon")
	defer daemonBus.Close()

	discoveryBus, err := open()
	rtx.Must(err, "Could not open CAN bus for discovery")
	defer discoveryBus.Close()

	s := daemon.New(daemonBus, *listenAddr)
	if *traceDir != "" {
		s.Trace = trace.New(*traceDir)
		defer s.Trace.Close()
	}

	go runDiscovery(ctx, discoveryBus)

	log.Printf("touchbridged: listening on %s", *listenAddr)
	err = s.Serve(ctx)
	if err != nil && ctx.Err() == nil {
		log.Printf("touchbridged: Serve: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	promSrv.Shutdown(shutdownCtx)
}
