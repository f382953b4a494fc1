// Package daemon implements touchbridged, the bridge daemon of spec
// §4.7: it owns the CAN bus, accepts TCP clients speaking the tlv
// framing, stamps every forwarded request with a per-client src_port so
// responses route back to the right connection, and fans out
// Indication frames to every connected client. Grounded on the
// teacher's eventsocket/server.go fan-out loop and mutex-guarded
// client set.
package daemon

import (
	"context"
	"log"
	"net"
	"sync"

	"github.com/m-lab/uuid"

	"github.com/touchbridge/touchbridge/canbus"
	"github.com/touchbridge/touchbridge/daemon/trace"
	"github.com/touchbridge/touchbridge/frame"
	"github.com/touchbridge/touchbridge/metrics"
	"github.com/touchbridge/touchbridge/tlv"
)

// DefaultAddr is touchbridged's default TCP listen address (spec §4.7).
const DefaultAddr = "127.0.0.1:5555"

// numPorts is the width of the wire identifier's 6-bit src_port field:
// at most this many clients can have a request in flight at once (spec
// §9's design note).
const numPorts = 64

// Server bridges TCP clients and a CAN bus.
type Server struct {
	Bus   canbus.Bus
	Addr  string
	Trace *trace.Recorder // optional; nil disables tracing.

	mu       sync.Mutex
	clients  map[uint8]*client // keyed by assigned src_port
	nextPort uint8

	ln net.Listener
}

// New creates a Server that will bridge bus and listen on addr.
func New(bus canbus.Bus, addr string) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	return &Server{
		Bus:     bus,
		Addr:    addr,
		clients: make(map[uint8]*client),
	}
}

// Listen opens the TCP listener without yet accepting connections, so
// callers that bound to ":0" can learn the chosen address before
// traffic starts flowing.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	return nil
}

// ListenAddr returns the address the server is actually listening on. Valid
// only after a successful Listen (or Serve, which calls it).
func (s *Server) ListenAddr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Serve accepts clients and bridges bus traffic until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	ln := s.ln

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	go s.pumpBus(ctx)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("touchbridged: accept error: %v", err)
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

// assignPort picks a free src_port for a new client, or false if every
// slot is in use.
func (s *Server) assignPort() (uint8, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < numPorts; i++ {
		p := s.nextPort
		s.nextPort = (s.nextPort + 1) % numPorts
		if _, taken := s.clients[p]; !taken {
			return p, true
		}
	}
	return 0, false
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	port, ok := s.assignPort()
	if !ok {
		log.Printf("touchbridged: rejecting %v: no free src_port slots", conn.RemoteAddr())
		return
	}

	id := conn.RemoteAddr().String()
	if tc, ok := conn.(*net.TCPConn); ok {
		if u, err := uuid.FromTCPConn(tc); err == nil {
			id = u
		}
	}

	c := newClient(id, port, tlv.NewWriter(conn))
	s.mu.Lock()
	s.clients[port] = c
	s.mu.Unlock()
	metrics.DaemonClients.Inc()
	log.Printf("touchbridged: client %s connected on src_port %d", id, port)

	defer func() {
		s.mu.Lock()
		delete(s.clients, port)
		s.mu.Unlock()
		c.stop()
		metrics.DaemonClients.Dec()
		log.Printf("touchbridged: client %s disconnected", id)
	}()

	r := tlv.NewReader(conn)
	for {
		msgType, payload, err := r.Next()
		if err != nil {
			// No resync: any decode or read error ends this connection.
			return
		}
		if msgType != tlv.FrameType {
			continue
		}
		req, err := frame.DecodeHex(string(payload))
		if err != nil {
			metrics.ClientErrorsTotal.WithLabelValues("tlv").Inc()
			return
		}

		req.ID = frame.Encode(frame.Fields{
			SrcPort:   port,
			SrcAddr:   frame.AddrDaemon,
			DstPort:   req.DstPort(),
			DstAddr:   req.DstAddr(),
			Type:      req.Type(),
			State:     req.State(),
			Continued: req.Continued(),
		})

		if s.Trace != nil {
			s.Trace.Record(req)
		}
		if err := s.Bus.Write(req); err != nil {
			return
		}
		metrics.FramesTotal.WithLabelValues("tx").Inc()

		if ctx.Err() != nil {
			return
		}
	}
}

// pumpBus reads every frame off the bus and routes it to the client
// whose src_port the frame targets, or fans it out to everyone if it's
// a broadcast Indication.
func (s *Server) pumpBus(ctx context.Context) {
	for {
		f, err := s.Bus.Read()
		if err != nil {
			return
		}
		metrics.FramesTotal.WithLabelValues("rx").Inc()
		if s.Trace != nil {
			s.Trace.Record(f)
		}

		if f.Type() == frame.Indication && f.DstAddr() == frame.AddrBroadcast {
			s.broadcast(f)
			continue
		}
		if f.DstAddr() != frame.AddrDaemon {
			continue
		}
		s.route(f.DstPort(), f)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (s *Server) route(port uint8, f frame.Frame) {
	s.mu.Lock()
	c := s.clients[port]
	s.mu.Unlock()
	if c != nil {
		c.Send(f)
	}
}

func (s *Server) broadcast(f frame.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		c.Send(f)
	}
}
