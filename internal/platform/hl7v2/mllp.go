package hl7v2

import (
	"bytes"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// MLLPStartBlock is the MLLP start-of-message byte (VT / vertical tab).
	MLLPStartBlock = 0x0B

	// MLLPEndBlock is the MLLP end-of-message byte (FS / file separator).
	MLLPEndBlock = 0x1C

	// MLLPCarriageReturn is the trailing CR after the end block.
	MLLPCarriageReturn = 0x0D

	// mllpMaxBufferSize caps a single connection's accumulation buffer (1 MB).
	mllpMaxBufferSize = 1 << 20

	// DefaultIdleTimeout closes a connection that has received no bytes.
	DefaultIdleTimeout = 60 * time.Second

	// mllpWriteTimeout bounds the ACK write back to the sender.
	mllpWriteTimeout = 10 * time.Second
)

var mllpEndSeq = []byte{MLLPEndBlock, MLLPCarriageReturn}

// InboundFrame is one complete MLLP payload handed off the wire. Domain
// processing happens on consumers pulling these from the queue, never on the
// connection goroutine.
type InboundFrame struct {
	ControlID  string
	Raw        string
	ReceivedAt time.Time
}

// Server listens for HL7v2 messages over MLLP/TCP. Each accepted connection
// gets its own goroutine and accumulation buffer. Complete frames are pushed
// onto the bounded queue and acknowledged immediately: "AA" when the frame
// was queued, "AE" when the queue was full.
type Server struct {
	addr        string
	queue       chan<- InboundFrame
	builder     Builder
	idleTimeout time.Duration
	listener    net.Listener
	mu          sync.Mutex
	conns       map[net.Conn]struct{}
	done        chan struct{}
	wg          sync.WaitGroup
	logger      zerolog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithIdleTimeout overrides the per-connection idle read timeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) { s.idleTimeout = d }
}

// NewServer creates an MLLP server that will listen on addr and hand complete
// frames to queue. The builder supplies the facility pair for ACK headers.
func NewServer(addr string, queue chan<- InboundFrame, builder Builder, logger zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		addr:        addr,
		queue:       queue,
		builder:     builder,
		idleTimeout: DefaultIdleTimeout,
		conns:       make(map[net.Conn]struct{}),
		done:        make(chan struct{}),
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins listening for connections. It is non-blocking: the accept loop
// runs in a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("mllp: failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()

	return nil
}

// Stop gracefully shuts down the server. It closes the listener, then closes
// all tracked connections, and waits for all goroutines to finish.
func (s *Server) Stop() error {
	close(s.done)

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()

	return err
}

// Addr returns the listener address string. This is especially useful when the
// server was started with port 0 (OS-assigned port).
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// acceptLoop runs in its own goroutine, accepting new TCP connections until
// the listener is closed.
func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			s.logger.Error().Err(err).Msg("mllp accept error")
			return
		}

		s.trackConn(conn, true)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.trackConn(conn, false)
			defer conn.Close()
			s.handleConnection(conn)
		}()
	}
}

// trackConn adds or removes a connection from the tracked set.
func (s *Server) trackConn(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

// handleConnection reads MLLP-framed messages from conn, queues them, and
// writes back acknowledgments. Any failure is contained to this connection.
func (s *Server) handleConnection(conn net.Conn) {
	peer := conn.RemoteAddr().String()
	s.logger.Info().Str("peer", peer).Msg("mllp connection opened")

	buf := make([]byte, 0, 4096)
	readBuf := make([]byte, 4096)

	for {
		select {
		case <-s.done:
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(s.idleTimeout))

		n, err := conn.Read(readBuf)
		if n > 0 {
			buf = append(buf, readBuf[:n]...)

			if len(buf) > mllpMaxBufferSize {
				s.logger.Error().Str("peer", peer).Msg("mllp buffer exceeds max size, closing connection")
				return
			}

			for {
				payload, rest, found := extractFrame(buf)
				if !found {
					buf = rest
					break
				}
				buf = rest

				s.processFrame(conn, payload)
			}
		}

		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				s.logger.Debug().Str("peer", peer).Msg("mllp connection idle timeout")
			} else {
				s.logger.Debug().Str("peer", peer).Err(err).Msg("mllp connection closed")
			}
			return
		}
	}
}

// processFrame correlates one payload, hands it to the queue, and writes the
// acknowledgment. The ACK never waits for downstream processing: "AA" means
// the frame was queued, "AE" means the handoff failed.
func (s *Server) processFrame(conn net.Conn, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("mllp frame handling panic recovered")
		}
	}()

	raw := decodeLatin1(payload)
	controlID := ControlIDOf(raw)
	// The sender still needs a correlatable MSA-2 even when MSH-10 is absent.
	ackID := controlID
	if ackID == "" {
		ackID = "UNKNOWN"
	}

	code := ACKAccept
	select {
	case s.queue <- InboundFrame{ControlID: controlID, Raw: raw, ReceivedAt: time.Now().UTC()}:
		s.logger.Info().Str("control_id", ackID).Msg("mllp frame queued")
	default:
		code = ACKError
		s.logger.Error().Str("control_id", ackID).Msg("mllp queue full, frame dropped")
	}

	ack := s.builder.BuildACK(code, ackID, time.Now().UTC())

	conn.SetWriteDeadline(time.Now().Add(mllpWriteTimeout))
	if _, err := conn.Write(FrameMessage([]byte(ack))); err != nil {
		s.logger.Error().Err(err).Str("control_id", controlID).Msg("mllp ack write failed")
	}
}

// FrameMessage wraps raw HL7v2 bytes in MLLP framing:
//
//	<0x0B> + message + <0x1C><0x0D>
func FrameMessage(data []byte) []byte {
	frame := make([]byte, 0, len(data)+3)
	frame = append(frame, MLLPStartBlock)
	frame = append(frame, data...)
	frame = append(frame, MLLPEndBlock, MLLPCarriageReturn)
	return frame
}

// extractFrame scans the accumulation buffer for one complete MLLP frame.
// It locates the first start block and the first end sequence; a dangling end
// sequence left over from a malformed frame (end before start) is discarded
// and the scan repeats. The payload excludes the framing bytes; rest is the
// buffer advanced past the consumed frame (or past discarded garbage).
func extractFrame(buf []byte) (payload, rest []byte, found bool) {
	for {
		start := bytes.IndexByte(buf, MLLPStartBlock)
		end := bytes.Index(buf, mllpEndSeq)
		if start == -1 || end == -1 {
			return nil, buf, false
		}
		if start > end {
			// Dangling end marker from a prior malformed frame.
			buf = buf[start:]
			continue
		}
		return buf[start+1 : end], buf[end+2:], true
	}
}
