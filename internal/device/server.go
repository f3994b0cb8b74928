// Package device implements the lower computer: a TCP listener that streams
// spectral rows, sensor telemetry, device status, and heartbeats to
// subscribed clients and answers acquisition and calibration commands.
package device

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/nirspec-go/internal/conf"
	"github.com/tphakala/nirspec-go/internal/errors"
	"github.com/tphakala/nirspec-go/internal/frame"
	"github.com/tphakala/nirspec-go/internal/logging"
	"github.com/tphakala/nirspec-go/internal/observability"
	"github.com/tphakala/nirspec-go/internal/spectral"
)

// acquisitionConfig bounds per the SET_ACQ contract.
const (
	integrationMsMin = 1
	integrationMsMax = 60000
	averageMin       = 1
	averageMax       = 1000
)

// acquisitionConfig is the current acquisition state, mutated only by SET_ACQ.
type acquisitionConfig struct {
	IntegrationMs int
	Average       int
}

// Server is the device-side node.
type Server struct {
	settings *conf.Settings
	matrix   *spectral.Matrix
	env      *frame.Envelope
	metrics  *observability.Metrics
	log      *slog.Logger

	startTime time.Time

	mu       sync.Mutex
	clients  map[string]*session
	acq      acquisitionConfig
	paused   bool // STOP_DATA halts periodic spectrum emission
	streams  map[streamKind]*streamState
	listener net.Listener
}

// NewServer builds a device server around a loaded spectrum matrix.
// metrics may be nil.
func NewServer(settings *conf.Settings, matrix *spectral.Matrix, metrics *observability.Metrics) (*Server, error) {
	var env *frame.Envelope
	if settings.Encryption.Enabled {
		var err error
		env, err = frame.NewEnvelope(frame.DeriveKey(settings.Encryption.Password))
		if err != nil {
			return nil, err
		}
	}

	s := &Server{
		settings:  settings,
		matrix:    matrix,
		env:       env,
		metrics:   metrics,
		log:       logging.ForService("device"),
		startTime: time.Now(),
		clients:   make(map[string]*session),
		acq:       acquisitionConfig{IntegrationMs: 10, Average: 1},
		streams:   make(map[streamKind]*streamState),
	}
	for _, kind := range []streamKind{streamSpectrum, streamSensor, streamStatus, streamHeartbeat} {
		s.streams[kind] = &streamState{}
	}
	return s, nil
}

// ErrBindFailed distinguishes a listen failure for the exit-code contract.
var ErrBindFailed = errors.NewStd("bind failed")

// Run listens and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.settings.Device.Listen, strconv.Itoa(s.settings.Device.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Join(ErrBindFailed, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	if s.log != nil {
		s.log.Info("device listening", "addr", addr,
			"rows", s.matrix.RowCount(), "wavelengths", len(s.matrix.Wavelengths))
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		_ = listener.Close()
		s.closeAllSessions()
		return nil
	})

	g.Go(func() error {
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return nil
				default:
				}
				return errors.New(err).
					Component("device").
					Category(errors.CategoryTransport).
					Build()
			}
			sess := s.register(conn)
			g.Go(func() error {
				s.serveSession(ctx, sess)
				return nil
			})
		}
	})

	return g.Wait()
}

// register adds a new client session and starts the heartbeat stream for it.
func (s *Server) register(conn net.Conn) *session {
	sess := newSession(conn, s.env)

	s.mu.Lock()
	s.clients[sess.id] = sess
	count := len(s.clients)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetConnectedClients(count)
	}
	if s.log != nil {
		s.log.Info("client connected", "client", sess.id, "remote", conn.RemoteAddr().String(), "clients", count)
	}

	// Heartbeat is implicit for every live client
	s.subscribe(sess, streamHeartbeat)
	return sess
}

// unregister removes a session from the client table and every
// subscription set.
func (s *Server) unregister(sess *session) {
	sess.markDisconnected()

	s.mu.Lock()
	delete(s.clients, sess.id)
	count := len(s.clients)
	s.mu.Unlock()

	for _, kind := range []streamKind{streamSpectrum, streamSensor, streamStatus, streamHeartbeat} {
		s.unsubscribe(sess, kind)
	}

	_ = sess.conn.Close()

	if s.metrics != nil {
		s.metrics.SetConnectedClients(count)
	}
	if s.log != nil {
		s.log.Info("client disconnected", "client", sess.id, "clients", count)
	}
}

// serveSession reads and dispatches frames for one client until EOF or
// cancellation.
func (s *Server) serveSession(ctx context.Context, sess *session) {
	defer s.unregister(sess)

	dispatcher := s.newDispatcher(sess)
	buf := make([]byte, 4096)

	for {
		if ctx.Err() != nil {
			return
		}
		n, err := sess.conn.Read(buf)
		if err != nil {
			return
		}
		if err := sess.codec.Feed(buf[:n]); err != nil {
			if s.log != nil {
				s.log.Warn("receive buffer overflow, dropping client", "client", sess.id)
			}
			return
		}

		for {
			body, ok, err := sess.codec.Next()
			if err != nil {
				// Authentication failure drops the frame, not the client
				if s.log != nil {
					s.log.Warn("dropped undecryptable frame", "client", sess.id, "error", err)
				}
				if !ok {
					break
				}
				continue
			}
			if !ok {
				break
			}
			sess.touch()
			dispatcher.Dispatch(body)
		}
	}
}

// closeAllSessions tears down every connected client.
func (s *Server) closeAllSessions() {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.clients))
	for _, sess := range s.clients {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		s.unregister(sess)
	}
}

// Addr returns the bound listener address, or nil before Run has bound it.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// clientCount returns the number of live sessions.
func (s *Server) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// uptime returns whole seconds since the server started.
func (s *Server) uptime() int64 {
	return int64(time.Since(s.startTime).Seconds())
}

// sendJSON marshals and sends a frame to one session, counting it in the
// metrics. Write failures mark the peer dead; the next stream iteration
// removes it from all subscription sets.
func (s *Server) sendJSON(sess *session, frameType string, payload any) {
	data, err := frame.Marshal(payload)
	if err != nil {
		if s.log != nil {
			s.log.Error("frame marshal failed", "type", frameType, "error", err)
		}
		return
	}
	if err := sess.send(data); err != nil {
		return
	}
	if s.metrics != nil {
		s.metrics.FrameTx(frameType)
	}
}

// sendText sends a plain textual reply line.
func (s *Server) sendText(sess *session, text string) {
	_ = sess.send([]byte(text))
}
