// Package host implements the upper computer: the connection supervisor,
// frame processing pipeline, inference worker, threshold alarms, history,
// and persistence wiring.
package host

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/tphakala/nirspec-go/internal/errors"
	"github.com/tphakala/nirspec-go/internal/frame"
	"github.com/tphakala/nirspec-go/internal/logging"
	"github.com/tphakala/nirspec-go/internal/observability"
)

// Reconnect and heartbeat tuning per the supervisor contract.
const (
	backoffBase          = 800 * time.Millisecond
	backoffFactor        = 2
	maxAutoRetries       = 5
	gracePeriod          = 8 * time.Second
	heartbeatDelayed     = 15 * time.Second
	heartbeatTimeout     = 45 * time.Second
	maxConsecutiveMisses = 10
	watchdogTick         = 1 * time.Second
	reconnectPause       = 2 * time.Second
)

// ConnState is the supervisor's connection state.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// HeartbeatStatus summarizes heartbeat freshness.
type HeartbeatStatus string

const (
	HeartbeatOK      HeartbeatStatus = "ok"
	HeartbeatDelayed HeartbeatStatus = "delayed"
	HeartbeatTimeout HeartbeatStatus = "timeout"
)

// backoffDelay computes the bounded exponential reconnect delay for a
// zero-based attempt number.
func backoffDelay(attempt int) time.Duration {
	delay := backoffBase
	for i := 0; i < attempt; i++ {
		delay *= backoffFactor
	}
	return delay
}

// Supervisor owns the TCP connection to the device: dialing, bounded
// exponential reconnect, the heartbeat watchdog with its grace window, and
// stream re-subscription on connect.
type Supervisor struct {
	address string
	port    int
	env     *frame.Envelope
	metrics *observability.Metrics
	log     *slog.Logger

	// OnFrame receives every decoded frame body in arrival order.
	OnFrame func(body []byte)
	// OnConnected fires after the resume commands have been sent.
	OnConnected func()
	// OnDisconnected fires when the connection drops for any reason.
	OnDisconnected func()

	mu            sync.Mutex
	state         ConnState
	conn          net.Conn
	codec         *frame.Codec
	graceDeadline time.Time
	lastHeartbeat time.Time
	hbReceived    bool
	missCount     int
}

// NewSupervisor creates a supervisor for the device endpoint. env may be
// nil for plaintext links; metrics may be nil.
func NewSupervisor(address string, port int, env *frame.Envelope, metrics *observability.Metrics) *Supervisor {
	return &Supervisor{
		address: address,
		port:    port,
		env:     env,
		metrics: metrics,
		log:     logging.ForService("host.supervisor"),
	}
}

// State returns the current connection state.
func (s *Supervisor) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// InGrace reports whether the post-connect grace window is open.
func (s *Supervisor) InGrace() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Now().Before(s.graceDeadline)
}

// MarkHeartbeat records heartbeat receipt and resets the miss counter.
func (s *Supervisor) MarkHeartbeat() {
	s.mu.Lock()
	s.lastHeartbeat = time.Now()
	s.hbReceived = true
	s.missCount = 0
	s.mu.Unlock()
}

// Heartbeat classifies heartbeat freshness for status surfaces.
func (s *Supervisor) Heartbeat() HeartbeatStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hbReceived {
		return HeartbeatOK
	}
	age := time.Since(s.lastHeartbeat)
	switch {
	case age > heartbeatTimeout:
		return HeartbeatTimeout
	case age > heartbeatDelayed:
		return HeartbeatDelayed
	default:
		return HeartbeatOK
	}
}

// Send writes one frame body to the device.
func (s *Supervisor) Send(payload []byte) error {
	s.mu.Lock()
	conn := s.conn
	codec := s.codec
	s.mu.Unlock()

	if conn == nil {
		return errors.Newf("not connected").
			Component("host").
			Category(errors.CategoryTransport).
			Build()
	}
	wire, err := codec.Encode(payload)
	if err != nil {
		return err
	}
	if _, err := conn.Write(wire); err != nil {
		return errors.New(err).
			Component("host").
			Category(errors.CategoryTransport).
			Build()
	}
	return nil
}

// SendToken sends a plain-text command.
func (s *Supervisor) SendToken(token string) error {
	return s.Send([]byte(token))
}

// SendJSON marshals and sends a JSON command.
func (s *Supervisor) SendJSON(payload any) error {
	data, err := frame.Marshal(payload)
	if err != nil {
		return err
	}
	return s.Send(data)
}

// Run connects and supervises the link until ctx is cancelled. The initial
// connect is user-initiated and retries without bound; reconnects after a
// drop use the bounded backoff schedule.
func (s *Supervisor) Run(ctx context.Context) error {
	userInitiated := true
	attempt := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		s.setState(StateConnecting)
		conn, err := s.dial(ctx)
		if err != nil {
			attempt++
			if !userInitiated && attempt > maxAutoRetries {
				s.setState(StateDisconnected)
				if s.log != nil {
					s.log.Error("reconnect budget exhausted", "attempts", attempt-1)
				}
				return err
			}
			delay := backoffDelay(attempt - 1)
			if s.log != nil {
				s.log.Warn("connect failed, retrying", "attempt", attempt, "delay", delay.String(), "error", err)
			}
			if s.metrics != nil {
				s.metrics.Reconnect()
			}
			if !sleepCtx(ctx, delay) {
				return nil
			}
			continue
		}

		attempt = 0
		userInitiated = false
		s.attach(conn)

		// Resume the periodic streams the host depends on
		_ = s.SendJSON(map[string]string{"type": frame.TypeStartStatusStream})
		_ = s.SendToken(frame.TokenGetSensorData)

		if s.OnConnected != nil {
			s.OnConnected()
		}

		forced := s.readLoop(ctx)
		s.detach()

		if s.OnDisconnected != nil {
			s.OnDisconnected()
		}
		if ctx.Err() != nil {
			return nil
		}
		if forced {
			// Heartbeat-forced disconnect waits before reinitiating
			if !sleepCtx(ctx, reconnectPause) {
				return nil
			}
		}
	}
}

// dial attempts one TCP connect.
func (s *Supervisor) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: 5 * time.Second}
	addr := net.JoinHostPort(s.address, strconv.Itoa(s.port))
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.New(err).
			Component("host").
			Category(errors.CategoryTransport).
			Context("addr", addr).
			Build()
	}
	return conn, nil
}

// attach installs a fresh connection, opening the heartbeat grace window.
func (s *Supervisor) attach(conn net.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.codec = frame.NewCodec(s.env)
	s.state = StateConnected
	s.graceDeadline = time.Now().Add(gracePeriod)
	s.hbReceived = false
	s.missCount = 0
	s.mu.Unlock()

	if s.log != nil {
		s.log.Info("connected to device", "remote", conn.RemoteAddr().String())
	}
}

// detach clears the connection state.
func (s *Supervisor) detach() {
	s.mu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.conn = nil
	s.codec = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	if s.log != nil {
		s.log.Info("disconnected from device")
	}
}

func (s *Supervisor) setState(state ConnState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// readLoop pumps frames and runs the heartbeat watchdog until the
// connection drops. It reports whether the disconnect was forced by the
// watchdog.
func (s *Supervisor) readLoop(ctx context.Context) (forced bool) {
	s.mu.Lock()
	conn := s.conn
	codec := s.codec
	s.mu.Unlock()

	chunks := make(chan []byte, 16)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				chunks <- chunk
			}
			if err != nil {
				readErr <- err
				close(chunks)
				return
			}
		}
	}()

	// abort closes the connection and waits out the reader goroutine. The
	// chunk channel must be drained or a blocked reader would never exit.
	abort := func() {
		_ = conn.Close()
		for range chunks {
		}
		<-readErr
	}

	watchdog := time.NewTicker(watchdogTick)
	defer watchdog.Stop()

	for {
		select {
		case <-ctx.Done():
			abort()
			return false

		case chunk, ok := <-chunks:
			if !ok {
				<-readErr
				return false
			}
			if err := codec.Feed(chunk); err != nil {
				if s.log != nil {
					s.log.Error("receive buffer overflow, dropping connection", "error", err)
				}
				abort()
				return false
			}
			for {
				body, more, err := codec.Next()
				if err != nil {
					if s.log != nil {
						s.log.Warn("dropped undecryptable frame", "error", err)
					}
					if !more {
						break
					}
					continue
				}
				if !more {
					break
				}
				if s.OnFrame != nil {
					s.OnFrame(body)
				}
			}

		case <-watchdog.C:
			if s.watchdogTick() {
				if s.log != nil {
					s.log.Error("heartbeat lost, forcing disconnect", "misses", maxConsecutiveMisses)
				}
				abort()
				return true
			}
		}
	}
}

// watchdogTick evaluates heartbeat freshness once per second. It returns
// true when the consecutive miss budget is exhausted. Grace ticks never
// count as misses.
func (s *Supervisor) watchdogTick() (force bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if time.Now().Before(s.graceDeadline) {
		return false
	}

	stale := !s.hbReceived || time.Since(s.lastHeartbeat) > heartbeatTimeout
	if !stale {
		return false
	}

	s.missCount++
	if s.metrics != nil {
		s.metrics.HeartbeatTimeout()
	}
	return s.missCount >= maxConsecutiveMisses
}

// sleepCtx sleeps for d unless ctx ends first; it reports whether the full
// delay elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
