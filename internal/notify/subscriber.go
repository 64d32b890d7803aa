package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// State of the hub channel.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Events the backend pushes onto the group channel.
const (
	EventCreated  = "AbsenceCreated"
	EventApproved = "AbsenceApproved"
	EventRejected = "AbsenceRejected"
)

// Event is one pushed status notification. Reason is set only for
// rejections and is informational: the callback's contract is simply
// "a re-fetch is required".
type Event struct {
	Name   string
	Reason string
}

// RefreshFunc is the caller-supplied invalidation hook.
type RefreshFunc func(Event)

const joinGroupTarget = "JoinGroup"

const (
	initialBackoff     = time.Second
	maxBackoff         = 30 * time.Second
	defaultMaxAttempts = 5
)

// Subscriber keeps one duplex channel to the backend's notification
// hub, joins a named group, and invokes the refresh hook on every
// pushed event. Connect failures degrade to a logged disconnected
// state; reconnection is attempted with capped exponential backoff.
type Subscriber struct {
	hubURL      string
	group       string
	refresh     RefreshFunc
	logger      *zap.Logger
	dialer      *websocket.Dialer
	httpClient  *http.Client
	maxAttempts int

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

// SubscriberOption tweaks a Subscriber at construction time.
type SubscriberOption func(*Subscriber)

// WithMaxAttempts caps the reconnect attempts per failure streak.
func WithMaxAttempts(n int) SubscriberOption {
	return func(s *Subscriber) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithDialer substitutes the websocket dialer, mainly for tests.
func WithDialer(d *websocket.Dialer) SubscriberOption {
	return func(s *Subscriber) {
		if d != nil {
			s.dialer = d
		}
	}
}

// NewSubscriber builds a subscriber for one hub URL and group name.
func NewSubscriber(hubURL, group string, refresh RefreshFunc, logger *zap.Logger, opts ...SubscriberOption) *Subscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Subscriber{
		hubURL:      strings.TrimRight(hubURL, "/"),
		group:       group,
		refresh:     refresh,
		logger:      logger,
		dialer:      websocket.DefaultDialer,
		httpClient:  &http.Client{Timeout: 5 * time.Second},
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State reports the current channel state.
func (s *Subscriber) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start opens the channel in the background and returns immediately.
// A subscriber that fails every connect attempt stays disconnected;
// live updates then degrade to manual refresh, never to an error the
// caller must handle.
func (s *Subscriber) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.done != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(runCtx, s.done)
}

// Stop tears the channel down unconditionally. Stopping twice, or
// stopping a subscriber that never connected, is a no-op.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
	if s.conn != nil {
		s.conn.Close()
	}
	done := s.done
	s.mu.Unlock()

	if done != nil {
		<-done
	}
	s.setState(StateDisconnected)
}

func (s *Subscriber) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Subscriber) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer s.setState(StateDisconnected)

	attempt := 0
	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			return
		}
		s.setState(StateConnecting)
		conn, err := s.connect(ctx)
		if err != nil {
			s.setState(StateDisconnected)
			attempt++
			if attempt >= s.maxAttempts {
				s.logger.Warn("notification channel unavailable, giving up",
					zap.Int("attempts", attempt), zap.Error(err))
				return
			}
			s.logger.Info("notification connect failed, will retry",
				zap.Int("attempt", attempt), zap.Duration("backoff", backoff), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conn = conn
		s.state = StateConnected
		s.mu.Unlock()
		attempt = 0
		backoff = initialBackoff
		s.logger.Info("notification channel connected", zap.String("group", s.group))

		err = s.readLoop(conn)
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		conn.Close()
		if ctx.Err() != nil {
			return
		}
		s.logger.Info("notification channel lost", zap.Error(err))
		s.setState(StateDisconnected)
		attempt++
		if attempt >= s.maxAttempts {
			s.logger.Warn("notification channel unavailable, giving up", zap.Int("attempts", attempt))
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// connect negotiates a transport, dials the hub, completes the
// protocol handshake and joins the group.
func (s *Subscriber) connect(ctx context.Context) (*websocket.Conn, error) {
	wsURL := s.websocketURL()
	if id, err := s.negotiate(ctx); err != nil {
		// Transport selection is the server's concern; a missing
		// negotiate endpoint falls back to a direct dial.
		s.logger.Debug("negotiate failed, dialing directly", zap.Error(err))
	} else if id != "" {
		wsURL += "?id=" + id
	}

	conn, _, err := s.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial hub: %w", err)
	}

	if err := s.handshake(conn); err != nil {
		conn.Close()
		return nil, err
	}

	joinMsg, err := Invocation(joinGroupTarget, s.group)
	if err != nil {
		conn.Close()
		return nil, err
	}
	join, err := EncodeRecord(joinMsg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, join); err != nil {
		conn.Close()
		return nil, fmt.Errorf("join group: %w", err)
	}
	return conn, nil
}

func (s *Subscriber) negotiate(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.hubURL+"/negotiate", nil)
	if err != nil {
		return "", err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("negotiate status %d", resp.StatusCode)
	}
	var nr NegotiateResponse
	if err := json.NewDecoder(resp.Body).Decode(&nr); err != nil {
		return "", err
	}
	for _, t := range nr.AvailableTransports {
		if t.Transport == TransportWebSockets {
			return nr.ConnectionID, nil
		}
	}
	return "", fmt.Errorf("no websocket transport offered")
}

func (s *Subscriber) handshake(conn *websocket.Conn) error {
	record, err := EncodeRecord(HandshakeRequest{Protocol: "json", Version: 1})
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, record); err != nil {
		return fmt.Errorf("send handshake: %w", err)
	}
	_, frame, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read handshake: %w", err)
	}
	records := SplitRecords(frame)
	if len(records) == 0 {
		return fmt.Errorf("empty handshake response")
	}
	var hr HandshakeResponse
	if err := json.Unmarshal(records[0], &hr); err != nil {
		return fmt.Errorf("decode handshake: %w", err)
	}
	if hr.Error != "" {
		return fmt.Errorf("handshake rejected: %s", hr.Error)
	}
	return nil
}

// readLoop dispatches pushed records until the connection drops or
// the server sends a close message.
func (s *Subscriber) readLoop(conn *websocket.Conn) error {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		for _, record := range SplitRecords(frame) {
			var msg HubMessage
			if err := json.Unmarshal(record, &msg); err != nil {
				s.logger.Warn("malformed hub record", zap.ByteString("record", record))
				continue
			}
			switch msg.Type {
			case MsgInvocation:
				s.dispatch(msg)
			case MsgPing:
				// Keepalive, nothing to do.
			case MsgClose:
				if msg.Error != "" {
					return fmt.Errorf("server closed channel: %s", msg.Error)
				}
				return nil
			}
		}
	}
}

func (s *Subscriber) dispatch(msg HubMessage) {
	switch msg.Target {
	case EventCreated, EventApproved:
		s.invokeRefresh(Event{Name: msg.Target})
	case EventRejected:
		var reason string
		if len(msg.Arguments) > 0 {
			if err := json.Unmarshal(msg.Arguments[0], &reason); err != nil {
				s.logger.Warn("malformed rejection reason", zap.Error(err))
			}
		}
		s.invokeRefresh(Event{Name: msg.Target, Reason: reason})
	default:
		s.logger.Debug("unhandled hub event", zap.String("target", msg.Target))
	}
}

func (s *Subscriber) invokeRefresh(ev Event) {
	if s.refresh == nil {
		return
	}
	s.refresh(ev)
}

func (s *Subscriber) websocketURL() string {
	switch {
	case strings.HasPrefix(s.hubURL, "https://"):
		return "wss://" + strings.TrimPrefix(s.hubURL, "https://")
	case strings.HasPrefix(s.hubURL, "http://"):
		return "ws://" + strings.TrimPrefix(s.hubURL, "http://")
	default:
		return s.hubURL
	}
}
