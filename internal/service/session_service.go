// internal/service/session_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"packetforge/internal/config"
	"packetforge/internal/model"
	"packetforge/internal/protocol"
	"packetforge/internal/utils"
	"packetforge/pkg/framing"
)

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionNotConnected = errors.New("session not connected")
	ErrNotSerial           = errors.New("pin control requires a serial session")
)

// EventPublisher receives every session event
type EventPublisher interface {
	Publish(event model.SessionEvent)
}

// HandlerFactory builds a transport handler. protocol.CreateHandler in production.
type HandlerFactory func(params model.ConnectionParameters, opts protocol.Options, logger *zap.Logger) (protocol.Handler, error)

// Session is one open transport with its output queue
type Session struct {
	ID       uuid.UUID
	Request  model.OpenRequest
	OpenedAt time.Time

	handler     protocol.Handler
	queue       *protocol.PacketQueue
	reconnector *protocol.Reconnector
	logger      *utils.ConnectionLogger
}

// SessionService owns the open sessions keyed by id
type SessionService struct {
	transport  config.TransportConfig
	registry   *framing.Registry
	publisher  EventPublisher
	newHandler HandlerFactory
	base       *zap.Logger
	logger     *utils.ServiceLogger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// NewSessionService creates a new session service. publisher may be nil.
func NewSessionService(
	transport config.TransportConfig,
	registry *framing.Registry,
	publisher EventPublisher,
	logger *zap.Logger,
) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = framing.NewRegistry()
	}
	return &SessionService{
		transport:  transport,
		registry:   registry,
		publisher:  publisher,
		newHandler: protocol.CreateHandler,
		base:       logger,
		logger:     utils.NewServiceLogger(logger, "session-service"),
		sessions:   make(map[uuid.UUID]*Session),
	}
}

// OptionsFromConfig maps the transport config section onto handler options
func OptionsFromConfig(tc config.TransportConfig) protocol.Options {
	return protocol.Options{
		BindRetry: protocol.RetryPolicy{
			Attempts: tc.BindAttempts,
			Delay:    tc.BindRetryDelay,
		},
		PinPollInterval: tc.PinPollInterval,
		SerialReadPoll:  tc.SerialReadPoll,
		CloseTimeout:    tc.CloseTimeout,
		ConnectTimeout:  tc.ConnectTimeout,
		ReadBufferSize:  tc.ReadBufferSize,
		MaxPacketSize:   tc.MaxPacketSize,
	}
}

// Registry returns the framing rule registry used to resolve rule names
func (ss *SessionService) Registry() *framing.Registry {
	return ss.registry
}

// Open creates a handler for req, starts connecting and registers the session.
// The session is registered even when the connect attempt later fails; its
// state and the event stream report the outcome.
func (ss *SessionService) Open(ctx context.Context, req model.OpenRequest) (*model.SessionInfo, error) {
	rx, err := ss.registry.Receive(req.ReceiveRule)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrInvalidConfiguration, err)
	}
	tx, err := ss.registry.Send(req.SendRule)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrInvalidConfiguration, err)
	}

	req.Parameters = ss.applySerialDefaults(req.Parameters)

	id := uuid.New()
	h, err := ss.newHandler(req.Parameters, OptionsFromConfig(ss.transport), ss.base.With(zap.String("session_id", id.String())))
	if err != nil {
		return nil, err
	}
	req.Parameters = h.Parameters()

	sess := &Session{
		ID:       id,
		Request:  req,
		OpenedAt: time.Now(),
		handler:  h,
		queue:    protocol.NewPacketQueue(ss.transport.QueueLimit),
		logger:   utils.NewConnectionLogger(ss.base, id.String(), string(h.Kind()), req.Parameters.Endpoint()),
	}

	h.SetReceiveRule(rx)
	h.SetSendRule(tx)
	h.SetOutputQueue(sess.queue)
	h.Subscribe(ss.forward(sess))
	if req.AutoReconnect {
		sess.reconnector = protocol.NewReconnector(h, ss.transport.ReconnectDelay, ss.transport.ReconnectMax, sess.logger.Logger)
		h.Subscribe(sess.reconnector.Handle)
	}

	ss.mu.Lock()
	ss.sessions[id] = sess
	ss.mu.Unlock()

	ss.publish(model.NewSessionEvent(model.EventSessionOpened, id, h.Kind()))

	if err := h.Connect(ctx); err != nil {
		ss.remove(id)
		return nil, fmt.Errorf("connect session: %w", err)
	}

	ss.logger.Info("Session opened",
		zap.String("session_id", id.String()),
		zap.String("name", req.Name),
		zap.String("kind", string(h.Kind())),
		zap.String("endpoint", req.Parameters.Endpoint()),
	)

	info := sess.info()
	return &info, nil
}

func (ss *SessionService) applySerialDefaults(p model.ConnectionParameters) model.ConnectionParameters {
	if model.ParseTransportKind(string(p.Kind)) != model.KindSerial {
		return p
	}
	d := ss.transport.Serial
	if p.BaudRate == 0 {
		p.BaudRate = d.BaudRate
	}
	if p.DataBits == 0 {
		p.DataBits = d.DataBits
	}
	if p.StopBits == 0 {
		p.StopBits = d.StopBits
	}
	if p.Parity == "" {
		p.Parity = model.Parity(d.Parity)
	}
	if p.FlowControl == "" {
		p.FlowControl = model.FlowControl(d.FlowControl)
	}
	return p
}

// forward turns handler events into session events
func (ss *SessionService) forward(sess *Session) protocol.EventHandler {
	kind := sess.handler.Kind()
	return func(ev protocol.Event) {
		var event model.SessionEvent
		switch ev.Type {
		case protocol.EventConnected:
			event = model.NewSessionEvent(model.EventConnected, sess.ID, kind)
			sess.logger.LogConnection("connected", true, nil)
		case protocol.EventDisconnected:
			event = model.NewSessionEvent(model.EventDisconnected, sess.ID, kind)
			sess.logger.LogConnection("disconnected", true, nil)
		case protocol.EventDataReceived:
			event = model.NewSessionEvent(model.EventDataReceived, sess.ID, kind)
			event.Data = ev.Data
			event.Count = len(ev.Data)
			sess.logger.LogTraffic("rx", ev.Data)
		case protocol.EventBytesWritten:
			event = model.NewSessionEvent(model.EventBytesWritten, sess.ID, kind)
			event.Count = ev.Count
		case protocol.EventError:
			event = model.NewSessionEvent(model.EventError, sess.ID, kind)
			event.ErrorCode = ev.Code.String()
			if ev.Err != nil {
				event.Message = ev.Err.Error()
			}
			sess.logger.LogConnection("error", false, ev.Err)
		default:
			return
		}
		event.Timestamp = ev.Time
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now()
		}
		ss.publish(event)
	}
}

func (ss *SessionService) publish(event model.SessionEvent) {
	if ss.publisher != nil {
		ss.publisher.Publish(event)
	}
}

func (ss *SessionService) lookup(id uuid.UUID) (*Session, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	sess, ok := ss.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

func (ss *SessionService) remove(id uuid.UUID) *Session {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	sess := ss.sessions[id]
	delete(ss.sessions, id)
	return sess
}

// Get returns a snapshot of one session
func (ss *SessionService) Get(id uuid.UUID) (*model.SessionInfo, error) {
	sess, err := ss.lookup(id)
	if err != nil {
		return nil, err
	}
	info := sess.info()
	return &info, nil
}

// List returns snapshots of all sessions, oldest first
func (ss *SessionService) List() []model.SessionInfo {
	ss.mu.RLock()
	infos := make([]model.SessionInfo, 0, len(ss.sessions))
	for _, sess := range ss.sessions {
		infos = append(infos, sess.info())
	}
	ss.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].OpenedAt.Before(infos[j].OpenedAt) })
	return infos
}

// Send writes data through the session's send rule
func (ss *SessionService) Send(id uuid.UUID, data []byte) error {
	sess, err := ss.lookup(id)
	if err != nil {
		return err
	}
	if !sess.handler.IsConnected() {
		return fmt.Errorf("%w: state %s", ErrSessionNotConnected, sess.handler.State())
	}
	sess.logger.LogTraffic("tx", data)
	sess.handler.Send(data)
	return nil
}

// SetPins drives DTR and RTS of a serial session
func (ss *SessionService) SetPins(id uuid.UUID, dtr, rts bool) error {
	sess, err := ss.lookup(id)
	if err != nil {
		return err
	}
	if sess.handler.Kind() != model.KindSerial {
		return ErrNotSerial
	}
	sess.handler.SetPinControl(dtr, rts)
	return nil
}

// Pins returns the last sampled handshake input lines
func (ss *SessionService) Pins(id uuid.UUID) (model.PinState, error) {
	sess, err := ss.lookup(id)
	if err != nil {
		return model.PinState{}, err
	}
	return sess.handler.PinStatus().Decode(), nil
}

// Packets drains up to max received packets. max <= 0 drains everything.
func (ss *SessionService) Packets(id uuid.UUID, max int) ([][]byte, error) {
	sess, err := ss.lookup(id)
	if err != nil {
		return nil, err
	}
	return sess.queue.Drain(max), nil
}

// Reconnect closes the session's transport and starts a new connect attempt
func (ss *SessionService) Reconnect(ctx context.Context, id uuid.UUID) error {
	sess, err := ss.lookup(id)
	if err != nil {
		return err
	}
	if err := sess.handler.Close(); err != nil {
		sess.logger.Warn("Close before reconnect failed", zap.Error(err))
	}
	if err := sess.handler.Connect(ctx); err != nil {
		return fmt.Errorf("reconnect session: %w", err)
	}
	sess.logger.LogConnection("reconnect", true, nil)
	return nil
}

// Close closes the transport and forgets the session
func (ss *SessionService) Close(id uuid.UUID) error {
	sess := ss.remove(id)
	if sess == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	err := sess.close()
	ss.publish(model.NewSessionEvent(model.EventSessionClosed, id, sess.handler.Kind()))
	ss.logger.Info("Session closed", zap.String("session_id", id.String()))
	return err
}

// CloseAll closes every session
func (ss *SessionService) CloseAll() {
	ss.mu.Lock()
	sessions := ss.sessions
	ss.sessions = make(map[uuid.UUID]*Session)
	ss.mu.Unlock()

	for id, sess := range sessions {
		if err := sess.close(); err != nil {
			ss.logger.Warn("Session close failed", zap.String("session_id", id.String()), zap.Error(err))
		}
		ss.publish(model.NewSessionEvent(model.EventSessionClosed, id, sess.handler.Kind()))
	}
}

func (s *Session) close() error {
	if s.reconnector != nil {
		s.reconnector.Stop()
	}
	err := s.handler.Close()
	s.logger.LogConnection("close", err == nil, err)
	return err
}

func (s *Session) info() model.SessionInfo {
	stats := s.handler.Stats()
	params := s.handler.Parameters()
	return model.SessionInfo{
		ID:            s.ID,
		Name:          s.Request.Name,
		Kind:          s.handler.Kind(),
		Endpoint:      params.Endpoint(),
		Parameters:    params,
		ReceiveRule:   s.Request.ReceiveRule,
		SendRule:      s.Request.SendRule,
		State:         s.handler.State().String(),
		PinStatus:     uint8(s.handler.PinStatus()),
		QueuedPackets: s.queue.Len(),
		BytesSent:     stats.BytesSent,
		BytesReceived: stats.BytesReceived,
		PacketsRx:     stats.PacketsReceived,
		Errors:        stats.ErrorCount,
		OpenedAt:      s.OpenedAt,
		LastActivity:  stats.LastActivity,
	}
}
