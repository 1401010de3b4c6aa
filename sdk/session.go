package vocalis

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vocalis-go/vocalis/pkg/voice/audio"
	"github.com/vocalis-go/vocalis/pkg/voice/protocol"
	"github.com/vocalis-go/vocalis/pkg/voice/state"
	"github.com/vocalis-go/vocalis/pkg/voice/telemetry"
)

const voicePath = "/v1/voice"

// SessionConfig configures one voice session.
type SessionConfig struct {
	// ThreadID resumes an existing conversation thread. Empty starts a new
	// thread; the server assigns an id, readable from ThreadID after connect.
	ThreadID string

	// Voice optionally selects the synthesis voice right after connect.
	Voice string

	// Capture provides user audio. Nil disables audio input; StartListening
	// then fails with a device_unavailable error.
	Capture Capture

	// Player plays assistant speech as it arrives. Nil disables playback;
	// assistant audio is still buffered on the turn.
	Player Player
}

// outboundFrame is one queued websocket write. Exactly one field is set.
type outboundFrame struct {
	text   []byte
	binary []byte
}

// Session is one live voice session. The server owns the turn state machine:
// requests here only ask for transitions, and the state observed locally is
// whatever the server last confirmed.
type Session struct {
	logger   *slog.Logger
	recorder *telemetry.Recorder
	capture  Capture
	player   Player
	conn     *websocket.Conn
	url      string

	writeTimeout time.Duration
	pingInterval time.Duration

	events     chan SessionEvent
	outbound   chan outboundFrame
	closing    chan struct{}
	done       chan struct{}
	writerDone chan struct{}

	shutdownOnce sync.Once
	closeOnce    sync.Once
	closed       atomic.Bool

	// sendMu serializes enqueues so the stop latch and the chunk pump agree
	// on ordering: no chunk enters the queue after the stop frame.
	sendMu sync.Mutex

	emitMu       sync.Mutex
	eventsClosed bool

	mu           sync.Mutex
	connState    ConnState
	voiceState   state.State
	threadID     string
	messages     []Turn
	errorMessage string
	startPending bool
	stopPending  bool
	pendingAudio []byte

	errMu sync.Mutex
	err   error
}

// Connect dials the voice websocket, waits for the server's initial state
// frame and returns a live session. The handshake is bounded by the client
// handshake timeout unless ctx carries an earlier deadline.
func (c *Client) Connect(ctx context.Context, cfg *SessionConfig) (*Session, error) {
	if cfg == nil {
		cfg = &SessionConfig{}
	}

	wsURL, err := c.websocketEndpoint(voicePath)
	if err != nil {
		return nil, err
	}
	if cfg.ThreadID != "" {
		u, perr := url.Parse(wsURL)
		if perr != nil {
			return nil, NewInvalidRequestError("invalid server base URL")
		}
		q := u.Query()
		q.Set("thread_id", cfg.ThreadID)
		u.RawQuery = q.Encode()
		wsURL = u.String()
	}

	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, c.handshakeTimeout)
		defer cancel()
	}

	conn, resp, err := c.dialer.DialContext(dialCtx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, &TransportError{Op: "GET", URL: wsURL, Err: fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)}
		}
		return nil, &TransportError{Op: "GET", URL: wsURL, Err: err}
	}

	// The first frame on a healthy connection is always a state message
	// carrying the assigned (or resumed) thread id.
	_ = conn.SetReadDeadline(time.Now().Add(c.handshakeTimeout))
	messageType, payload, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, &TransportError{Op: "read", URL: wsURL, Err: fmt.Errorf("read initial state: %w", err)}
	}
	_ = conn.SetReadDeadline(time.Time{})
	if messageType != websocket.TextMessage {
		_ = conn.Close()
		return nil, NewProtocolError(fmt.Sprintf("unexpected first frame type %d", messageType))
	}

	msg, err := protocol.DecodeServerMessage(payload)
	if err != nil {
		_ = conn.Close()
		return nil, NewProtocolError(fmt.Sprintf("bad initial frame: %v", err))
	}

	switch m := msg.(type) {
	case protocol.State:
		initial, perr := state.Parse(m.State)
		if perr != nil {
			_ = conn.Close()
			return nil, NewProtocolError(fmt.Sprintf("bad initial frame: %v", perr))
		}

		session := &Session{
			logger:       c.logger,
			recorder:     c.newRecorder(),
			capture:      cfg.Capture,
			player:       cfg.Player,
			conn:         conn,
			url:          wsURL,
			writeTimeout: c.writeTimeout,
			pingInterval: c.pingInterval,
			events:       make(chan SessionEvent, c.eventBuffer),
			outbound:     make(chan outboundFrame, outboundBuffer),
			closing:      make(chan struct{}),
			done:         make(chan struct{}),
			writerDone:   make(chan struct{}),
			connState:    ConnConnected,
			voiceState:   initial,
			threadID:     m.ThreadID,
		}
		session.recorder.Record(protocol.CategoryWS, "connected", map[string]any{
			"url":       redactURLUserInfo(wsURL),
			"thread_id": m.ThreadID,
			"state":     m.State,
		}, nil)

		go session.readLoop()
		go session.writeLoop()
		if session.capture != nil {
			go session.pumpChunks()
		}
		if cfg.Voice != "" {
			voice := cfg.Voice
			if err := session.SetVoice(&voice); err != nil {
				c.logger.Warn("initial set_voice failed", "error", err)
			}
		}
		return session, nil
	case protocol.ServerError:
		_ = conn.Close()
		return nil, NewServerError(m.Message, "")
	default:
		_ = conn.Close()
		return nil, NewProtocolError(fmt.Sprintf("unexpected first frame type %q", messageTypeName(msg)))
	}
}

// Events yields session events. The channel closes after the final
// DisconnectedEvent. Slow consumers lose events rather than stalling the
// session.
func (s *Session) Events() <-chan SessionEvent {
	if s == nil {
		return nil
	}
	return s.events
}

// ConnectionState returns the current websocket connection state.
func (s *Session) ConnectionState() ConnState {
	if s == nil {
		return ConnDisconnected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connState
}

// VoiceState returns the last server-confirmed voice state.
func (s *Session) VoiceState() state.State {
	if s == nil {
		return state.Idle
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voiceState
}

// ThreadID returns the server-assigned conversation thread id.
func (s *Session) ThreadID() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threadID
}

// ErrorMessage returns the last user-visible error, or empty.
func (s *Session) ErrorMessage() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorMessage
}

// Messages returns a snapshot of the committed transcript, oldest first.
// Audio handles are shared with the session; they read as empty once
// released.
func (s *Session) Messages() []Turn {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.messages))
	copy(out, s.messages)
	return out
}

// ReplaceMessages swaps the whole transcript, releasing the audio of the
// replaced turns. Used when loading thread history.
func (s *Session) ReplaceMessages(turns []Turn) {
	if s == nil {
		return
	}
	s.mu.Lock()
	old := s.messages
	s.messages = make([]Turn, len(turns))
	copy(s.messages, turns)
	s.mu.Unlock()

	for _, turn := range old {
		turn.Audio.Release()
	}
	s.recorder.Record(protocol.CategoryState, "history_replaced", map[string]any{"turns": len(turns)}, nil)
}

// Telemetry returns the session's debug event recorder.
func (s *Session) Telemetry() *telemetry.Recorder {
	if s == nil {
		return nil
	}
	return s.recorder
}

// Metrics returns the stage timings of the most recently completed turn.
func (s *Session) Metrics() telemetry.TurnMetrics {
	if s == nil {
		return telemetry.TurnMetrics{}
	}
	return s.recorder.Metrics()
}

// Done is closed once the session has fully shut down.
func (s *Session) Done() <-chan struct{} {
	if s == nil {
		return nil
	}
	return s.done
}

// Err blocks until the session ends and returns the terminal error, if any.
// Clean closes return nil.
func (s *Session) Err() error {
	if s == nil {
		return nil
	}
	<-s.done
	return s.terminalErr()
}

// Close shuts the session down: devices released, close frame sent, the
// connection closed and all buffered turn audio dropped. Safe to call more
// than once.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.capture != nil {
			s.capture.Stop()
		}
		if s.player != nil {
			s.player.Stop()
		}
		s.signalShutdown()
	})
	<-s.done
	<-s.writerDone

	s.mu.Lock()
	turns := s.messages
	s.pendingAudio = nil
	s.mu.Unlock()
	for _, turn := range turns {
		turn.Audio.Release()
	}
	return nil
}

// StartListening asks the server to begin a turn. Legal only while idle;
// anywhere else it is a silent no-op. The capture device is acquired before
// the request goes out, so a device failure never leaks a dangling server
// turn: it sets the session error message, leaves the voice state unchanged
// and returns a device_unavailable error.
func (s *Session) StartListening(ctx context.Context) error {
	if s == nil {
		return ErrSessionClosed
	}

	s.mu.Lock()
	if !state.CanRequestStart(s.voiceState) || s.startPending {
		current := s.voiceState
		s.mu.Unlock()
		s.logger.Debug("ignoring start_listening request", "state", current.String())
		return nil
	}
	s.mu.Unlock()

	if s.capture == nil {
		return s.captureFailure(NewDeviceUnavailableError("no capture device configured", nil))
	}
	if err := s.capture.Start(ctx); err != nil {
		return s.captureFailure(NewDeviceUnavailableError(err.Error(), err))
	}

	payload, err := protocol.EncodeClientControl(protocol.StartListening())
	if err != nil {
		s.capture.Stop()
		return err
	}

	s.mu.Lock()
	s.startPending = true
	s.errorMessage = ""
	s.mu.Unlock()

	if err := s.enqueue(outboundFrame{text: payload}); err != nil {
		s.capture.Stop()
		s.mu.Lock()
		s.startPending = false
		s.mu.Unlock()
		return err
	}
	s.recorder.Record(protocol.CategoryCapture, "start_requested", nil, nil)
	return nil
}

func (s *Session) captureFailure(err *Error) error {
	s.mu.Lock()
	s.errorMessage = err.Message
	s.mu.Unlock()
	s.recorder.Record(protocol.CategoryCapture, "error", map[string]any{"error": err.Message}, nil)
	return err
}

// StopListening asks the server to end the current utterance. Legal only
// while listening; anywhere else it is a silent no-op. Chunk transmission
// halts as soon as the request is queued, without waiting for the server to
// confirm the transition.
func (s *Session) StopListening() error {
	if s == nil {
		return ErrSessionClosed
	}

	s.mu.Lock()
	if !state.CanRequestStop(s.voiceState) {
		current := s.voiceState
		s.mu.Unlock()
		s.logger.Debug("ignoring stop_listening request", "state", current.String())
		return nil
	}
	s.mu.Unlock()

	payload, err := protocol.EncodeClientControl(protocol.StopListening())
	if err != nil {
		return err
	}

	s.sendMu.Lock()
	s.mu.Lock()
	s.stopPending = true
	s.mu.Unlock()
	err = s.enqueue(outboundFrame{text: payload})
	s.sendMu.Unlock()
	if err != nil {
		return err
	}
	s.recorder.Record(protocol.CategoryCapture, "stop_requested", nil, nil)
	return nil
}

// Cancel aborts the in-flight turn. Unlike start and stop it is accepted in
// every state and applies locally at once: capture and playback stop and the
// voice state resets to idle without waiting for the server. The cancel frame
// itself is sent best-effort.
func (s *Session) Cancel() error {
	if s == nil {
		return ErrSessionClosed
	}

	if s.capture != nil {
		s.capture.Stop()
	}
	if s.player != nil {
		s.player.Stop()
	}

	s.mu.Lock()
	from := s.voiceState
	s.voiceState = state.Reduce(s.voiceState, state.Cancel())
	to := s.voiceState
	s.startPending = false
	s.stopPending = false
	s.pendingAudio = nil
	s.mu.Unlock()

	if from != to {
		s.recorder.Record(telemetry.CategoryState, telemetry.EventTransition, map[string]any{
			telemetry.KeyFrom: from.String(),
			telemetry.KeyTo:   to.String(),
			"cause":           "cancel",
		}, nil)
		s.emit(StateChangedEvent{From: from, To: to})
	}

	payload, err := protocol.EncodeClientControl(protocol.Cancel())
	if err != nil {
		return err
	}
	if !s.trySend(outboundFrame{text: payload}) {
		s.logger.Debug("cancel frame dropped", "reason", "send queue unavailable")
	}
	s.recorder.Record(protocol.CategoryCapture, "cancelled", nil, nil)
	return nil
}

// SetVoice selects the synthesis voice for subsequent turns. A nil voice
// resets the server default.
func (s *Session) SetVoice(voice *string) error {
	if s == nil {
		return ErrSessionClosed
	}
	payload, err := protocol.EncodeClientControl(protocol.SetVoice(voice))
	if err != nil {
		return err
	}
	if err := s.enqueue(outboundFrame{text: payload}); err != nil {
		return err
	}
	name := "default"
	if voice != nil {
		name = *voice
	}
	s.recorder.Record(protocol.CategoryTTS, "voice_requested", map[string]any{"voice": name}, nil)
	return nil
}

func (s *Session) signalShutdown() {
	s.shutdownOnce.Do(func() {
		close(s.closing)
	})
}

func (s *Session) terminalErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *Session) setErr(err error) {
	if err == nil {
		return
	}
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// enqueue places one frame on the ordered send queue, failing fast when the
// session is shutting down or the writer has died.
func (s *Session) enqueue(frame outboundFrame) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	select {
	case s.outbound <- frame:
		return nil
	case <-s.closing:
		return ErrSessionClosed
	case <-s.writerDone:
		if err := s.terminalErr(); err != nil {
			return err
		}
		return ErrSessionClosed
	}
}

func (s *Session) trySend(frame outboundFrame) bool {
	if s.closed.Load() {
		return false
	}
	select {
	case <-s.closing:
		return false
	default:
	}
	select {
	case s.outbound <- frame:
		return true
	default:
		return false
	}
}

func (s *Session) emit(event SessionEvent) {
	if event == nil {
		return
	}
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if s.eventsClosed {
		return
	}
	select {
	case s.events <- event:
	default:
		// Avoid deadlocking the read loop if the caller stops consuming.
	}
}

func (s *Session) closeEvents() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if s.eventsClosed {
		return
	}
	s.eventsClosed = true
	close(s.events)
}

// writeLoop is the only goroutine that writes to the connection. It drains
// the ordered send queue, applies a per-frame deadline and keeps the
// connection alive with pings. It owns closing the connection.
func (s *Session) writeLoop() {
	defer close(s.writerDone)

	var pings <-chan time.Time
	if s.pingInterval > 0 {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		pings = ticker.C
	}

	for {
		select {
		case <-s.closing:
			deadline := time.Now().Add(s.writeTimeout)
			_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			_ = s.conn.Close()
			return
		case frame := <-s.outbound:
			if err := s.writeFrame(frame); err != nil {
				s.setErr(&TransportError{Op: "write", URL: s.url, Err: err})
				_ = s.conn.Close()
				return
			}
		case <-pings:
			deadline := time.Now().Add(s.writeTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.setErr(&TransportError{Op: "ping", URL: s.url, Err: err})
				_ = s.conn.Close()
				return
			}
		}
	}
}

func (s *Session) writeFrame(frame outboundFrame) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	if frame.text != nil {
		return s.conn.WriteMessage(websocket.TextMessage, frame.text)
	}
	return s.conn.WriteMessage(websocket.BinaryMessage, frame.binary)
}

// pumpChunks forwards captured audio to the send queue while the server has
// the session in listening and no stop request is pending. Suppressed chunks
// still accumulate in the capture's utterance buffer.
func (s *Session) pumpChunks() {
	for {
		select {
		case chunk, ok := <-s.capture.Chunks():
			if !ok {
				return
			}
			s.sendMu.Lock()
			s.mu.Lock()
			transmit := s.voiceState == state.Listening && !s.stopPending
			s.mu.Unlock()
			var err error
			if transmit {
				err = s.enqueue(outboundFrame{binary: chunk})
			}
			s.sendMu.Unlock()
			if err != nil {
				s.logger.Debug("audio chunk dropped", "error", err)
				return
			}
			if transmit {
				s.recorder.Record(protocol.CategoryAudio, "chunk_sent", map[string]any{"bytes": len(chunk)}, nil)
			}
		case <-s.closing:
			return
		}
	}
}

func (s *Session) readLoop() {
	defer close(s.done)

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			switch {
			case s.closed.Load():
				s.finishDisconnect(nil, ConnDisconnected, "")
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				s.finishDisconnect(nil, ConnDisconnected, "connection closed by server")
			default:
				s.setErr(&TransportError{Op: "read", URL: s.url, Err: err})
				s.finishDisconnect(s.terminalErr(), ConnError, "connection lost")
			}
			return
		}

		switch messageType {
		case websocket.TextMessage:
			s.handleText(data)
		case websocket.BinaryMessage:
			s.handleAssistantAudio(data)
		}
	}
}

// finishDisconnect applies the shared teardown for every way a connection
// ends: devices released, state reset to idle, a final DisconnectedEvent and
// the event channel closed.
func (s *Session) finishDisconnect(cause error, connState ConnState, message string) {
	s.signalShutdown()
	if s.capture != nil {
		s.capture.Stop()
	}
	if s.player != nil {
		s.player.Stop()
	}

	s.mu.Lock()
	from := s.voiceState
	s.voiceState = state.Reduce(s.voiceState, state.TransportLost())
	to := s.voiceState
	s.connState = connState
	s.startPending = false
	s.stopPending = false
	s.pendingAudio = nil
	if message != "" {
		s.errorMessage = message
	}
	s.mu.Unlock()

	data := map[string]any{}
	if cause != nil {
		data["error"] = cause.Error()
	}
	s.recorder.Record(protocol.CategoryWS, "disconnected", data, nil)

	if from != to {
		s.recorder.Record(telemetry.CategoryState, telemetry.EventTransition, map[string]any{
			telemetry.KeyFrom: from.String(),
			telemetry.KeyTo:   to.String(),
			"cause":           "disconnect",
		}, nil)
		s.emit(StateChangedEvent{From: from, To: to})
	}
	s.emit(DisconnectedEvent{Err: cause})
	s.closeEvents()
}

func (s *Session) handleText(data []byte) {
	msg, err := protocol.DecodeServerMessage(data)
	if err != nil {
		// Malformed frames are logged and dropped; the session keeps running.
		s.logger.Warn("dropping undecodable frame", "error", err)
		s.recorder.Record(protocol.CategoryWS, "decode_error", map[string]any{"error": err.Error()}, nil)
		return
	}

	switch m := msg.(type) {
	case protocol.State:
		s.applyServerState(m)
	case protocol.STTPartial:
		s.recorder.Record(protocol.CategorySTT, "partial", map[string]any{"text": m.Text}, nil)
		s.emit(TranscriptPartialEvent{Text: m.Text})
	case protocol.STTFinal:
		s.commitUserTurn(m.Text)
	case protocol.LLMComplete:
		s.commitAssistantTurn(m.Text)
	case protocol.TurnComplete:
		s.recorder.Record(protocol.CategoryState, "turn_complete", nil, nil)
		s.emit(TurnCompleteEvent{})
	case protocol.ServerError:
		s.mu.Lock()
		s.errorMessage = m.Message
		s.mu.Unlock()
		s.recorder.Record(protocol.CategoryWS, "server_error", map[string]any{"message": m.Message}, nil)
		s.emit(ServerErrorEvent{Message: m.Message})
	case protocol.Debug:
		s.recorder.Record(m.Category, m.Event, m.Data, serverMillis(m.TS))
		s.emit(DebugEvent{Category: m.Category, Name: m.Event, Data: m.Data})
	case protocol.Unknown:
		s.logger.Debug("ignoring unknown server message", "type", m.Type)
		s.recorder.Record(protocol.CategoryWS, "unknown_message", map[string]any{"type": m.Type}, nil)
		s.emit(UnknownEvent{Type: m.Type, Raw: m.Raw})
	}
}

// applyServerState applies a server-confirmed transition. The server owns the
// machine, so the target is applied even when it is not the canonical next
// state; surprising jumps are only logged.
func (s *Session) applyServerState(m protocol.State) {
	target, err := state.Parse(m.State)
	if err != nil {
		s.logger.Warn("dropping state frame", "error", err)
		s.recorder.Record(protocol.CategoryWS, "decode_error", map[string]any{"error": err.Error()}, nil)
		return
	}

	s.mu.Lock()
	from := s.voiceState
	s.voiceState = state.Reduce(from, state.ServerState(target))
	s.startPending = false
	s.stopPending = false
	if m.ThreadID != "" {
		s.threadID = m.ThreadID
	}
	s.mu.Unlock()

	if !state.Expected(from, target) {
		s.logger.Debug("unexpected state transition", "from", from.String(), "to", target.String())
	}

	// The microphone runs only while the server listens.
	if s.capture != nil && from == state.Listening && target != state.Listening {
		s.capture.Stop()
	}

	data := map[string]any{
		telemetry.KeyFrom: from.String(),
		telemetry.KeyTo:   target.String(),
	}
	if m.TurnTotalMS != nil {
		data[telemetry.KeyTurnTotalMS] = *m.TurnTotalMS
	}
	if m.STTMS != nil {
		data[telemetry.KeySTTMS] = *m.STTMS
	}
	if m.LLMMS != nil {
		data[telemetry.KeyLLMMS] = *m.LLMMS
	}
	if m.TTSMS != nil {
		data[telemetry.KeyTTSMS] = *m.TTSMS
	}
	s.recorder.Record(telemetry.CategoryState, telemetry.EventTransition, data, nil)
	s.emit(StateChangedEvent{From: from, To: target})
}

// commitUserTurn appends the user's turn once the final transcript arrives,
// attaching the locally captured utterance as playable WAV.
func (s *Session) commitUserTurn(text string) {
	turn := Turn{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Text:      text,
		Timestamp: time.Now(),
	}
	if s.capture != nil {
		if pcm := s.capture.Utterance(); len(pcm) > 0 {
			turn.Audio = newAudioHandle(uuid.NewString(), audio.EncodeWAV(pcm, protocol.SampleRate))
		}
	}

	s.mu.Lock()
	s.messages = append(s.messages, turn)
	s.mu.Unlock()

	s.recorder.Record(protocol.CategorySTT, "final", map[string]any{"text": text}, nil)
	s.emit(UserTurnEvent{Turn: turn})
}

// commitAssistantTurn appends the assistant's turn once the reply text
// arrives. Synthesized audio that already arrived is attached; audio that
// arrives later attaches to this turn retroactively.
func (s *Session) commitAssistantTurn(text string) {
	turn := Turn{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Text:      text,
		Timestamp: time.Now(),
	}

	s.mu.Lock()
	if len(s.pendingAudio) > 0 {
		turn.Audio = newAudioHandle(uuid.NewString(), s.pendingAudio)
		s.pendingAudio = nil
	}
	s.messages = append(s.messages, turn)
	s.mu.Unlock()

	s.recorder.Record(protocol.CategoryLLM, "complete", map[string]any{"text": text}, nil)
	s.emit(AssistantTurnEvent{Turn: turn})
}

// handleAssistantAudio plays one synthesized WAV payload and buffers it on
// the owning assistant turn. Playback failures are reported but never stall
// the session.
func (s *Session) handleAssistantAudio(payload []byte) {
	wav := make([]byte, len(payload))
	copy(wav, payload)

	if s.player != nil {
		if err := s.player.Play(wav); err != nil {
			perr := NewPlaybackError("assistant audio playback failed", err)
			s.logger.Warn("playback failed", "error", err)
			s.mu.Lock()
			s.errorMessage = perr.Message
			s.mu.Unlock()
			s.recorder.Record(protocol.CategoryPlayback, "error", map[string]any{"error": err.Error()}, nil)
		}
	}
	s.recorder.Record(protocol.CategoryPlayback, "payload", map[string]any{"bytes": len(wav)}, nil)

	s.mu.Lock()
	attached := false
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role != RoleAssistant {
			continue
		}
		// Attach only when the newest assistant turn is still waiting for
		// its audio; otherwise this payload belongs to a turn whose text
		// has not arrived yet.
		if s.messages[i].Audio == nil {
			s.messages[i].Audio = newAudioHandle(uuid.NewString(), wav)
			attached = true
		}
		break
	}
	if !attached {
		s.pendingAudio = wav
	}
	s.mu.Unlock()
}

func serverMillis(ts *float64) *int64 {
	if ts == nil {
		return nil
	}
	ms := int64(*ts * 1000)
	return &ms
}

func messageTypeName(msg protocol.ServerMessage) string {
	switch m := msg.(type) {
	case protocol.State:
		return protocol.TypeState
	case protocol.STTPartial:
		return protocol.TypeSTTPartial
	case protocol.STTFinal:
		return protocol.TypeSTTFinal
	case protocol.LLMComplete:
		return protocol.TypeLLMComplete
	case protocol.TurnComplete:
		return protocol.TypeTurnComplete
	case protocol.ServerError:
		return protocol.TypeError
	case protocol.Debug:
		return protocol.TypeDebug
	case protocol.Unknown:
		return m.Type
	default:
		return "unknown"
	}
}
