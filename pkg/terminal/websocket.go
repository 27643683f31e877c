package terminal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/antibyte/stuck/pkg/configuration"
	"github.com/antibyte/stuck/pkg/logger"
	"github.com/antibyte/stuck/pkg/shared"
	"github.com/antibyte/stuck/pkg/stuck"

	"github.com/gorilla/websocket"
)

func getWriteWait() time.Duration {
	return configuration.GetDuration("WebSocket", "write_wait_timeout", 10*time.Second)
}

func getPongWait() time.Duration {
	return configuration.GetDuration("WebSocket", "pong_timeout", 60*time.Second)
}

func getPingPeriod() time.Duration {
	return (getPongWait() * 9) / 10
}

func getMaxMessageSize() int64 {
	return int64(configuration.GetInt("WebSocket", "max_message_size_kb", 64) * 1024)
}

func getSendBuffer() int {
	return configuration.GetInt("WebSocket", "send_buffer", 256)
}

var (
	errClientClosed = errors.New("client closed")
	errSendTimeout  = errors.New("send timeout")
	errInputFull    = errors.New("too much pending input")
)

// Client is one websocket connection of a session
type Client struct {
	conn      *websocket.Conn
	send      chan []byte
	server    *Server
	ipAddress string
	sessionID string
	owner     string
	shutdown  chan struct{}
	closeOnce sync.Once

	mu    sync.Mutex
	input *lineFeed // input of the current run, nil when idle
}

// enqueue hands a frame to the write pump. A client that cannot keep up is closed.
func (c *Client) enqueue(message []byte) error {
	select {
	case <-c.shutdown:
		return errClientClosed
	default:
	}

	select {
	case c.send <- message:
		return nil
	case <-c.shutdown:
		return errClientClosed
	case <-time.After(time.Second):
		logger.WebSocketWarn("Send timeout for session %s, closing client", c.sessionID)
		c.close()
		return errSendTimeout
	}
}

func (c *Client) sendMessage(msg shared.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

func (c *Client) sendError(kind, message string) {
	c.sendMessage(shared.Message{Type: shared.MessageTypeError, ErrorKind: kind, Content: message})
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.shutdown) })
}

func (c *Client) readPump() {
	defer c.server.cleanupClient(c)

	c.conn.SetReadLimit(getMaxMessageSize())
	c.conn.SetReadDeadline(time.Now().Add(getPongWait()))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(getPongWait()))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.WebSocketWarn("Unexpected close for session %s: %v", c.sessionID, err)
			} else {
				logger.WebSocketDebug("Connection closed for session %s: %v", c.sessionID, err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(getPongWait()))
		if messageType != websocket.TextMessage {
			continue
		}

		if err := c.server.sessions.CheckSessionLimits(c.sessionID); err != nil {
			logger.SecurityWarn("Session %s: %v", c.sessionID, err)
			c.sendError("RateLimit", "too many messages, slow down")
			continue
		}

		var request shared.ClientMessage
		decoder := json.NewDecoder(bytes.NewReader(message))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&request); err != nil {
			logger.WebSocketDebug("Invalid message from session %s: %v", c.sessionID, err)
			c.sendError("Protocol", "invalid message format")
			continue
		}
		c.handleRequest(request)
	}
}

func (c *Client) handleRequest(request shared.ClientMessage) {
	switch request.Type {
	case shared.ClientRun:
		if err := c.server.validator.ValidateSource(request.Content); err != nil {
			c.sendError("Protocol", err.Error())
			return
		}
		c.startRun(request.Content)

	case shared.ClientInput:
		if err := c.server.validator.ValidateInput(request.Content); err != nil {
			c.sendError("Protocol", err.Error())
			return
		}
		c.mu.Lock()
		feed := c.input
		c.mu.Unlock()
		if feed == nil {
			c.sendError("Protocol", "no program is running")
			return
		}
		if err := feed.push(request.Content); err != nil {
			c.sendError("Protocol", err.Error())
		}

	case shared.ClientStop:
		if !c.server.sessions.StopExecution(c.sessionID) {
			c.sendError("Protocol", "no program is running")
		}

	default:
		c.sendError("Protocol", "unknown message type "+request.Type)
	}
}

// startRun executes source in the background, streaming output and input requests to the client.
func (c *Client) startRun(source string) {
	timeout := configuration.GetDuration("Server", "interactive_timeout", 5*time.Minute)
	execution, err := c.server.sessions.StartExecution(c.server.ctx, c.sessionID, "websocket", timeout)
	if err != nil {
		c.sendError("Busy", err.Error())
		return
	}

	feed := newLineFeed(execution.Context, func() {
		c.sendMessage(shared.Message{Type: shared.MessageTypeInputRequest})
	})
	c.mu.Lock()
	c.input = feed
	c.mu.Unlock()

	go func() {
		out := newLimitedWriter(&messageWriter{client: c}, configuration.GetInt64("Server", "max_output_bytes", 1<<20))
		err := stuck.Execute(execution.Context, source, feed, out, serverOptions())

		c.mu.Lock()
		if c.input == feed {
			c.input = nil
		}
		c.mu.Unlock()
		c.server.sessions.FinishExecution(execution)

		if runErr := toRunError(err); runErr != nil {
			c.sendMessage(shared.Message{
				Type:      shared.MessageTypeError,
				Content:   runErr.Message,
				ErrorKind: runErr.Kind,
				Line:      runErr.Line,
			})
		}
		c.sendMessage(shared.Message{Type: shared.MessageTypeDone})
	}()
}

func (c *Client) writePump() {
	ticker := time.NewTicker(getPingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(getWriteWait()))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.WebSocketDebug("Write failed for session %s: %v", c.sessionID, err)
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(getWriteWait()))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.WebSocketDebug("Failed to send ping to session %s: %v", c.sessionID, err)
				c.close()
				return
			}
		case <-c.shutdown:
			c.conn.SetWriteDeadline(time.Now().Add(getWriteWait()))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// lineFeed is the input of a websocket run. Read blocks until the client sends
// a line, announcing the wait through onWait.
type lineFeed struct {
	ctx    context.Context
	lines  chan string
	onWait func()
	buf    []byte
}

func newLineFeed(ctx context.Context, onWait func()) *lineFeed {
	return &lineFeed{ctx: ctx, lines: make(chan string, 16), onWait: onWait}
}

func (f *lineFeed) push(line string) error {
	select {
	case f.lines <- line + "\n":
		return nil
	default:
		return errInputFull
	}
}

func (f *lineFeed) Read(p []byte) (int, error) {
	if len(f.buf) == 0 {
		select {
		case line := <-f.lines:
			f.buf = []byte(line)
		default:
			if f.onWait != nil {
				f.onWait()
			}
			select {
			case line := <-f.lines:
				f.buf = []byte(line)
			case <-f.ctx.Done():
				return 0, io.EOF
			}
		}
	}
	n := copy(p, f.buf)
	f.buf = f.buf[n:]
	return n, nil
}

// messageWriter turns program output into text messages without splitting runes.
type messageWriter struct {
	client  *Client
	pending []byte
}

func (w *messageWriter) Write(p []byte) (int, error) {
	data := append(w.pending, p...)
	cut := len(data)
	for i := len(data) - 1; i >= 0 && i >= len(data)-utf8.UTFMax; i-- {
		if utf8.RuneStart(data[i]) {
			if !utf8.FullRune(data[i:]) {
				cut = i
			}
			break
		}
	}
	w.pending = append([]byte(nil), data[cut:]...)
	if cut == 0 {
		return len(p), nil
	}
	if err := w.client.sendMessage(shared.Message{Type: shared.MessageTypeText, Content: string(data[:cut])}); err != nil {
		return 0, err
	}
	return len(p), nil
}
