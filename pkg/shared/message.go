package shared

// MessageType identifies a websocket message sent between the playground and its clients.
type MessageType int

const (
	MessageTypeText         MessageType = 0 // program output
	MessageTypeError        MessageType = 1 // program or protocol error
	MessageTypeInputRequest MessageType = 2 // the program is blocked on `read`
	MessageTypeDone         MessageType = 3 // the run finished
	MessageTypeSession      MessageType = 4 // session id announcement
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeText:
		return "text"
	case MessageTypeError:
		return "error"
	case MessageTypeInputRequest:
		return "input"
	case MessageTypeDone:
		return "done"
	case MessageTypeSession:
		return "session"
	}
	return "unknown"
}

// Message is a server-to-client websocket message.
type Message struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content,omitempty"`

	// For SESSION
	SessionID string `json:"sessionId,omitempty"`

	// For ERROR raised by the interpreter
	ErrorKind string `json:"errorKind,omitempty"`
	Line      int    `json:"line,omitempty"`
}

// ClientMessage is a client-to-server websocket message.
// Type is one of "run", "input" or "stop".
type ClientMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

const (
	ClientRun   = "run"
	ClientInput = "input"
	ClientStop  = "stop"
)
