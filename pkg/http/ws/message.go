package ws

import (
	"encoding/json"

	"github.com/gokatarajesh/live-quiz/internal/quiz"
)

// MessageType constants for the push channel.
const (
	// Server -> participants
	TypeSessionStarted  = "session_started"
	TypeQuestionChanged = "question_changed"
	TypeSessionEnded    = "session_ended"
	TypeSessionReset    = "session_reset"

	// Server -> admins
	TypeClientConnected = "client_connected"
	TypeResultReceived  = "result_received"

	TypeError = "error"
	TypePing  = "ping"
	TypePong  = "pong"
)

// Message wraps all WebSocket payloads with type and optional request ID.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// NewMessage marshals payload into a typed envelope. A nil payload is omitted.
func NewMessage(msgType string, payload any) (Message, error) {
	msg := Message{Type: msgType}
	if payload == nil {
		return msg, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	msg.Payload = raw
	return msg, nil
}

// Decode unmarshals the payload into out.
func (m Message) Decode(out any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, out)
}

type SessionStartedPayload struct {
	Quiz            *quiz.Bank `json:"quiz"`
	CurrentQuestion int        `json:"currentQuestion"`
}

type QuestionChangedPayload struct {
	CurrentQuestion int `json:"currentQuestion"`
	TotalQuestions  int `json:"totalQuestions"`
}

type SessionEndedPayload struct {
	Reason string `json:"reason,omitempty"`
}

type ClientConnectedPayload struct {
	ClientID     string `json:"clientId"`
	ClientName   string `json:"clientName"`
	TotalClients int    `json:"totalClients"`
}

type ResultReceivedPayload struct {
	ClientID   string `json:"clientId"`
	ClientName string `json:"clientName"`
	Score      int    `json:"score"`
	MaxScore   int    `json:"maxScore"`
	Percentage int    `json:"percentage"`
	TimeTaken  int    `json:"timeTaken"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
