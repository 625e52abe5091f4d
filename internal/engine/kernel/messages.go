package kernel

import (
	"bytes"
	"encoding/json"
)

// protocolVersion is the Jupyter messaging protocol version we speak.
const protocolVersion = "5.3"

// Channels of the multiplexed websocket.
const (
	channelShell = "shell"
	channelIOPub = "iopub"
)

// Header is a Jupyter message header.
type Header struct {
	MsgID    string `json:"msg_id,omitempty"`
	MsgType  string `json:"msg_type,omitempty"`
	Username string `json:"username,omitempty"`
	Session  string `json:"session,omitempty"`
	Date     string `json:"date,omitempty"`
	Version  string `json:"version,omitempty"`
}

// Message is a Jupyter message as carried over the websocket JSON protocol.
type Message struct {
	Header       Header          `json:"header"`
	ParentHeader Header          `json:"parent_header"`
	Metadata     map[string]any  `json:"metadata"`
	Content      json.RawMessage `json:"content"`
	Channel      string          `json:"channel"`
	Buffers      []any           `json:"buffers"`
}

// decodeContent unmarshals the message content keeping JSON numbers intact.
func (m *Message) decodeContent(v any) error {
	if len(m.Content) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(m.Content))
	dec.UseNumber()
	return dec.Decode(v)
}

type executeRequest struct {
	Code            string         `json:"code"`
	Silent          bool           `json:"silent"`
	StoreHistory    bool           `json:"store_history"`
	UserExpressions map[string]any `json:"user_expressions"`
	AllowStdin      bool           `json:"allow_stdin"`
	StopOnError     bool           `json:"stop_on_error"`
}

type executeReply struct {
	Status         string   `json:"status"`
	ExecutionCount *int     `json:"execution_count"`
	EName          string   `json:"ename"`
	EValue         string   `json:"evalue"`
	Traceback      []string `json:"traceback"`
}

type kernelInfoReply struct {
	Status       string         `json:"status"`
	LanguageInfo map[string]any `json:"language_info"`
}

type statusContent struct {
	ExecutionState string `json:"execution_state"`
}

type streamContent struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

type displayContent struct {
	Data           map[string]any `json:"data"`
	Metadata       map[string]any `json:"metadata"`
	ExecutionCount *int           `json:"execution_count"`
}

type errorContent struct {
	EName     string   `json:"ename"`
	EValue    string   `json:"evalue"`
	Traceback []string `json:"traceback"`
}

type executeInputContent struct {
	ExecutionCount *int `json:"execution_count"`
}

type clearOutputContent struct {
	Wait bool `json:"wait"`
}
