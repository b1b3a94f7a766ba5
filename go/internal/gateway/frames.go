package gateway

import (
	"encoding/json"

	"github.com/mcdev12/tabletalk/go/internal/room"
)

// Command types accepted from clients.
const (
	CommandCreateRoom    = "create_room"
	CommandJoinRoom      = "join_room"
	CommandResume        = "resume"
	CommandAddSuggestion = "add_suggestion"
	CommandCastVote      = "cast_vote"
	CommandClearVote     = "clear_vote"
	CommandSendMessage   = "send_message"
	CommandEndRoom       = "end_room"
	CommandLeaveRoom     = "leave_room"
	CommandSetTab        = "set_tab"
	CommandGetState      = "get_state"
)

// Frame types pushed to clients.
const (
	FrameAck   = "ack"
	FrameState = "state"
	FrameTick  = "tick"
)

// Command is a client request read off the socket.
type Command struct {
	RequestID string          `json:"request_id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// AckFrame answers exactly one command.
type AckFrame struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Command   string `json:"command,omitempty"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// StateFrame carries the full view after a state change.
type StateFrame struct {
	Type  string    `json:"type"`
	State room.View `json:"state"`
}

// TickFrame carries a countdown sample for the live room.
type TickFrame struct {
	Type string    `json:"type"`
	Tick room.Tick `json:"tick"`
}

type joinRoomData struct {
	Code string `json:"code"`
}

type addSuggestionData struct {
	Name        string `json:"name"`
	Emoji       string `json:"emoji"`
	Description string `json:"description"`
}

type voteData struct {
	SuggestionID string `json:"suggestion_id"`
	Reaction     string `json:"reaction"`
}

type sendMessageData struct {
	Text string `json:"text"`
}

type setTabData struct {
	Tab string `json:"tab"`
}

func ack(cmd Command, data any, err error) AckFrame {
	f := AckFrame{
		Type:      FrameAck,
		RequestID: cmd.RequestID,
		Command:   cmd.Type,
		OK:        err == nil,
		Data:      data,
	}
	if err != nil {
		f.Error = err.Error()
		f.Data = nil
	}
	return f
}
