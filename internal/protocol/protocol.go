// Package protocol defines the event names and payloads exchanged with clients.
// Every websocket frame is a JSON object {"event": name, "data": payload}.
package protocol

import (
	"encoding/json"

	"uisync/internal/types"
)

const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"

	EventNewLeader    = "new_leader"
	EventRemoveLeader = "remove_leader"
	EventJoinRoom     = "join_room"
	EventLeaveRoom    = "leave_room"
	EventUIChange     = "ui_change"
	EventPing         = "my_ping"

	EventConfirmConnect       = "confirm_connect"
	EventFullStateSnapshot    = "full_state_snapshot"
	EventConfirmLeaderStart   = "confirm_leader_start"
	EventAllLeaders           = "all_leaders"
	EventConfirmLeaderEnd     = "confirm_leader_end"
	EventNoMoreLeader         = "no_more_leader"
	EventConfirmFollowerStart = "confirm_follower_start"
	EventConfirmFollowerEnd   = "confirm_follower_end"
	EventNewState             = "new_state"
	EventPong                 = "my_pong"
	EventError                = "error"
)

const (
	CodeMalformedPayload = "MALFORMED_PAYLOAD"
	CodeUnknownEvent     = "UNKNOWN_EVENT"
	CodeFrameTooLarge    = "FRAME_TOO_LARGE"
	CodeInternal         = "INTERNAL"
)

type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound payloads.

type NewLeader struct {
	Leader            types.Leader `json:"leader"`
	Site              string       `json:"site"`
	FullStateSnapshot types.State  `json:"full_state_snapshot"`
}

type SiteRequest struct {
	Site string `json:"site"`
}

type UIChange struct {
	Site         string      `json:"site"`
	MutationName string      `json:"mutation_name"`
	NewVal       types.Value `json:"new_val"`
}

// Outbound payloads.

type Directory struct {
	Leaders map[string]string `json:"leaders"`
}

type FullStateSnapshot struct {
	StateSnapshot types.State  `json:"state_snapshot"`
	Leader        types.Leader `json:"leader"`
}

type SiteAck struct {
	Site string `json:"site"`
}

type NoMoreLeader struct {
	Site       string `json:"site"`
	LeaderName string `json:"leader_name"`
}

type NewState struct {
	Key    string      `json:"key"`
	NewVal types.Value `json:"new_val"`
}

type Error struct {
	Event   string `json:"event,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
