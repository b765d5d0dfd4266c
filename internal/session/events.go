package session

import "encoding/json"

// Wire event names. Client to server: join_room, player_move.
// Server to client: the rest.
const (
	EvtJoinRoom             = "join_room"
	EvtPlayerMove           = "player_move"
	EvtGameState            = "game_state"
	EvtMoveUpdate           = "move_update"
	EvtParticipantJoined    = "participant_joined"
	EvtOpponentDisconnected = "opponent_disconnected"
	EvtError                = "error"
)

// Envelope frames every inbound message; Data is decoded per event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event is an outbound message before encoding.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type JoinRoomData struct {
	Identifier string `json:"identifier"`
	RoomID     string `json:"room_id"`
}

type PlayerMoveData struct {
	Identifier       string `json:"identifier"`
	RoomID           string `json:"room_id"`
	ExpectedPosition string `json:"expected_position"`
	Move             string `json:"move"`
}

type GameStateData struct {
	Position     string   `json:"position"`
	Turn         string   `json:"turn"`
	Status       string   `json:"status"`
	Participants []string `json:"participants"`
	RoomID       string   `json:"room_id"`
}

type MoveUpdateData struct {
	Position   string `json:"position"`
	Move       string `json:"move"`
	Identifier string `json:"identifier"`
}

type ParticipantJoinedData struct {
	Identifier   string   `json:"identifier"`
	Participants []string `json:"participants"`
}

type ErrorData struct {
	Message string `json:"message"`
}
