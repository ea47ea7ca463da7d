package main

// Frames coming from clients. Type names match game event types; the
// gateway stamps the sender, clients never pick their own identity.
type ClientMessage struct {
	Type      string `json:"type"`
	ArticleID string `json:"articleId,omitempty"`
	Summary   string `json:"summary,omitempty"`
	Text      string `json:"text,omitempty"`
	AnswerID  string `json:"answerId,omitempty"`
}

// Frames sent to clients.
const (
	msgSyncState  = "SYNC_STATE"
	msgRoomJoined = "ROOM_JOINED"
	msgError      = "ERROR"
)

type SyncStateMessage struct {
	Type    string `json:"type"` // "SYNC_STATE"
	Payload View   `json:"payload"`
}

type RoomJoinedPayload struct {
	PlayerID       string `json:"playerId"`
	ReconnectToken string `json:"reconnectToken"`
}

type RoomJoinedMessage struct {
	Type    string            `json:"type"` // "ROOM_JOINED"
	Payload RoomJoinedPayload `json:"payload"`
}

type ErrorMessage struct {
	Type    string    `json:"type"` // "ERROR"
	Payload rejection `json:"payload"`
}

// CreateRoomResponse answers the room-minting endpoint.
type CreateRoomResponse struct {
	RoomCode  string `json:"roomCode"`
	HostToken string `json:"hostToken"`
}
