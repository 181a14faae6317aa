package game

import (
	"encoding/json"
	"time"
)

// EventType classifies audit events.
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypeMatchStarted
	EventTypeMatchCompleted // payload is the full Recording
	EventTypeTournamentEntered
	EventTypeRoundCompleted
	EventTypeTournamentEnded
	EventTypeDeposit
)

// EventVersion is bumped when payload shapes change.
const EventVersion uint8 = 1

// Event is one line of the audit log.
type Event struct {
	Version   uint8           `json:"version"`
	Type      EventType       `json:"type"`
	Timestamp int64           `json:"timestamp"` // Unix nano
	Sequence  uint64          `json:"sequence"`
	MatchID   string          `json:"matchId,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// String returns the event type name
func (t EventType) String() string {
	switch t {
	case EventTypeMatchStarted:
		return "match_started"
	case EventTypeMatchCompleted:
		return "match_completed"
	case EventTypeTournamentEntered:
		return "tournament_entered"
	case EventTypeRoundCompleted:
		return "round_completed"
	case EventTypeTournamentEnded:
		return "tournament_ended"
	case EventTypeDeposit:
		return "deposit"
	default:
		return "unknown"
	}
}

// MatchStartedPayload identifies a match before any input.
type MatchStartedPayload struct {
	Game ID    `json:"game"`
	Seed int64 `json:"seed"`
	Mode Mode  `json:"mode"`
}

// TournamentPayload describes a bracket transition.
type TournamentPayload struct {
	TournamentID     string `json:"tournamentId"`
	Seed             int64  `json:"seed"`
	Round            int    `json:"round"`
	PlayersRemaining int    `json:"playersRemaining"`
	Game             ID     `json:"game,omitempty"`
	GameSeed         int64  `json:"gameSeed,omitempty"`
	Score            int    `json:"score,omitempty"`
	Rank             int    `json:"rank,omitempty"`
	Advances         bool   `json:"advances,omitempty"`
	Outcome          string `json:"outcome,omitempty"`
	Amount           string `json:"amount,omitempty"`
}

// EncodePayload marshals a payload, returning nil on failure.
func EncodePayload(payload any) json.RawMessage {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

// NewEvent creates an event stamped with the current time.
func NewEvent(eventType EventType, matchID, userID string, payload any) Event {
	return Event{
		Version:   EventVersion,
		Type:      eventType,
		Timestamp: time.Now().UnixNano(),
		MatchID:   matchID,
		UserID:    userID,
		Payload:   EncodePayload(payload),
	}
}
