package types

import (
	"encoding/json"
	"time"

	"github.com/DoyleJ11/draft-relay/internal/engine"
)

// TimeLayout matches the timestamps shown by the draft page.
const TimeLayout = "2006-01-02 15:04:05.000000"

const (
	TypeUpdate  = "update"
	TypeMessage = "message"
)

const (
	StatusNoRoom       = "No room specified"
	StatusRoleTaken    = "Role already specified"
	StatusUnknownStyle = "Unknown draft style"

	NoticeDraftEnded  = "Draft has ended"
	NoticeNotYourTurn = "Not your turn"
)

type ErrorMessage struct {
	Error      int    `json:"error"`
	TextStatus string `json:"textStatus"`
}

type UpdateMessage struct {
	Time  string `json:"time"`
	Type  string `json:"type"` // always "update"
	Hero  string `json:"hero"`
	Index int    `json:"index"`
}

type NoticeMessage struct {
	Time    string `json:"time"`
	Type    string `json:"type"` // always "message"
	Message string `json:"message"`
}

func NewError(status string) ErrorMessage {
	return ErrorMessage{Error: 1, TextStatus: status}
}

func NewNotice(at time.Time, text string) NoticeMessage {
	return NoticeMessage{Time: at.Format(TimeLayout), Type: TypeMessage, Message: text}
}

func FromEvent(ev engine.Event) UpdateMessage {
	return UpdateMessage{
		Time:  ev.Time.Format(TimeLayout),
		Type:  TypeUpdate,
		Hero:  ev.Payload,
		Index: ev.Index,
	}
}

// Replay renders the history sent to a late joiner. An empty history still
// encodes as a JSON array.
func Replay(events []engine.Event) []UpdateMessage {
	out := make([]UpdateMessage, 0, len(events))
	for _, ev := range events {
		out = append(out, FromEvent(ev))
	}
	return out
}

func Encode(msg any) ([]byte, error) {
	return json.Marshal(msg)
}
