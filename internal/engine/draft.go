package engine

import (
	"errors"
	"time"
)

var ErrNotYourTurn = errors.New("not your turn")
var ErrDraftEnded = errors.New("draft has ended")

type EventKind string

const (
	EvtUpdate  EventKind = "update"
	EvtMessage EventKind = "message"
)

// Event is a committed draft action. Events are never edited once appended.
type Event struct {
	Time    time.Time
	Kind    EventKind
	Payload string
	Index   int // turn counter after the event was applied
}

// Draft is the turn state machine for one room. It is not safe for
// concurrent use; the owning lobby serializes access.
type Draft struct {
	style   Style
	turn    int
	history []Event
	now     func() time.Time
}

func NewDraft(c *Catalog, styleID string) (*Draft, error) {
	st, err := c.Lookup(styleID)
	if err != nil {
		return nil, err
	}
	return &Draft{style: st, now: time.Now}, nil
}

func (d *Draft) StyleID() string { return d.style.ID }
func (d *Draft) Style() Style    { return d.style }
func (d *Draft) Turn() int       { return d.turn }

// Ended reports whether every slot of the turn order has been committed.
func (d *Draft) Ended() bool {
	return d.turn >= d.style.Len()
}

func (d *Draft) IsTurn(side Side) bool {
	step, done := d.currentStep()
	if done {
		return false
	}
	return step.Side == side
}

// Submit commits payload for side if it owns the current slot.
func (d *Draft) Submit(side Side, payload string) (Event, error) {
	if d.Ended() {
		return Event{}, ErrDraftEnded
	}
	if !d.IsTurn(side) {
		return Event{}, ErrNotYourTurn
	}

	d.turn++
	ev := Event{
		Time:    d.now(),
		Kind:    EvtUpdate,
		Payload: payload,
		Index:   d.turn,
	}
	d.history = append(d.history, ev)
	return ev, nil
}

// History returns a copy of the committed events in commit order.
func (d *Draft) History() []Event {
	out := make([]Event, len(d.history))
	copy(out, d.history)
	return out
}

func (d *Draft) currentStep() (TurnStep, bool) {
	if d.turn >= d.style.Len() {
		return TurnStep{}, true
	}
	return d.style.Order[d.turn], false
}
