package engine

import (
	"errors"
	"fmt"
)

var ErrUnknownStyle = errors.New("unknown draft style")

type Side string

const (
	SideA Side = "1"
	SideB Side = "2"
)

type Action string

const (
	ActionBan  Action = "ban"
	ActionPick Action = "pick"
)

// TurnStep is one slot of a style's turn order. Index is 1-based.
type TurnStep struct {
	Index  int    `json:"index"`
	Side   Side   `json:"side"`
	Action Action `json:"type"`
}

type Style struct {
	ID    string     `json:"id"`
	Order []TurnStep `json:"order"`
}

func (s Style) Len() int { return len(s.Order) }

// Catalog maps style ids to their turn order. It is built once and never
// mutated afterwards.
type Catalog struct {
	styles map[string]Style
}

func NewCatalog(styles ...Style) (*Catalog, error) {
	c := &Catalog{styles: make(map[string]Style, len(styles))}
	for _, st := range styles {
		if st.ID == "" {
			return nil, errors.New("style with empty id")
		}
		if len(st.Order) == 0 {
			return nil, fmt.Errorf("style %q has no turns", st.ID)
		}
		if _, dup := c.styles[st.ID]; dup {
			return nil, fmt.Errorf("style %q defined twice", st.ID)
		}
		order := make([]TurnStep, len(st.Order))
		copy(order, st.Order)
		c.styles[st.ID] = Style{ID: st.ID, Order: order}
	}
	return c, nil
}

// DefaultCatalog holds the styles shipped with the server.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(StandardStyle)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) Lookup(id string) (Style, error) {
	st, ok := c.styles[id]
	if !ok {
		return Style{}, fmt.Errorf("%w: %q", ErrUnknownStyle, id)
	}
	return st, nil
}

var StandardStyle = Style{
	ID: "1",
	Order: []TurnStep{
		// Bans
		{Index: 1, Side: SideA, Action: ActionBan},
		{Index: 2, Side: SideB, Action: ActionBan},
		{Index: 3, Side: SideB, Action: ActionBan},
		{Index: 4, Side: SideA, Action: ActionBan},
		// Picks
		{Index: 5, Side: SideA, Action: ActionPick},
		{Index: 6, Side: SideB, Action: ActionPick},
	},
}
