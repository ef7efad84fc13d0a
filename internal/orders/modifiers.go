package orders

import (
	"encoding/json"
	"fmt"
)

// Modifier is a selected menu modifier. Only OneOf and Extras implement it;
// consumers switch over both and treat anything else as a bug.
type Modifier interface {
	modifierKind() string
}

// OneOf is a single choice out of a group, e.g. "Bread: sourdough".
type OneOf struct {
	Name   string `json:"name"`
	Choice string `json:"choice"`
	Price  int64  `json:"price"`
}

// Extras is a multi-select group, e.g. "Toppings: olives, onion".
type Extras struct {
	Name    string   `json:"name"`
	Choices []string `json:"choices"`
	Price   int64    `json:"price"`
}

func (OneOf) modifierKind() string  { return "oneOf" }
func (Extras) modifierKind() string { return "extras" }

func ModifierPrice(m Modifier) int64 {
	switch v := m.(type) {
	case OneOf:
		return v.Price
	case Extras:
		return v.Price * int64(len(v.Choices))
	default:
		panic(fmt.Sprintf("orders: unhandled modifier %T", m))
	}
}

// Describe renders a modifier for free-text POS notes.
func Describe(m Modifier) string {
	switch v := m.(type) {
	case OneOf:
		return v.Name + ": " + v.Choice
	case Extras:
		out := v.Name + ":"
		for i, c := range v.Choices {
			if i > 0 {
				out += ","
			}
			out += " " + c
		}
		return out
	default:
		panic(fmt.Sprintf("orders: unhandled modifier %T", m))
	}
}

type modifierWire struct {
	Type    string   `json:"type"`
	Name    string   `json:"name"`
	Choice  string   `json:"choice,omitempty"`
	Choices []string `json:"choices,omitempty"`
	Price   int64    `json:"price"`
}

func encodeModifier(m Modifier) (modifierWire, error) {
	switch v := m.(type) {
	case OneOf:
		return modifierWire{Type: v.modifierKind(), Name: v.Name, Choice: v.Choice, Price: v.Price}, nil
	case Extras:
		return modifierWire{Type: v.modifierKind(), Name: v.Name, Choices: v.Choices, Price: v.Price}, nil
	default:
		return modifierWire{}, fmt.Errorf("unhandled modifier %T", m)
	}
}

func decodeModifier(w modifierWire) (Modifier, error) {
	switch w.Type {
	case "oneOf":
		if w.Choice == "" {
			return nil, fmt.Errorf("modifier %q: oneOf without choice", w.Name)
		}
		return OneOf{Name: w.Name, Choice: w.Choice, Price: w.Price}, nil
	case "extras":
		return Extras{Name: w.Name, Choices: w.Choices, Price: w.Price}, nil
	default:
		return nil, fmt.Errorf("modifier %q: unknown type %q", w.Name, w.Type)
	}
}

type itemWire struct {
	ItemID    int64          `json:"item_id"`
	Name      string         `json:"name"`
	Quantity  int            `json:"quantity"`
	Price     int64          `json:"price"`
	Comment   string         `json:"comment,omitempty"`
	Modifiers []modifierWire `json:"modifiers,omitempty"`
}

func (it Item) MarshalJSON() ([]byte, error) {
	w := itemWire{ItemID: it.ItemID, Name: it.Name, Quantity: it.Quantity, Price: it.Price, Comment: it.Comment}
	for _, m := range it.Modifiers {
		mw, err := encodeModifier(m)
		if err != nil {
			return nil, err
		}
		w.Modifiers = append(w.Modifiers, mw)
	}
	return json.Marshal(w)
}

func (it *Item) UnmarshalJSON(b []byte) error {
	var w itemWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*it = Item{ItemID: w.ItemID, Name: w.Name, Quantity: w.Quantity, Price: w.Price, Comment: w.Comment}
	for _, mw := range w.Modifiers {
		m, err := decodeModifier(mw)
		if err != nil {
			return err
		}
		it.Modifiers = append(it.Modifiers, m)
	}
	return nil
}
