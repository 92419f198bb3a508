package domain

import "fmt"

// Action represents the direction of a corrective swap. The zero value is
// deliberately not a tradable direction so an unset action fails validation.
type Action int

const (
	ActionUnspecified Action = iota
	ActionBuy
	ActionSell
)

// action string constants to avoid magic strings
const (
	actionStringBuy  = "BUY"
	actionStringSell = "SELL"
)

// ActionFromString parses an action string. Only BUY and SELL are accepted.
func ActionFromString(s string) (Action, error) {
	switch s {
	case actionStringBuy:
		return ActionBuy, nil
	case actionStringSell:
		return ActionSell, nil
	}
	return 0, fmt.Errorf("unknown action: %q", s)
}

// String returns the string representation of the action.
func (a Action) String() string {
	switch a {
	case ActionBuy:
		return actionStringBuy
	case ActionSell:
		return actionStringSell
	default:
		return "UNSPECIFIED"
	}
}

// Valid reports whether the action is one of the two known values.
func (a Action) Valid() bool {
	return a == ActionBuy || a == ActionSell
}

// MarshalJSON encodes the action as its string form.
func (a Action) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON decodes the action from its string form.
func (a *Action) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid action value: %s", string(data))
	}
	parsed, err := ActionFromString(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
