package domain

// Urgency is a closed risk tier controlling the slippage allowance of a trade.
type Urgency int

const (
	UrgencyUnspecified Urgency = iota
	UrgencyLow
	UrgencyMedium
	UrgencyHigh
	UrgencyEmergency
)

const (
	urgencyStringLow       = "LOW"
	urgencyStringMedium    = "MEDIUM"
	urgencyStringHigh      = "HIGH"
	urgencyStringEmergency = "EMERGENCY"
)

// UrgencyFromString maps a tier name to an Urgency. Unknown or empty input
// yields UrgencyUnspecified so callers fall back to the default slippage tier
// instead of failing.
func UrgencyFromString(s string) Urgency {
	switch s {
	case urgencyStringLow:
		return UrgencyLow
	case urgencyStringMedium:
		return UrgencyMedium
	case urgencyStringHigh:
		return UrgencyHigh
	case urgencyStringEmergency:
		return UrgencyEmergency
	default:
		return UrgencyUnspecified
	}
}

// String returns the tier name.
func (u Urgency) String() string {
	switch u {
	case UrgencyLow:
		return urgencyStringLow
	case UrgencyMedium:
		return urgencyStringMedium
	case UrgencyHigh:
		return urgencyStringHigh
	case UrgencyEmergency:
		return urgencyStringEmergency
	default:
		return "UNSPECIFIED"
	}
}

// MarshalJSON encodes the urgency as its tier name.
func (u Urgency) MarshalJSON() ([]byte, error) {
	return []byte(`"` + u.String() + `"`), nil
}

// UnmarshalJSON decodes the urgency, mapping unknown tiers to UrgencyUnspecified.
func (u *Urgency) UnmarshalJSON(data []byte) error {
	if len(data) >= 2 && data[0] == '"' && data[len(data)-1] == '"' {
		*u = UrgencyFromString(string(data[1 : len(data)-1]))
		return nil
	}
	*u = UrgencyUnspecified
	return nil
}
