package domain

// Member is one account holder in a household.
type Member struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
	PIN    string `json:"pin,omitempty"`

	CreatedAt int64 `json:"created_at"`

	// LastInterestDate is the settlement watermark: the instant (ms) up to
	// which interest has been credited. It never moves backwards.
	LastInterestDate int64 `json:"last_interest_date"`
}

// Avatars lists the avatar references a member may use.
var Avatars = []string{"baby", "cat", "dog", "rabbit", "fish", "bird", "smile"}

// ValidAvatar reports whether ref is a known avatar.
func ValidAvatar(ref string) bool {
	for _, a := range Avatars {
		if a == ref {
			return true
		}
	}
	return false
}

// ValidatePIN checks that pin is exactly four ASCII digits.
func ValidatePIN(pin string) error {
	if len(pin) != 4 {
		return NewValidationError("pin", "must be 4 digits")
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return NewValidationError("pin", "must contain digits only")
		}
	}
	return nil
}
