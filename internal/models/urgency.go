package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// UrgencyLevel is the ordered severity reported by the analyzer.
type UrgencyLevel int

const (
	UrgencyUnknown UrgencyLevel = iota
	UrgencyLow
	UrgencyModerate
	UrgencyHigh
	UrgencyCrisis
)

var urgencyNames = map[UrgencyLevel]string{
	UrgencyLow:      "LOW",
	UrgencyModerate: "MODERATE",
	UrgencyHigh:     "HIGH",
	UrgencyCrisis:   "CRISIS",
}

// ParseUrgencyLevel parses LOW, MODERATE, HIGH or CRISIS, ignoring case and surrounding space.
func ParseUrgencyLevel(s string) (UrgencyLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return UrgencyLow, nil
	case "MODERATE":
		return UrgencyModerate, nil
	case "HIGH":
		return UrgencyHigh, nil
	case "CRISIS":
		return UrgencyCrisis, nil
	}
	return UrgencyUnknown, fmt.Errorf("unknown urgency level %q", s)
}

func (u UrgencyLevel) String() string {
	if name, ok := urgencyNames[u]; ok {
		return name
	}
	return "UNKNOWN"
}

// Valid reports whether u is one of the four defined levels.
func (u UrgencyLevel) Valid() bool {
	return u >= UrgencyLow && u <= UrgencyCrisis
}

// AtLeast reports whether u is as severe as other or more.
func (u UrgencyLevel) AtLeast(other UrgencyLevel) bool {
	return u >= other
}

func (u UrgencyLevel) MarshalJSON() ([]byte, error) {
	if !u.Valid() {
		return nil, fmt.Errorf("cannot marshal urgency level %d", int(u))
	}
	return json.Marshal(u.String())
}

func (u *UrgencyLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("urgency level must be a string: %w", err)
	}
	level, err := ParseUrgencyLevel(s)
	if err != nil {
		return err
	}
	*u = level
	return nil
}
