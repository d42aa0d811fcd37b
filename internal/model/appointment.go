package model

import (
	"encoding/json"
	"fmt"
)

// AnswerValue is the patient's response to a reminder.
type AnswerValue int

const (
	AnswerNone AnswerValue = iota
	AnswerYes
	AnswerNo
)

func (v AnswerValue) String() string {
	switch v {
	case AnswerYes:
		return "yes"
	case AnswerNo:
		return "no"
	default:
		return "none"
	}
}

// Wire returns the server encoding: 1 for yes, 0 for no, nil for none.
func (v AnswerValue) Wire() *int {
	var n int
	switch v {
	case AnswerYes:
		n = 1
	case AnswerNo:
		n = 0
	default:
		return nil
	}
	return &n
}

// ParseAnswerValue converts the persisted string form back to a value.
func ParseAnswerValue(s string) (AnswerValue, error) {
	switch s {
	case "yes":
		return AnswerYes, nil
	case "no":
		return AnswerNo, nil
	case "none", "":
		return AnswerNone, nil
	}
	return AnswerNone, fmt.Errorf("invalid answer value %q", s)
}

func (v AnswerValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAnswerValue(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Reminder tiers, earliest window first.
const (
	TierNone = 0
	Tier1    = 1
	Tier2    = 2
	Tier3    = 3
)

type Answer struct {
	Value      AnswerValue `json:"value"`
	AnsweredAt string      `json:"answered_at"`
	Tier       int         `json:"tier"`
	Sent       bool        `json:"sent"`
}

type Appointment struct {
	ID          int64    `json:"id"`
	ScheduledAt string   `json:"scheduled_at"`
	Cancelled   bool     `json:"cancelled"`
	Answers     []Answer `json:"answers"`

	// Removed marks a record the user has dismissed but which still holds
	// answers the server has not acknowledged.
	Removed bool `json:"removed,omitempty"`
}

// Answer returns the answer recorded for tier, if any.
func (a *Appointment) Answer(tier int) (Answer, bool) {
	for _, ans := range a.Answers {
		if ans.Tier == tier {
			return ans, true
		}
	}
	return Answer{}, false
}

// HasUnsent reports whether any answer is still waiting for the server.
func (a *Appointment) HasUnsent() bool {
	for _, ans := range a.Answers {
		if !ans.Sent {
			return true
		}
	}
	return false
}

// HighestTier returns the highest answered tier, or TierNone.
func (a *Appointment) HighestTier() int {
	highest := TierNone
	for _, ans := range a.Answers {
		if ans.Tier > highest {
			highest = ans.Tier
		}
	}
	return highest
}

// Clone returns a deep copy so callers cannot mutate store-owned slices.
func (a Appointment) Clone() Appointment {
	c := a
	if a.Answers != nil {
		c.Answers = make([]Answer, len(a.Answers))
		copy(c.Answers, a.Answers)
	}
	return c
}
