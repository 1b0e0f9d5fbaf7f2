// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"
)

// BowlingStyle is the bowler's delivery type.
type BowlingStyle string

// Bowling styles understood by the backend.
const (
	StyleFast    BowlingStyle = "fast"
	StyleMedium  BowlingStyle = "medium"
	StyleSpin    BowlingStyle = "spin"
	StyleUnknown BowlingStyle = "unknown"
)

// BowlingArm is the bowling hand.
type BowlingArm string

// Bowling arms.
const (
	ArmRight   BowlingArm = "right"
	ArmLeft    BowlingArm = "left"
	ArmUnknown BowlingArm = "unknown"
)

// ParseBowlingStyle maps free-form input onto a BowlingStyle.
func ParseBowlingStyle(s string) BowlingStyle {
	switch key(s) {
	case "fast", "pace", "express", "fast_bowler", "quick":
		return StyleFast
	case "medium", "medium_fast", "medium_pace", "seam", "seamer", "swing":
		return StyleMedium
	case "spin", "spinner", "off_spin", "offspin", "leg_spin", "legspin", "left_arm_orthodox", "wrist_spin", "finger_spin":
		return StyleSpin
	default:
		return StyleUnknown
	}
}

// ParseBowlingArm maps free-form input onto a BowlingArm.
func ParseBowlingArm(s string) BowlingArm {
	switch key(s) {
	case "right", "r", "right_arm", "rh", "right_handed":
		return ArmRight
	case "left", "l", "left_arm", "lh", "left_handed":
		return ArmLeft
	default:
		return ArmUnknown
	}
}

func key(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("-", "_", " ", "_").Replace(s)
}

// User is the profile shown to the bowler.
type User struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Email        string       `json:"email,omitempty"`
	IsGuest      bool         `json:"is_guest"`
	BowlingStyle BowlingStyle `json:"bowling_style"`
	BowlingArm   BowlingArm   `json:"bowling_arm"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Session is the persisted authentication state.
type Session struct {
	Token   string `json:"-"`
	GuestID string `json:"guest_id,omitempty"`
	User    *User  `json:"user,omitempty"`
}

// Authenticated reports whether a registered user is signed in.
func (s Session) Authenticated() bool {
	return s.Token != "" && s.User != nil
}

// Valid enforces that a token never exists without a user.
func (s Session) Valid() bool {
	return s.Token == "" || s.User != nil
}
