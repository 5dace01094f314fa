package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// ScreenKind names the three mutually exclusive exam screens.
type ScreenKind string

const (
	ScreenLogin      ScreenKind = "LOGIN"
	ScreenInProgress ScreenKind = "IN_PROGRESS"
	ScreenSubmitted  ScreenKind = "SUBMITTED"
)

// Screen is the per-session state. Exactly one of the concrete screens below
// is held at a time, so "started and submitted" cannot be expressed.
type Screen interface {
	Kind() ScreenKind
}

// LoginScreen is the initial state of every session.
type LoginScreen struct{}

// InProgressScreen holds the candidate while the countdown runs.
type InProgressScreen struct {
	Candidate Candidate `json:"candidate"`
	StartTime time.Time `json:"start_time"`
	Answers   []Option  `json:"answers"`
	// NotifiedBoundary is the last minute boundary (in seconds remaining) for
	// which the urgent notice was emitted. Zero means none yet.
	NotifiedBoundary int `json:"notified_boundary,omitempty"`
}

// SubmittedScreen holds the final, immutable report.
type SubmittedScreen struct {
	Report Report `json:"report"`
}

func (LoginScreen) Kind() ScreenKind       { return ScreenLogin }
func (*InProgressScreen) Kind() ScreenKind { return ScreenInProgress }
func (*SubmittedScreen) Kind() ScreenKind  { return ScreenSubmitted }

// Candidate is the exam-taker identity for one attempt.
type Candidate struct {
	Name string `json:"name"`
	Roll string `json:"roll"`
}

// screenEnvelope is the stored form of a Screen.
type screenEnvelope struct {
	Kind       ScreenKind        `json:"kind"`
	InProgress *InProgressScreen `json:"in_progress,omitempty"`
	Submitted  *SubmittedScreen  `json:"submitted,omitempty"`
}

// EncodeScreen serializes a screen for a session store.
func EncodeScreen(s Screen) ([]byte, error) {
	env := screenEnvelope{Kind: ScreenLogin}
	switch v := s.(type) {
	case nil, LoginScreen, *LoginScreen:
	case *InProgressScreen:
		env.Kind = ScreenInProgress
		env.InProgress = v
	case *SubmittedScreen:
		env.Kind = ScreenSubmitted
		env.Submitted = v
	default:
		return nil, fmt.Errorf("encode screen: unsupported type %T", s)
	}
	return json.Marshal(env)
}

// DecodeScreen is the inverse of EncodeScreen.
func DecodeScreen(raw []byte) (Screen, error) {
	var env screenEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode screen: %w", err)
	}
	switch env.Kind {
	case ScreenLogin, "":
		return LoginScreen{}, nil
	case ScreenInProgress:
		if env.InProgress == nil {
			return nil, fmt.Errorf("decode screen: %s without payload", env.Kind)
		}
		return env.InProgress, nil
	case ScreenSubmitted:
		if env.Submitted == nil {
			return nil, fmt.Errorf("decode screen: %s without payload", env.Kind)
		}
		return env.Submitted, nil
	default:
		return nil, fmt.Errorf("decode screen: unknown kind %q", env.Kind)
	}
}
