package model

import "fmt"

// Option is one multiple-choice answer. The zero value means "not answered".
type Option string

const (
	OptionNone Option = ""
	OptionA    Option = "A"
	OptionB    Option = "B"
	OptionC    Option = "C"
	OptionD    Option = "D"
)

// Options lists the selectable options in display order.
var Options = []Option{OptionA, OptionB, OptionC, OptionD}

// Valid reports whether o is one of A, B, C, D.
func (o Option) Valid() bool {
	switch o {
	case OptionA, OptionB, OptionC, OptionD:
		return true
	}
	return false
}

// Answered reports whether a selection has been made.
func (o Option) Answered() bool {
	return o != OptionNone
}

// AnswerKey is the fixed correct-option sequence used for scoring.
type AnswerKey []Option

// ParseAnswerKey converts raw option letters into an AnswerKey.
func ParseAnswerKey(raw []string) (AnswerKey, error) {
	key := make(AnswerKey, len(raw))
	for i, r := range raw {
		o := Option(r)
		if !o.Valid() {
			return nil, fmt.Errorf("answer key entry %d: invalid option %q", i+1, r)
		}
		key[i] = o
	}
	return key, nil
}
