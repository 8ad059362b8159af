package models

import (
	"fmt"
	"strings"
)

// Mode is a learning mode selecting both the card pool and the scoring rules
type Mode string

const (
	ModeSequentialInterspersed Mode = "sequential_interspersed"
	ModeSequentialRandomNew    Mode = "sequential_random_new"
	ModeNewSequential          Mode = "new_sequential"
	ModeNewRandom              Mode = "new_random"
	ModeDueOnlyRandom          Mode = "due_only_random"
	ModeReviewAllDue           Mode = "review_all_due"
	ModeReviewHardest          Mode = "review_hardest"
	ModeCramSet                Mode = "cram_set"
	ModeCramAll                Mode = "cram_all"
)

// AllModes lists every mode in menu order.
var AllModes = []Mode{
	ModeSequentialInterspersed,
	ModeSequentialRandomNew,
	ModeNewSequential,
	ModeNewRandom,
	ModeDueOnlyRandom,
	ModeReviewAllDue,
	ModeReviewHardest,
	ModeCramSet,
	ModeCramAll,
}

// ModeFamily partitions modes by how they schedule cards
type ModeFamily string

const (
	FamilySRS     ModeFamily = "srs"
	FamilyNewOnly ModeFamily = "new_only"
	FamilyReview  ModeFamily = "review"
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	for _, known := range AllModes {
		if m == known {
			return true
		}
	}
	return false
}

// Family returns the mode family, or an empty family for unknown modes.
func (m Mode) Family() ModeFamily {
	switch m {
	case ModeSequentialInterspersed, ModeSequentialRandomNew:
		return FamilySRS
	case ModeNewSequential, ModeNewRandom:
		return FamilyNewOnly
	case ModeDueOnlyRandom, ModeReviewAllDue, ModeReviewHardest, ModeCramSet, ModeCramAll:
		return FamilyReview
	}
	return ""
}

// IsQuickReview reports whether answers in this mode skip scheduling bookkeeping.
func (m Mode) IsQuickReview() bool {
	return m == ModeReviewHardest || m == ModeCramSet || m == ModeCramAll
}

// NeedsSet reports whether the mode draws from the user's current set.
func (m Mode) NeedsSet() bool {
	switch m {
	case ModeSequentialInterspersed, ModeSequentialRandomNew, ModeDueOnlyRandom, ModeCramSet:
		return true
	}
	return false
}

// ParseMode parses user input into a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("unknown learning mode %q", s)
	}
	return m, nil
}

// Response is the user's answer to a shown card
type Response int

const (
	ResponseWrong    Response = -1
	ResponseHard     Response = 0
	ResponseCorrect  Response = 1
	ResponseContinue Response = 2 // first exposure of a new card
)

// Valid reports whether r is one of the four accepted answers.
func (r Response) Valid() bool {
	return r >= ResponseWrong && r <= ResponseContinue
}

// IsReview reports whether r counts as a review (everything except Continue).
func (r Response) IsReview() bool {
	return r == ResponseWrong || r == ResponseHard || r == ResponseCorrect
}

func (r Response) String() string {
	switch r {
	case ResponseWrong:
		return "wrong"
	case ResponseHard:
		return "hard"
	case ResponseCorrect:
		return "correct"
	case ResponseContinue:
		return "continue"
	}
	return fmt.Sprintf("response(%d)", int(r))
}
