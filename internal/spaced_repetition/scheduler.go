package spaced_repetition

import (
	"math"
	"time"
)

const (
	// minimumGapSeconds is the smallest distance between now and the next review
	minimumGapSeconds = 60
	// fallbackDelayMinutes is used when the interval arithmetic produces garbage
	fallbackDelayMinutes = 60
)

// Scheduler computes when a card should be reviewed next
type Scheduler struct {
	settings Settings
	now      func() time.Time
}

// NewScheduler creates a scheduler with the given settings
func NewScheduler(settings Settings) *Scheduler {
	return &Scheduler{
		settings: settings,
		now:      time.Now,
	}
}

// CalculateNextReviewTime returns the Unix timestamp of the next review.
//
// The interval is InitialIntervalHours for a zero streak and 2^(streak-1)*2 hours
// otherwise, capped at MaxIntervalDays. totalCorrect is accepted for statistics
// callers and does not affect the interval. A non-positive currentTimestamp means
// "now"; Unix time does not depend on the zone, so tzOffsetHours only documents
// whose "now" is meant.
func (s *Scheduler) CalculateNextReviewTime(streakCorrect, totalCorrect int, currentTimestamp int64, tzOffsetHours float64) int64 {
	if streakCorrect < 0 {
		streakCorrect = 0
	}
	if currentTimestamp <= 0 {
		currentTimestamp = s.now().Unix()
	}

	minutes := s.IntervalHours(streakCorrect) * 60
	if math.IsNaN(minutes) || math.IsInf(minutes, 0) {
		minutes = fallbackDelayMinutes
	}
	delay := math.Round(minutes * 60)

	if delay > float64(math.MaxInt64-currentTimestamp) {
		return math.MaxInt64
	}

	next := currentTimestamp + int64(delay)
	if next < currentTimestamp+minimumGapSeconds {
		next = currentTimestamp + minimumGapSeconds
	}
	return next
}

// IntervalHours returns the capped interval for a streak
func (s *Scheduler) IntervalHours(streak int) float64 {
	maxHours := float64(s.settings.MaxIntervalDays) * 24

	var base float64
	if streak <= 0 {
		base = s.settings.InitialIntervalHours
	} else {
		base = math.Pow(2, float64(streak-1)) * 2
	}

	// NaN falls through to the fallback delay in CalculateNextReviewTime
	if math.IsInf(base, 1) || base > maxHours {
		return maxHours
	}
	return base
}

// StartOfLocalDay returns the Unix timestamp of midnight of the day containing ts
// in a zone offsetHours away from UTC.
func StartOfLocalDay(ts int64, offsetHours float64) int64 {
	offset := int64(math.Round(offsetHours * 3600))
	local := ts + offset
	day := local - floorMod(local, 86400)
	return day - offset
}

func floorMod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
