// Package timeslot holds the pure time arithmetic for hour-of-day booking
// slots: day predicates relative to "now" and open-slot computation for a
// coach's working window. Nothing here touches storage or the clock itself;
// callers pass "now" in so the rules stay testable.
package timeslot

import "time"

// DateOf truncates t to midnight UTC, the canonical form for session dates.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func SameDay(a, b time.Time) bool {
	return DateOf(a).Equal(DateOf(b))
}

// IsTomorrow reports whether date is exactly one calendar day after now.
// This is the only day on which a session may be cancelled.
func IsTomorrow(now, date time.Time) bool {
	return DateOf(date).Equal(DateOf(now).AddDate(0, 0, 1))
}

// Elapsed reports whether the given date+slot lies strictly in the past:
// the date is before today, or it is today and the slot's hour has fully
// passed (current hour >= slot+1).
func Elapsed(now, date time.Time, slot int) bool {
	today := DateOf(now)
	day := DateOf(date)
	if day.Before(today) {
		return true
	}
	if day.After(today) {
		return false
	}
	return now.UTC().Hour() >= slot+1
}

// InWindow reports whether slot is a bookable hour within the working
// window, i.e. slot ∈ [workStart, workEnd-1].
func InWindow(workStart, workEnd, slot int) bool {
	return slot >= workStart && slot < workEnd
}

// Available returns the open slots of the window after removing held ones,
// in ascending order. A malformed window (workStart >= workEnd) yields an
// empty result rather than an error.
func Available(workStart, workEnd int, held []int) []int {
	slots := make([]int, 0)
	if workStart >= workEnd {
		return slots
	}

	taken := make(map[int]struct{}, len(held))
	for _, slot := range held {
		taken[slot] = struct{}{}
	}

	for slot := workStart; slot < workEnd; slot++ {
		if _, ok := taken[slot]; ok {
			continue
		}
		slots = append(slots, slot)
	}
	return slots
}
