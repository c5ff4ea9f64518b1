package subscription

import "time"

// Renew returns the subscription window granted by buying plan at now.
//
// The window extends from the later of the current end date and now, so
// renewing early keeps the unused time and renewing after expiry starts
// over. An account that is still active keeps its original start date.
func Renew(now time.Time, current *UserAccount, plan Plan) (start, end time.Time) {
	now = now.UTC()
	start, base := now, now

	if current != nil && current.SubscriptionEnd != nil && current.SubscriptionEnd.After(now) {
		base = current.SubscriptionEnd.UTC()
		if current.Status == UserActive && current.SubscriptionStart != nil {
			start = current.SubscriptionStart.UTC()
		}
	}
	return start, addMonths(base, plan.DurationMonths)
}

// addMonths adds n calendar months, clamping the day to the last day of the
// target month so Jan 31 + 1 month is the end of February.
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

func daysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}
