// Package contracts infers recurring-payment contracts from a bank's transactions
// and keeps their amount history consistent as transactions are added, removed,
// merged or go quiet.
//
// Functions ending in a store argument run against whatever repository.Store they
// are given; callers wanting atomicity pass the tx store handed out by InTx.
// Service wraps every operation in its own storage transaction.
package contracts

import (
	"time"

	"cloud.google.com/go/civil"
)

// DayTolerance is how many days apart two dates in the same calendar month may be
// and still count as the same payment slot.
const DayTolerance = 5

// MonthsBetween returns the calendar month distance from d1 to d2.
// A positive distance is returned as is. Dates in the same month are 0 months apart
// when they are at most DayTolerance days apart; otherwise, and whenever d2 lies in an
// earlier month than d1, the dates have no cadence and ok is false.
func MonthsBetween(d1, d2 time.Time) (months int, ok bool) {
	a, b := civil.DateOf(d1), civil.DateOf(d2)

	total := (b.Year-a.Year)*12 + int(b.Month) - int(a.Month)
	days := b.DaysSince(a)
	if days < 0 {
		days = -days
	}

	switch {
	case total > 0:
		return total, true
	case total == 0 && days <= DayTolerance:
		return 0, true
	}
	return 0, false
}

// daysBetween returns the signed number of calendar days from d1 to d2.
func daysBetween(d1, d2 time.Time) int {
	return civil.DateOf(d2).DaysSince(civil.DateOf(d1))
}

// addDays returns d moved by n calendar days.
func addDays(d time.Time, n int) time.Time {
	return civil.DateOf(d).AddDays(n).In(time.UTC)
}
