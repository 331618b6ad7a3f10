/**
 * @description
 * Calendar-month period used by objectives, activity stats and commissions.
 */
package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPeriod is returned when a year/month pair does not name a calendar month.
var ErrInvalidPeriod = errors.New("invalid period")

// PaymentDay is the day of the following month on which commissions are paid.
const PaymentDay = 5

// Period identifies one calendar month. It is an immutable value.
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// NewPeriod validates and builds a Period.
func NewPeriod(year, month int) (Period, error) {
	if month < 1 || month > 12 || year < 1970 || year > 9999 {
		return Period{}, fmt.Errorf("%w: %04d-%02d", ErrInvalidPeriod, year, month)
	}
	return Period{Year: year, Month: month}, nil
}

// ParsePeriod parses the YYYY-MM form.
func ParsePeriod(raw string) (Period, error) {
	t, err := time.Parse("2006-01", raw)
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, raw)
	}
	return Period{Year: t.Year(), Month: int(t.Month())}, nil
}

// PeriodOf returns the period containing t, evaluated in t's location.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: int(t.Month())}
}

// Start is day 1 at 00:00 in loc.
func (p Period) Start(loc *time.Location) time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, loc)
}

// End is the last day of the month at 23:59:59 in loc.
func (p Period) End(loc *time.Location) time.Time {
	return p.Start(loc).AddDate(0, 1, 0).Add(-time.Second)
}

// Next returns the following calendar month.
func (p Period) Next() Period {
	n := p.Start(time.UTC).AddDate(0, 1, 0)
	return Period{Year: n.Year(), Month: int(n.Month())}
}

// Previous returns the preceding calendar month.
func (p Period) Previous() Period {
	prev := p.Start(time.UTC).AddDate(0, -1, 0)
	return Period{Year: prev.Year(), Month: int(prev.Month())}
}

// PaymentDate is day 5 of the month immediately following the period. No business-day
// or holiday adjustment is applied.
func (p Period) PaymentDate(loc *time.Location) time.Time {
	next := p.Next()
	return time.Date(next.Year, time.Month(next.Month), PaymentDay, 0, 0, 0, 0, loc)
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}
