package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/solarplanner/solarplanner/pkg/log"
	"github.com/solarplanner/solarplanner/pkg/pattern"
)

// HolidaySource reports whether a date is a holiday.
type HolidaySource interface {
	IsHoliday(ctx context.Context, date time.Time) (bool, error)
}

// Context resolves the calendar facts attached to a candidate slot: whether
// the date is a holiday and whether the hour falls inside a device's habitual
// window. It holds no state beyond the loaded holiday source.
type Context struct {
	holidays HolidaySource
}

// Configured sets up the holiday source based on flags.
func Configured() *Context {
	c := &Context{}
	provider := lflag.String("holiday-provider", "static", "Holiday source to use (available: static, orthocal)")
	st := configuredStatic()
	oc := configuredOrthocal()

	lflag.Do(func() {
		switch *provider {
		case "static":
			c.holidays = st
		case "orthocal":
			c.holidays = oc
		default:
			panic(fmt.Sprintf("unknown holiday provider: %s", *provider))
		}
	})

	return c
}

// NewContext creates a Context with an explicit source, for tests.
func NewContext(src HolidaySource) *Context {
	return &Context{holidays: src}
}

// IsHoliday reports whether the date is a holiday. A source failure is
// logged and treated as "not a holiday"; the flag is explanatory, not worth
// failing a request over.
func (c *Context) IsHoliday(ctx context.Context, date time.Time) bool {
	if c.holidays == nil {
		return false
	}
	holiday, err := c.holidays.IsHoliday(ctx, date)
	if err != nil {
		log.Ctx(ctx).WarnContext(
			ctx,
			"holiday lookup failed",
			slog.String("date", date.Format("2006-01-02")),
			slog.Any("error", err),
		)
		return false
	}
	return holiday
}

// IsHabitSlot reports whether (weekday, hour) of the candidate falls inside
// the device's derived habit window for that weekday.
func IsHabitSlot(date time.Time, hour int, set *pattern.Set) bool {
	if set == nil {
		return false
	}
	w, ok := set.HabitWindow(date.Weekday())
	if !ok {
		return false
	}
	return w.Contains(hour)
}

// StaticSource answers from a fixed set of dates loaded at startup.
type StaticSource struct {
	dates map[string]bool
}

// configuredStatic sets up the static holiday list flag. Dates are
// "2006-01-02" strings.
func configuredStatic() *StaticSource {
	s := &StaticSource{dates: map[string]bool{}}
	var dates []string
	lflag.JSON(&dates, "holiday-dates", dates, "JSON list of holiday dates (YYYY-MM-DD)")

	lflag.Do(func() {
		for _, d := range dates {
			s.dates[d] = true
		}
	})

	return s
}

// NewStaticSource creates a source from explicit dates, for tests.
func NewStaticSource(dates ...string) *StaticSource {
	s := &StaticSource{dates: make(map[string]bool, len(dates))}
	for _, d := range dates {
		s.dates[d] = true
	}
	return s
}

// IsHoliday implements HolidaySource.
func (s *StaticSource) IsHoliday(_ context.Context, date time.Time) (bool, error) {
	return s.dates[date.Format("2006-01-02")], nil
}

var (
	_ HolidaySource = (*StaticSource)(nil)
	_ HolidaySource = (*Orthocal)(nil)
)
