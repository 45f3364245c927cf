// Package schedule 计算客户评审会议的重复时间
package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidPattern = errors.New("invalid recurrence pattern")

const (
	MaxOccurrences     = 52
	DefaultOccurrences = 4
	meetingHour        = 10
	meetingDuration    = time.Hour
)

type Frequency string

const (
	Daily    Frequency = "daily"
	Weekdays Frequency = "weekdays"
	Weekly   Frequency = "weekly"
	Biweekly Frequency = "biweekly"
	Monthly  Frequency = "monthly"
)

// Pattern 解析后的重复规则
type Pattern struct {
	Frequency  Frequency
	Weekday    time.Weekday // weekly / biweekly
	DayOfMonth int          // monthly，超过当月天数时取月末
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// ParsePattern 支持 "daily"、"weekdays"、"weekly <weekday>"、"biweekly <weekday>"、"monthly <day>"
func ParsePattern(s string) (Pattern, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
	if len(fields) == 0 {
		return Pattern{}, fmt.Errorf("%w: empty", ErrInvalidPattern)
	}

	freq := Frequency(fields[0])
	switch freq {
	case Daily, Weekdays:
		if len(fields) != 1 {
			return Pattern{}, fmt.Errorf("%w: %q takes no argument", ErrInvalidPattern, freq)
		}
		return Pattern{Frequency: freq}, nil
	case Weekly, Biweekly:
		if len(fields) != 2 {
			return Pattern{}, fmt.Errorf("%w: %q needs a weekday", ErrInvalidPattern, freq)
		}
		wd, ok := weekdayNames[fields[1]]
		if !ok {
			return Pattern{}, fmt.Errorf("%w: unknown weekday %q", ErrInvalidPattern, fields[1])
		}
		return Pattern{Frequency: freq, Weekday: wd}, nil
	case Monthly:
		if len(fields) != 2 {
			return Pattern{}, fmt.Errorf("%w: monthly needs a day of month", ErrInvalidPattern)
		}
		day, err := strconv.Atoi(fields[1])
		if err != nil || day < 1 || day > 31 {
			return Pattern{}, fmt.Errorf("%w: day of month must be 1-31", ErrInvalidPattern)
		}
		return Pattern{Frequency: freq, DayOfMonth: day}, nil
	}
	return Pattern{}, fmt.Errorf("%w: unknown frequency %q", ErrInvalidPattern, fields[0])
}

func (p Pattern) String() string {
	switch p.Frequency {
	case Weekly, Biweekly:
		return fmt.Sprintf("%s %s", p.Frequency, strings.ToLower(p.Weekday.String()))
	case Monthly:
		return fmt.Sprintf("%s %d", p.Frequency, p.DayOfMonth)
	}
	return string(p.Frequency)
}

func slot(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), meetingHour, 0, 0, 0, t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// NextOccurrences 返回 from 之后（不含）的 count 个会议时间，均为当天 10:00
func (p Pattern) NextOccurrences(from time.Time, count int) []time.Time {
	if count <= 0 {
		return nil
	}
	if count > MaxOccurrences {
		count = MaxOccurrences
	}
	out := make([]time.Time, 0, count)

	if p.Frequency == Monthly {
		year, month := from.Year(), from.Month()
		for len(out) < count {
			day := p.DayOfMonth
			if n := daysIn(year, month, from.Location()); day > n {
				day = n
			}
			t := time.Date(year, month, day, meetingHour, 0, 0, 0, from.Location())
			if t.After(from) {
				out = append(out, t)
			}
			month++
			if month > time.December {
				month = time.January
				year++
			}
		}
		return out
	}

	t := slot(from)
	if !t.After(from) {
		t = t.AddDate(0, 0, 1)
	}
	for len(out) < count {
		switch p.Frequency {
		case Daily:
			out = append(out, t)
		case Weekdays:
			if wd := t.Weekday(); wd != time.Saturday && wd != time.Sunday {
				out = append(out, t)
			}
		case Weekly, Biweekly:
			if t.Weekday() == p.Weekday {
				out = append(out, t)
				if p.Frequency == Biweekly {
					t = t.AddDate(0, 0, 14)
				} else {
					t = t.AddDate(0, 0, 7)
				}
				continue
			}
		default:
			return out
		}
		t = t.AddDate(0, 0, 1)
	}
	return out
}

// Meeting 一次客户评审会议
type Meeting struct {
	ID       string    `json:"id"`
	OrderID  int       `json:"order_id"`
	Title    string    `json:"title"`
	Pattern  string    `json:"pattern"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

// PlanMeetings 按规则为订单生成接下来的评审会议；count <= 0 时使用默认数量
func PlanMeetings(orderID int, title string, pattern string, from time.Time, count int) ([]Meeting, error) {
	p, err := ParsePattern(pattern)
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		count = DefaultOccurrences
	}
	if title == "" {
		title = fmt.Sprintf("Order #%d client review", orderID)
	}

	times := p.NextOccurrences(from, count)
	meetings := make([]Meeting, 0, len(times))
	for _, t := range times {
		meetings = append(meetings, Meeting{
			ID:       uuid.NewString(),
			OrderID:  orderID,
			Title:    title,
			Pattern:  p.String(),
			StartsAt: t,
			EndsAt:   t.Add(meetingDuration),
		})
	}
	return meetings, nil
}
