package variables

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	dateFieldRe = regexp.MustCompile(`%(date|time|hour|hour_12|minute|second|am_pm|day_of_month|month|month_name|year|day_of_week|week_of_year|day_of_year)%`)
	countdownRe = regexp.MustCompile(`%countdown_(days_)?(-?\d+)%`)
)

// DateTimePass substitutes calendar and clock fields computed in the context's
// timezone, plus %countdown_<unix>% and %countdown_days_<unix>%.
func DateTimePass(s string, c *Context) string {
	if !strings.Contains(s, "%") {
		return s
	}
	now := c.now().In(c.loc())
	s = dateFieldRe.ReplaceAllStringFunc(s, func(tok string) string {
		return dateField(dateFieldRe.FindStringSubmatch(tok)[1], now)
	})
	return countdownRe.ReplaceAllStringFunc(s, func(tok string) string {
		m := countdownRe.FindStringSubmatch(tok)
		ts, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			return tok
		}
		d := time.Unix(ts, 0).Sub(now)
		if m[1] != "" {
			return strconv.Itoa(CountdownDays(d))
		}
		return FormatCountdown(d)
	})
}

func dateField(name string, now time.Time) string {
	switch name {
	case "date":
		return now.Format("02/01/2006")
	case "time":
		return now.Format("15:04:05")
	case "hour":
		return now.Format("15")
	case "hour_12":
		return now.Format("3")
	case "minute":
		return now.Format("04")
	case "second":
		return now.Format("05")
	case "am_pm":
		return now.Format("PM")
	case "day_of_month":
		return now.Format("02")
	case "month":
		return now.Format("01")
	case "month_name":
		return now.Format("January")
	case "year":
		return now.Format("2006")
	case "day_of_week":
		return now.Format("Monday")
	case "week_of_year":
		_, week := now.ISOWeek()
		return strconv.Itoa(week)
	case "day_of_year":
		return strconv.Itoa(now.YearDay())
	}
	return ""
}

// FormatCountdown renders a remaining duration as "Xd Yh Zm Ws". Elapsed targets
// render as zero.
func FormatCountdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	days := total / 86400
	hours := (total % 86400) / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
}

// CountdownDays returns the whole days left in d, never negative.
func CountdownDays(d time.Duration) int {
	if d < 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}
