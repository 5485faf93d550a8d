package timing

import (
	"strconv"
	"strings"
	"time"
)

const day = 24 * time.Hour

var units = []struct {
	size time.Duration
	name string
}{
	{time.Hour, "h"},
	{time.Minute, "m"},
	{time.Second, "s"},
	{time.Millisecond, "ms"},
	{time.Microsecond, "us"},
	{time.Nanosecond, "ns"},
}

// FormatDuration renders d as space separated non-zero units, largest first,
// for example "123ms", "1s 200ms" or "2days 3h 4us". Zero renders as "0s".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	if d == 0 {
		return "0s"
	}

	var parts []string
	if days := d / day; days > 0 {
		name := "days"
		if days == 1 {
			name = "day"
		}
		parts = append(parts, strconv.FormatInt(int64(days), 10)+name)
		d -= days * day
	}
	for _, u := range units {
		if n := d / u.size; n > 0 {
			parts = append(parts, strconv.FormatInt(int64(n), 10)+u.name)
			d -= n * u.size
		}
	}
	return strings.Join(parts, " ")
}
