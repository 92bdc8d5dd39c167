package weather

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Snapshot is the normalized current-weather reading for one city.
type Snapshot struct {
	City        string
	Country     string
	Condition   Condition
	Description string
	Temperature float64
	FeelsLike   float64
	WindSpeed   float64
	Humidity    int
	Pressure    int
	Units       string
	// UTCOffset is the provider's zone offset in seconds.
	UTCOffset int
	// LocalTime is the observation instant rendered in the city's zone.
	LocalTime time.Time
	Sunrise   *time.Time
	Sunset    *time.Time
}

type unitLabels struct {
	temp string
	wind string
}

func labelsFor(units string) unitLabels {
	switch units {
	case "imperial":
		return unitLabels{temp: "°F", wind: "mph"}
	case "standard":
		return unitLabels{temp: "K", wind: "m/s"}
	}
	return unitLabels{temp: "°C", wind: "m/s"}
}

// Format renders the reply text for a successful lookup.
func Format(s *Snapshot) string {
	if s == nil {
		return ""
	}
	u := labelsFor(s.Units)
	place := s.City
	if s.Country != "" {
		place += ", " + s.Country
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s Weather in %s\n\n", s.Condition.Emoji(), place)
	fmt.Fprintf(&b, "🌡 Temperature: %.1f%s\n", s.Temperature, u.temp)
	fmt.Fprintf(&b, "🤔 Feels like: %.1f%s\n", s.FeelsLike, u.temp)
	fmt.Fprintf(&b, "💨 Wind: %.1f %s\n", s.WindSpeed, u.wind)
	fmt.Fprintf(&b, "💧 Humidity: %d%%\n", s.Humidity)
	fmt.Fprintf(&b, "📊 Pressure: %d hPa\n", s.Pressure)
	fmt.Fprintf(&b, "📝 Description: %s\n", capitalize(s.Description))
	fmt.Fprintf(&b, "📅 Date: %s\n", s.LocalTime.Format("02.01.2006"))
	fmt.Fprintf(&b, "🕐 Local time: %s\n", s.LocalTime.Format("15:04:05"))
	fmt.Fprintf(&b, "🌅 Sunrise: %s\n", clock(s.Sunrise))
	fmt.Fprintf(&b, "🌇 Sunset: %s\n", clock(s.Sunset))
	fmt.Fprintf(&b, "🌍 Time zone: %s", ZoneLabel(s.UTCOffset))
	return b.String()
}

// ZoneLabel renders an offset in seconds as UTC+3, UTC-3:30 or UTC+0.
func ZoneLabel(offset int) string {
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	h := offset / 3600
	m := (offset % 3600) / 60
	if m == 0 {
		return fmt.Sprintf("UTC%s%d", sign, h)
	}
	return fmt.Sprintf("UTC%s%d:%02d", sign, h, m)
}

func clock(t *time.Time) string {
	if t == nil {
		return "unknown"
	}
	return t.Format("15:04")
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
