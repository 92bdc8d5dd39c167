package weather

import "strings"

// Condition groups provider condition names into display categories.
type Condition string

const (
	ConditionClear        Condition = "clear"
	ConditionClouds       Condition = "clouds"
	ConditionRain         Condition = "rain"
	ConditionDrizzle      Condition = "drizzle"
	ConditionThunderstorm Condition = "thunderstorm"
	ConditionSnow         Condition = "snow"
	ConditionMist         Condition = "mist"
	ConditionOther        Condition = "other"
)

var conditionEmoji = map[Condition]string{
	ConditionClear:        "☀️",
	ConditionClouds:       "☁️",
	ConditionRain:         "🌧️",
	ConditionDrizzle:      "🌦️",
	ConditionThunderstorm: "⛈️",
	ConditionSnow:         "❄️",
	ConditionMist:         "🌫️",
	ConditionOther:        "🌤️",
}

// ParseCondition maps the provider's "main" field onto a Condition.
func ParseCondition(main string) Condition {
	switch strings.ToLower(strings.TrimSpace(main)) {
	case "clear":
		return ConditionClear
	case "clouds":
		return ConditionClouds
	case "rain":
		return ConditionRain
	case "drizzle":
		return ConditionDrizzle
	case "thunderstorm":
		return ConditionThunderstorm
	case "snow":
		return ConditionSnow
	case "mist", "fog", "haze", "smoke", "dust", "sand":
		return ConditionMist
	}
	return ConditionOther
}

// Emoji returns the icon shown next to the city name.
func (c Condition) Emoji() string {
	if e, ok := conditionEmoji[c]; ok {
		return e
	}
	return conditionEmoji[ConditionOther]
}
