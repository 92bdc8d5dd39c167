package router

import (
	"fmt"
	"strings"

	"github.com/m3rciful/weatherbot/core/buildinfo"
)

// Reply-keyboard labels; each is an alias of its command.
const (
	LabelWeather = "🌤️ My weather"
	LabelSetCity = "🏙️ Set city"
	LabelStats   = "📊 Stats"
	LabelHelp    = "❓ Help"
)

// Button tokens.
const (
	TokenWeather = "weather"
	TokenSetCity = "setcity"
	TokenStats   = "stats"
	TokenAbout   = "about"
	TokenHelp    = "help"
	TokenCity    = "city"
	TokenCancel  = "cancel"
)

// maxButtonData keeps "\f<token>|<data>" within the platform's 64-byte callback limit.
const maxButtonData = 48

var exampleCities = []string{"Moscow", "London", "New York", "Paris", "Tokyo", "Berlin"}

const (
	textWelcome = "🌤️ Hi! I am a weather bot.\n\n" +
		"🔹 Send me a city name and I will reply with the current weather\n" +
		"🔹 Use the buttons below for quick access\n" +
		"🔹 Or pick a command from the menu\n\n" +
		"💡 Example: send \"London\""

	textHelp = "❓ How to use the bot\n\n" +
		"/weather - weather in your saved city\n" +
		"/setcity - choose your city\n" +
		"/stats - bot statistics\n" +
		"/about - about the bot\n" +
		"/cancel - stop choosing a city\n\n" +
		"You can also send any city name to get its weather once."

	textPromptCity     = "🏙️ Send me the name of your city, or pick one below."
	textNoDefaultCity  = "🏙️ You have not chosen a city yet. Use /setcity to pick one."
	textUnavailable    = "⏳ The weather service is temporarily unavailable. Please try again later."
	textProviderBroken = "⚠️ The weather service is not configured correctly. Please try again later."
	textUnreadable     = "⚠️ Could not read the weather data. Please try again later."
	textStoreRead      = "⚠️ Could not load your settings. Please try again later."
	textStatsFailed    = "⚠️ Statistics are unavailable right now. Please try again later."
	textNotSaved       = "⚠️ Your city could not be saved this time. Please try /setcity again later."
	textCancelled      = "❌ City selection cancelled."
	textNothingToStop  = "Nothing to cancel."
	textTooManyTries   = "❌ Too many attempts. City selection cancelled, use /setcity to try again."
	textPromptExpired  = "⌛ City selection timed out. Use /setcity to try again."
	textAdminOnly      = "⛔ This command is for administrators only."
	textUnknownButton  = "Unsupported action."
	textMenuUpdated    = "✅ Command menu updated."
	textMenuFailed     = "⚠️ Could not update the command menu."
)

func textAbout() string {
	return fmt.Sprintf("ℹ️ %s %s\n\n"+
		"Current weather for any city, powered by OpenWeatherMap.\n"+
		"Save your city once with /setcity and ask /weather any time.", buildinfo.Name, buildinfo.Version)
}

func textStats(users, cities int, city string) string {
	if city == "" {
		city = "not set"
	}
	return fmt.Sprintf("📊 Bot statistics\n\n"+
		"👥 Users: %d\n"+
		"🏙️ Cities: %d\n"+
		"📍 Your city: %s\n"+
		"🔖 Version: %s", users, cities, city, buildinfo.Version)
}

func textInvalidCity(max int) string {
	return fmt.Sprintf("✏️ Please send a city name of 1 to %d characters.", max)
}

func textNotFound(city string) string {
	return fmt.Sprintf("❌ City \"%s\" was not found. Check the spelling and try again.", city)
}

func textSaved(city string) string {
	return fmt.Sprintf("✅ %s is now your city. Use /weather to check it any time.", city)
}

func textUnknownCommand(name string) string {
	return fmt.Sprintf("🤷 Unknown command /%s. Send /help to see what I can do.", strings.TrimPrefix(name, "/"))
}

func mainMenu() [][]string {
	return [][]string{
		{LabelWeather, LabelSetCity},
		{LabelStats, LabelHelp},
	}
}

func shortcutButtons() [][]Button {
	return [][]Button{
		{{Label: "🌤️ Current weather", Token: TokenWeather}, {Label: "🏙️ Set city", Token: TokenSetCity}},
		{{Label: "📊 Stats", Token: TokenStats}, {Label: "ℹ️ About", Token: TokenAbout}},
		{{Label: "❓ Help", Token: TokenHelp}},
	}
}

func cityPromptButtons() [][]Button {
	var rows [][]Button
	for i := 0; i < len(exampleCities); i += 2 {
		row := []Button{{Label: exampleCities[i], Token: TokenCity, Data: exampleCities[i]}}
		if i+1 < len(exampleCities) {
			row = append(row, Button{Label: exampleCities[i+1], Token: TokenCity, Data: exampleCities[i+1]})
		}
		rows = append(rows, row)
	}
	return append(rows, []Button{{Label: "❌ Cancel", Token: TokenCancel}})
}

func refreshButtons(city string) [][]Button {
	if len(city) > maxButtonData {
		return nil
	}
	return [][]Button{{{Label: "🔄 Refresh", Token: TokenCity, Data: city}}}
}
