// Package state keeps the per-user conversation state of the bot.
// Sessions live in memory only and are lost on restart.
package state
