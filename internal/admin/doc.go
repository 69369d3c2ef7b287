// Package admin is the owner-facing chat surface: commands to inspect and
// edit posts, channels and schedules, the callbacks behind report buttons,
// and capture of new posts from messages sent to the bot.
package admin
