// Package notifier reports post activity to the bot admins.
//
// Every report goes to each admin chat as an HTML message. Send reports
// carry inline buttons to resend the post or to delete it from every
// channel. When the deletion report of a fire goes out, the send reports of
// that fire are removed so the admin chat keeps one summary per cycle.
//
// All outgoing messages share one token bucket, so a burst of completions
// cannot flood the admin chats.
package notifier
