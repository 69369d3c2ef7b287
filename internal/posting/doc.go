// Package posting publishes stored posts to their channels on a weekly
// schedule and removes the published messages once their retention expires.
//
// Dispatcher runs one fire of a post. Tracker resolves delete jobs and sends
// a single completion report per fire. Service wires both to the job
// registry and carries the admin operations.
package posting
