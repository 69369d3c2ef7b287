// Package tgui provides small Telegram UI helpers for HTML parse mode:
//   - inline keyboard builders
//   - callback data helpers ("group:action:payload")
//   - a message builder that escapes by default
package tgui
