package router

import (
	"slices"
	"strings"

	kit "postbot/internal/transport"
)

const (
	maxMenuCommand = 32
	maxMenuDesc    = 256
	maxMenuEntries = 100
)

// sanitizeTelegramCommand maps s onto [a-z0-9_]{1,32}, starting with a letter.
// Separators collapse into a single underscore; other runes are dropped.
func sanitizeTelegramCommand(s string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		case r == '_', r == '-', r == '/', r == ' ', r == '\t':
			pendingSep = true
		}
	}
	out := b.String()
	if out == "" {
		return ""
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "cmd_" + out
	}
	if len(out) > maxMenuCommand {
		out = strings.TrimRight(out[:maxMenuCommand], "_")
	}
	return out
}

// telegramCommandNameFromRoute joins a multi-token route with underscores:
// ["post", "show"] becomes "post_show".
func telegramCommandNameFromRoute(route []string) (string, bool) {
	out := sanitizeTelegramCommand(strings.Join(route, "_"))
	return out, out != ""
}

// buildTelegramMenuCommands lists top-level nodes first, then shortcuts for
// nested leaves, each group sorted by name.
func buildTelegramMenuCommands(root *cmdNode, leafCmds []Command) []kit.BotCommand {
	seen := map[string]bool{}
	var top, nested []kit.BotCommand
	add := func(dst *[]kit.BotCommand, name, desc string) {
		name = sanitizeTelegramCommand(name)
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		desc = strings.Join(strings.Fields(desc), " ")
		if desc == "" {
			desc = name
		}
		if len(desc) > maxMenuDesc {
			desc = desc[:maxMenuDesc]
		}
		*dst = append(*dst, kit.BotCommand{Command: name, Description: desc})
	}

	if root != nil {
		for _, name := range root.childNames() {
			n, _ := root.child(name)
			add(&top, name, summarizeNodeDesc(n))
		}
	}
	for _, c := range leafCmds {
		route := splitRoute(c.Route)
		if len(route) < 2 {
			continue
		}
		desc := c.Description
		if strings.TrimSpace(desc) == "" {
			desc = strings.Join(route, " ")
		}
		add(&nested, strings.Join(route, "_"), desc)
	}

	byName := func(a, b kit.BotCommand) int { return strings.Compare(a.Command, b.Command) }
	slices.SortFunc(top, byName)
	slices.SortFunc(nested, byName)
	out := append(top, nested...)
	if len(out) > maxMenuEntries {
		out = out[:maxMenuEntries]
	}
	return out
}
