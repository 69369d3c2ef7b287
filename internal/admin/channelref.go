package admin

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var ErrBadChannelRef = errors.New("expected @handle, t.me/handle or a -100 chat id")

var (
	reHandle = regexp.MustCompile(`^@([A-Za-z0-9_]{4,32})$`)
	reLink   = regexp.MustCompile(`^(?:https?://)?(?:www\.)?(?:t|telegram)\.me/([A-Za-z0-9_]{4,32})/?$`)
)

// ChannelRef is a parsed channel argument: either a numeric chat id or a
// public handle without the "@".
type ChannelRef struct {
	ChatID int64
	Handle string
}

func (r ChannelRef) String() string {
	if r.Handle != "" {
		return "@" + r.Handle
	}
	return strconv.FormatInt(r.ChatID, 10)
}

// ParseChannelRef accepts "@handle", "t.me/handle" links and numeric chat
// ids. Positive ids are rejected: channels and supergroups are always
// negative.
func ParseChannelRef(s string) (ChannelRef, error) {
	s = strings.TrimSpace(s)
	if m := reHandle.FindStringSubmatch(s); m != nil {
		return ChannelRef{Handle: m[1]}, nil
	}
	if m := reLink.FindStringSubmatch(s); m != nil {
		return ChannelRef{Handle: m[1]}, nil
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		if id >= 0 {
			return ChannelRef{}, fmt.Errorf("%q: %w", s, ErrBadChannelRef)
		}
		return ChannelRef{ChatID: id}, nil
	}
	return ChannelRef{}, fmt.Errorf("%q: %w", s, ErrBadChannelRef)
}
