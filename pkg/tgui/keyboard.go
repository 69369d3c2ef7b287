package tgui

import (
	"errors"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// MaxCallbackDataLen is the platform limit for callback data, in bytes.
const MaxCallbackDataLen = 64

var ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")

// Inline collects rows of callback buttons. Empty rows are skipped.
type Inline struct {
	rows [][]tele.InlineButton
}

func NewInline() *Inline { return &Inline{} }

func (k *Inline) Row(btns ...tele.Btn) *Inline {
	row := make([]tele.InlineButton, 0, len(btns))
	for _, b := range btns {
		if b.Text == "" {
			continue
		}
		row = append(row, *b.Inline())
	}
	if len(row) > 0 {
		k.rows = append(k.rows, row)
	}
	return k
}

// Markup returns nil when no row was added.
func (k *Inline) Markup() *tele.ReplyMarkup {
	if k == nil || len(k.rows) == 0 {
		return nil
	}
	return &tele.ReplyMarkup{InlineKeyboard: k.rows}
}

// Btn is a callback button. data usually comes from Data.
func Btn(text, data string) tele.Btn { return tele.Btn{Text: text, Data: data} }

// Data joins group, action and an optional payload with ':'.
func Data(group, action, payload string) (string, error) {
	parts := []string{strings.TrimSpace(group), strings.TrimSpace(action)}
	if payload != "" {
		parts = append(parts, payload)
	}
	s := strings.Join(parts, ":")
	if len(s) > MaxCallbackDataLen {
		return "", ErrCallbackDataTooLong
	}
	return s, nil
}

// ParseData is the inverse of Data. The payload may itself contain ':'.
func ParseData(s string) (group, action, payload string, ok bool) {
	group, rest, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found || group == "" {
		return "", "", "", false
	}
	action, payload, _ = strings.Cut(rest, ":")
	if action == "" {
		return "", "", "", false
	}
	return group, action, payload, true
}
