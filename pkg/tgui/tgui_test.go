package tgui

import (
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestData(t *testing.T) {
	t.Parallel()
	d, err := Data("post", "resend", "12")
	if err != nil || d != "post:resend:12" {
		t.Fatalf("Data = %q, %v", d, err)
	}
	g, a, p, ok := ParseData(d)
	if !ok || g != "post" || a != "resend" || p != "12" {
		t.Fatalf("ParseData = %q %q %q %v", g, a, p, ok)
	}
	if _, err := Data("post", "resend", strings.Repeat("x", 64)); err != ErrCallbackDataTooLong {
		t.Fatalf("expected too long error, got %v", err)
	}
	if _, _, _, ok := ParseData("nocolon"); ok {
		t.Fatal("ParseData accepted malformed data")
	}
}

func TestBuilderEscapes(t *testing.T) {
	t.Parallel()
	msg := New().
		Title("📤", "Post <promo>").
		KV("Channels", "3/4").
		Bullets("a & b", " ").
		Inline(NewInline().Row(Btn("Resend", "post:resend:1"))).
		Build()

	want := "📤 <b>Post &lt;promo&gt;</b>\n• <b>Channels</b>: 3/4\n• a &amp; b"
	if msg.Text != want {
		t.Fatalf("text = %q, want %q", msg.Text, want)
	}
	if msg.Opt.ParseMode != "HTML" {
		t.Fatalf("parse mode = %q", msg.Opt.ParseMode)
	}
	rm, ok := msg.Opt.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	if !ok || len(rm.InlineKeyboard) != 1 || rm.InlineKeyboard[0][0].Data != "post:resend:1" {
		t.Fatalf("markup = %+v", msg.Opt.ReplyMarkupAdapter)
	}
}

func TestTruncRunes(t *testing.T) {
	t.Parallel()
	if got := TruncRunes("héllo world", 5); got != "héllo…" {
		t.Fatalf("TruncRunes = %q", got)
	}
	if got := TruncRunes("short", 10); got != "short" {
		t.Fatalf("TruncRunes = %q", got)
	}
}

func TestInlineSkipsEmptyRows(t *testing.T) {
	t.Parallel()
	kb := NewInline().Row().Row(Btn("", "post:show:1"))
	if kb.Markup() != nil {
		t.Fatalf("expected nil markup for empty keyboard")
	}
	if _, _, p, ok := ParseData("post:show:a:b"); !ok || p != "a:b" {
		t.Fatalf("payload = %q ok=%v", p, ok)
	}
	if got := JoinH(" | ", B("a"), "", Esc(" "), I("c")); got != "<b>a</b> | <i>c</i>" {
		t.Fatalf("JoinH = %q", got)
	}
}
