package notifier

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"postbot/internal/model"
	"postbot/internal/posting"
	kit "postbot/internal/transport"
	"postbot/pkg/tgui"
)

const (
	kindSend     = "send"
	kindRetained = "retention"
	kindManual   = "manual_delete"
)

// ReportSend tells the admins how a fire went and returns every message sent
// so the caller can remove them once the cycle ends.
func (s *Service) ReportSend(ctx context.Context, res posting.SendResult) ([]kit.MessageRef, error) {
	return s.broadcast(ctx, kindSend, res.PostID, renderSend(res, s.loc()))
}

// ReportDeletionComplete announces that every message of a fire was handled
// and removes the send reports of that fire.
func (s *Service) ReportDeletionComplete(ctx context.Context, st model.DeletionStats, reports []model.ReportMessage) error {
	_, err := s.broadcast(ctx, kindRetained, st.PostID, renderDeletion(st, s.now(), s.loc()))
	s.cleanup(ctx, reportRefs(reports))
	return err
}

func (s *Service) ReportManualDeletion(ctx context.Context, md posting.ManualDeletion, reports []model.ReportMessage) error {
	_, err := s.broadcast(ctx, kindManual, md.PostID, renderManual(md, s.loc()))
	s.cleanup(ctx, reportRefs(reports))
	return err
}

func renderSend(res posting.SendResult, loc *time.Location) tgui.Message {
	title := "Automatic send finished"
	if res.Manual {
		title = "Manual send finished"
	}
	at := res.FiredAt.In(loc)
	b := tgui.New().
		Title("📤", title).
		Blank().
		KV("Time", at.Format("15:04:05")).
		KV("Date", at.Format("02/01/2006")).
		KV("Post", res.PostName).
		KV("Channels", strconv.Itoa(res.Total)).
		KV("Sent", strconv.Itoa(res.Succeeded)).
		KV("Failed", strconv.Itoa(res.Failed))
	if res.Retention > 0 {
		b.KV("Delete at", at.Add(res.Retention).Format("15:04 02/01/2006"))
	}

	reasons, more := res.FailureReasons(MaxReasons)
	writeReasons(b, "Failures", reasons, more)

	id := strconv.FormatInt(res.PostID, 10)
	kb := tgui.NewInline()
	if data, err := tgui.Data("post", "resend", id); err == nil {
		kb.Row(tgui.Btn("🔄 Resend", data))
	}
	if data, err := tgui.Data("post", "purge", id); err == nil {
		kb.Row(tgui.Btn("🗑 Delete from all", data))
	}
	return b.Inline(kb).Build()
}

func renderDeletion(st model.DeletionStats, now time.Time, loc *time.Location) tgui.Message {
	b := tgui.New().
		Title("🗑", "Automatic deletion finished").
		Blank().
		KV("Sent at", st.FiredAt.In(loc).Format("15:04:05 02/01/2006")).
		KV("Deleted at", now.In(loc).Format("15:04:05 02/01/2006")).
		KV("Post", st.PostName).
		KV("Channels", strconv.Itoa(st.Total)).
		KV("Deleted", strconv.Itoa(st.Deleted)).
		KV("Failed", strconv.Itoa(st.Failed))
	reasons, more := posting.CapReasons(uniqueReasons(st.Reasons), MaxReasons)
	writeReasons(b, "Reasons", reasons, more)
	return b.Build()
}

func renderManual(md posting.ManualDeletion, loc *time.Location) tgui.Message {
	b := tgui.New().
		Title("🗑", "Manual deletion finished").
		Blank().
		KV("Deleted at", md.At.In(loc).Format("15:04:05 02/01/2006")).
		KV("Post", md.PostName).
		KV("Sends covered", strconv.Itoa(md.Occurrences)).
		KV("Messages", strconv.Itoa(md.Total)).
		KV("Deleted", strconv.Itoa(md.Deleted)).
		KV("Failed", strconv.Itoa(md.Failed))
	reasons, more := posting.CapReasons(uniqueReasons(md.Reasons), MaxReasons)
	writeReasons(b, "Reasons", reasons, more)
	return b.Build()
}

func writeReasons(b *tgui.Builder, title string, reasons []string, more int) {
	if len(reasons) == 0 {
		return
	}
	b.Blank().RawLine(tgui.B(title + ":"))
	for i, r := range reasons {
		b.Line(fmt.Sprintf("%d. %s", i+1, r))
	}
	if more > 0 {
		b.Line(fmt.Sprintf("... and %d more", more))
	}
}

// uniqueReasons drops blanks and repeats, keeping first-seen order.
func uniqueReasons(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, r := range in {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

func reportRefs(reports []model.ReportMessage) []kit.MessageRef {
	refs := make([]kit.MessageRef, 0, len(reports))
	for _, r := range reports {
		refs = append(refs, kit.MessageRef{ChatID: r.ChatID, MessageID: r.MessageID})
	}
	return refs
}
