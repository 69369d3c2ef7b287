package model

import (
	"fmt"
	"strings"
)

// ContentKind is the stored payload type of a post.
type ContentKind string

const (
	KindText      ContentKind = "text"
	KindPhoto     ContentKind = "photo"
	KindVideo     ContentKind = "video"
	KindAudio     ContentKind = "audio"
	KindDocument  ContentKind = "document"
	KindAnimation ContentKind = "animation"
	KindSticker   ContentKind = "sticker"
	KindVoice     ContentKind = "voice"
)

// ContentKinds lists every kind in display order.
var ContentKinds = []ContentKind{
	KindText, KindPhoto, KindVideo, KindAudio,
	KindDocument, KindAnimation, KindSticker, KindVoice,
}

func ParseContentKind(s string) (ContentKind, error) {
	k := ContentKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown content kind %q", s)
	}
	return k, nil
}

func (k ContentKind) Valid() bool {
	for _, v := range ContentKinds {
		if v == k {
			return true
		}
	}
	return false
}

// HasCaption reports whether the kind carries text alongside the media.
func (k ContentKind) HasCaption() bool {
	return k != KindSticker
}
