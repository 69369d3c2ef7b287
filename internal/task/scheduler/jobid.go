package scheduler

import (
	"fmt"
	"strconv"
	"strings"
)

type JobKind uint8

const (
	JobSend JobKind = iota + 1
	JobDelete
)

func (k JobKind) String() string {
	switch k {
	case JobSend:
		return "send"
	case JobDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// JobID identifies a registry entry. Send jobs use PostID only; delete jobs
// carry the exact message they remove.
type JobID struct {
	Kind      JobKind
	PostID    int64
	ChannelID int64
	MessageID int
}

func SendJob(postID int64) JobID { return JobID{Kind: JobSend, PostID: postID} }

func DeleteJob(postID, channelID int64, messageID int) JobID {
	return JobID{Kind: JobDelete, PostID: postID, ChannelID: channelID, MessageID: messageID}
}

// String renders "send:{post}" or "delete:{post}:{channel}:{message}".
func (id JobID) String() string {
	if id.Kind == JobDelete {
		return fmt.Sprintf("delete:%d:%d:%d", id.PostID, id.ChannelID, id.MessageID)
	}
	return fmt.Sprintf("%s:%d", id.Kind, id.PostID)
}

func ParseJobID(s string) (JobID, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	bad := fmt.Errorf("invalid job id %q", s)
	switch {
	case len(parts) == 2 && parts[0] == "send":
		post, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return JobID{}, bad
		}
		return SendJob(post), nil
	case len(parts) == 4 && parts[0] == "delete":
		post, err1 := strconv.ParseInt(parts[1], 10, 64)
		ch, err2 := strconv.ParseInt(parts[2], 10, 64)
		msg, err3 := strconv.Atoi(parts[3])
		if err1 != nil || err2 != nil || err3 != nil {
			return JobID{}, bad
		}
		return DeleteJob(post, ch, msg), nil
	default:
		return JobID{}, bad
	}
}
