package posting

import (
	"postbot/internal/model"
	logx "postbot/pkg/logx"
)

func logxPost(p model.Post) []logx.Field {
	return []logx.Field{
		logx.Int64("post_id", p.ID),
		logx.String("post", p.Name),
		logx.String("kind", string(p.Kind)),
	}
}

func logxChannel(c model.Channel) []logx.Field {
	return []logx.Field{
		logx.Int64("chat_id", c.ChatID),
		logx.String("channel", c.Label()),
	}
}
