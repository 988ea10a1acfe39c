// Package line wraps the LINE Messaging API: signature-validated webhook
// parsing, one-shot replies, push delivery, and the order-status
// notifications built on stored message templates.
package line

import (
	"context"
	"fmt"
	"net/http"

	"github.com/line/line-bot-sdk-go/v7/linebot"
	"github.com/rs/zerolog"

	"github.com/leecheenbao/tripeak-b2b/internal/logger"
	"github.com/leecheenbao/tripeak-b2b/internal/metrics"
)

// Client talks to the LINE Messaging API.
type Client struct {
	bot *linebot.Client
	log zerolog.Logger
}

// NewClient builds a client from the channel credentials.
func NewClient(channelSecret, channelAccessToken string) (*Client, error) {
	bot, err := linebot.New(channelSecret, channelAccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating line client: %w", err)
	}
	return &Client{bot: bot, log: logger.Component("line")}, nil
}

// ParseRequest validates the X-Line-Signature header and decodes the webhook
// event batch.
func (c *Client) ParseRequest(r *http.Request) ([]*linebot.Event, error) {
	return c.bot.ParseRequest(r)
}

// Reply sends texts against a single-use reply token. The token is only
// valid shortly after the triggering event, so callers treat failures as
// final rather than retrying.
func (c *Client) Reply(ctx context.Context, replyToken string, texts ...string) error {
	_, err := c.bot.ReplyMessage(replyToken, textMessages(texts)...).WithContext(ctx).Do()
	if err != nil {
		metrics.Deliveries.WithLabelValues("reply", "error").Inc()
		return fmt.Errorf("replying: %w", err)
	}
	metrics.Deliveries.WithLabelValues("reply", "ok").Inc()
	return nil
}

// Push sends texts to a LINE user id. Unlike reply tokens a push target is
// reusable.
func (c *Client) Push(ctx context.Context, to string, texts ...string) error {
	_, err := c.bot.PushMessage(to, textMessages(texts)...).WithContext(ctx).Do()
	if err != nil {
		metrics.Deliveries.WithLabelValues("push", "error").Inc()
		return fmt.Errorf("pushing to %s: %w", to, err)
	}
	metrics.Deliveries.WithLabelValues("push", "ok").Inc()
	return nil
}

func textMessages(texts []string) []linebot.SendingMessage {
	msgs := make([]linebot.SendingMessage, 0, len(texts))
	for _, t := range texts {
		msgs = append(msgs, linebot.NewTextMessage(t))
	}
	return msgs
}
