package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/slack-go/slack"

	"github.com/haasonsaas/profileqa/internal/config"
)

// slackPoster is the part of the Slack API client the sink uses.
type slackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Slack posts to a channel with a bot token, or to an incoming webhook.
type Slack struct {
	client     slackPoster
	channel    string
	webhookURL string
}

// NewSlack creates a Slack sink. A webhook URL takes precedence over the token.
func NewSlack(cfg config.SlackNotifyConfig) *Slack {
	s := &Slack{channel: cfg.Channel, webhookURL: cfg.WebhookURL}
	if cfg.WebhookURL == "" {
		s.client = slack.New(cfg.Token)
	}
	return s
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Send(ctx context.Context, e Event) error {
	text := e.Message
	if e.Title != "" {
		text = fmt.Sprintf("*%s*\n%s", e.Title, e.Message)
	}
	if s.webhookURL != "" {
		if err := slack.PostWebhookContext(ctx, s.webhookURL, &slack.WebhookMessage{Text: text}); err != nil {
			return fmt.Errorf("slack webhook: %w", err)
		}
		return nil
	}
	if _, _, err := s.client.PostMessageContext(ctx, s.channel, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("slack post: %w", err)
	}
	return nil
}

// telegramSender is the part of the bot client the sink uses.
type telegramSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Telegram sends a message to one chat through the Bot API.
type Telegram struct {
	bot    telegramSender
	chatID int64
}

// NewTelegram creates a Telegram sink. The bot identity is not verified
// until the first send.
func NewTelegram(cfg config.TelegramNotifyConfig) (*Telegram, error) {
	b, err := bot.New(cfg.Token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Telegram{bot: b, chatID: cfg.ChatID}, nil
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Send(ctx context.Context, e Event) error {
	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:              t.chatID,
		Text:                plainText(e),
		DisableNotification: e.Priority == PriorityLow,
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// discordSender is the part of the Discord session the sink uses.
type discordSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts a message to a channel over the REST API.
type Discord struct {
	session   discordSender
	channelID string
}

// NewDiscord creates a Discord sink. No gateway connection is opened.
func NewDiscord(cfg config.DiscordNotifyConfig) (*Discord, error) {
	dg, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &Discord{session: dg, channelID: cfg.ChannelID}, nil
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Send(ctx context.Context, e Event) error {
	content := e.Message
	if e.Title != "" {
		content = fmt.Sprintf("**%s**\n%s", e.Title, e.Message)
	}
	if _, err := d.session.ChannelMessageSend(d.channelID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	return nil
}

// Pushover sends push notifications through the Pushover messages API.
type Pushover struct {
	client *http.Client
	url    string
	token  string
	user   string
}

// NewPushover creates a Pushover sink. A nil client uses http.DefaultClient.
func NewPushover(cfg config.PushoverNotifyConfig, client *http.Client) *Pushover {
	if client == nil {
		client = http.DefaultClient
	}
	u := cfg.URL
	if u == "" {
		u = "https://api.pushover.net/1/messages.json"
	}
	return &Pushover{client: client, url: u, token: cfg.Token, user: cfg.User}
}

func (p *Pushover) Name() string { return "pushover" }

type pushoverResponse struct {
	Status  int      `json:"status"`
	Request string   `json:"request"`
	Errors  []string `json:"errors"`
}

func (p *Pushover) Send(ctx context.Context, e Event) error {
	form := url.Values{
		"token":    {p.token},
		"user":     {p.user},
		"message":  {e.Message},
		"title":    {e.Title},
		"priority": {pushoverPriority(e.Priority)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("pushover request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("pushover send: %w", err)
	}
	defer resp.Body.Close()

	var body pushoverResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("pushover status %d: %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || body.Status != 1 {
		msg := strings.Join(body.Errors, "; ")
		if msg == "" {
			msg = "unknown error"
		}
		return fmt.Errorf("pushover status %d: %s", resp.StatusCode, msg)
	}
	return nil
}

func pushoverPriority(p Priority) string {
	switch p {
	case PriorityLow:
		return "-1"
	case PriorityHigh:
		return "1"
	default:
		return "0"
	}
}

var (
	_ Sink = (*Slack)(nil)
	_ Sink = (*Telegram)(nil)
	_ Sink = (*Discord)(nil)
	_ Sink = (*Pushover)(nil)
)
