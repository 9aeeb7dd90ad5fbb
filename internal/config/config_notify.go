package config

import "time"

// NotifyConfig configures notification sinks. A sink is enabled when its
// credentials are set.
type NotifyConfig struct {
	Slack    SlackNotifyConfig    `yaml:"slack"`
	Telegram TelegramNotifyConfig `yaml:"telegram"`
	Discord  DiscordNotifyConfig  `yaml:"discord"`
	Pushover PushoverNotifyConfig `yaml:"pushover"`
	Email    EmailNotifyConfig    `yaml:"email"`

	// SummaryCron schedules the periodic summary report. Defaults to
	// "0 18 * * *"; "off" disables it.
	SummaryCron string `yaml:"summary_cron"`

	// Timeout bounds each sink delivery.
	Timeout time.Duration `yaml:"timeout"`
}

type SlackNotifyConfig struct {
	Token      string `yaml:"token"`
	Channel    string `yaml:"channel"`
	WebhookURL string `yaml:"webhook_url"`
}

type TelegramNotifyConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

type DiscordNotifyConfig struct {
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
}

type PushoverNotifyConfig struct {
	Token string `yaml:"token"`
	User  string `yaml:"user"`
	URL   string `yaml:"url"`
}

// EmailNotifyConfig sends events over SMTP. The sink is enabled when host,
// from and at least one recipient are set.
type EmailNotifyConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
	// TLS is "mandatory" (STARTTLS required), "opportunistic" or "none".
	TLS string `yaml:"tls"`
}

func applyNotifyDefaults(cfg *NotifyConfig) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.SummaryCron == "" {
		cfg.SummaryCron = "0 18 * * *"
	}
	if cfg.Pushover.URL == "" {
		cfg.Pushover.URL = "https://api.pushover.net/1/messages.json"
	}
	if cfg.Email.Port == 0 {
		cfg.Email.Port = 587
	}
	if cfg.Email.TLS == "" {
		cfg.Email.TLS = "mandatory"
	}
}
