package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"oracle-miss-alerts/internal/report"
)

const (
	colorHealthy = 0x00ff00
	colorAlert   = 0xff6b6b

	// Discord caps embed field values at 1024 characters.
	maxFieldChars = 1024
)

// DiscordNotifier 通过 Discord Bot API 将报告发送到预配置频道。
type DiscordNotifier struct {
	botToken  string
	channelID string
	baseURL   string
	client    *http.Client
	logger    zerolog.Logger
}

// NewDiscordNotifier 构造 Discord 告警器。
func NewDiscordNotifier(botToken, channelID, baseURL string, timeout time.Duration, logger zerolog.Logger) *DiscordNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://discord.com/api/v10"
	}

	return &DiscordNotifier{
		botToken:  botToken,
		channelID: channelID,
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: timeout},
		logger:    logger.With().Str("component", "alert_discord").Logger(),
	}
}

// Notify 将报告渲染为单条 embed 消息并发送。
func (n *DiscordNotifier) Notify(ctx context.Context, msg report.Message) error {
	payload := discordMessage{Embeds: []discordEmbed{buildEmbed(msg)}}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	url := fmt.Sprintf("%s/channels/%s/messages", n.baseURL, n.channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bot "+n.botToken)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send discord request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("discord 响应码异常: %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	n.logger.Info().
		Str("channel_id", n.channelID).
		Bool("healthy", msg.Healthy).
		Int("sections", len(msg.Sections)).
		Msg("报告已发送 (Discord)")
	return nil
}

type discordMessage struct {
	Embeds []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title     string         `json:"title"`
	Color     int            `json:"color"`
	Timestamp string         `json:"timestamp"`
	Fields    []discordField `json:"fields"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

func buildEmbed(msg report.Message) discordEmbed {
	color := colorAlert
	if msg.Healthy {
		color = colorHealthy
	}

	embed := discordEmbed{
		Title:     msg.Title,
		Color:     color,
		Timestamp: msg.GeneratedAt.UTC().Format(time.RFC3339),
	}
	for _, sec := range msg.Sections {
		embed.Fields = append(embed.Fields, discordField{
			Name:  sec.Title,
			Value: fieldValue(sec.Lines),
		})
	}
	return embed
}

func fieldValue(lines []string) string {
	value := strings.Join(lines, "\n")
	if value == "" {
		return "None"
	}
	if runes := []rune(value); len(runes) > maxFieldChars {
		value = string(runes[:maxFieldChars-1]) + "…"
	}
	return value
}

var _ Notifier = (*DiscordNotifier)(nil)
