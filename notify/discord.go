package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/insalol/reportwatch/mastodon"
	"github.com/insalol/reportwatch/util"
)

// Discord rejects embeds exceeding these
const (
	discordMaxTitle       = 256
	discordMaxDescription = 4096
	discordMaxContent     = 2000
)

type DiscordNotifier struct {
	WebhookURL string
	// Defaults to util.RobustHTTPClient()
	Client *http.Client
}

type DiscordWebhookBody struct {
	Content string         `json:"content"`
	Embeds  []DiscordEmbed `json:"embeds,omitempty"`
}

type DiscordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Fields      []DiscordEmbedField `json:"fields,omitempty"`
}

type DiscordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

func NewDiscordNotifier(webhookURL string) *DiscordNotifier {
	return &DiscordNotifier{
		WebhookURL: webhookURL,
		Client:     util.RobustHTTPClient(),
	}
}

func reportEmbed(r *mastodon.Report) DiscordEmbed {
	return DiscordEmbed{
		Title:       truncate(r.Category, discordMaxTitle),
		Description: truncate(r.Comment, discordMaxDescription),
		Fields: []DiscordEmbedField{
			{Name: "Reporter", Value: r.Account.String(), Inline: true},
			{Name: "Reported", Value: r.TargetAccount.String(), Inline: true},
		},
	}
}

func (n *DiscordNotifier) SendReport(ctx context.Context, msg string, report *mastodon.Report) error {
	body := DiscordWebhookBody{Content: truncate(msg, discordMaxContent)}
	if report != nil {
		body.Embeds = []DiscordEmbed{reportEmbed(report)}
	}
	return n.post(ctx, body)
}

func (n *DiscordNotifier) SendText(ctx context.Context, msg string) error {
	return n.post(ctx, DiscordWebhookBody{Content: truncate(msg, discordMaxContent)})
}

// Discord answers 204 No Content for accepted messages (unless '?wait=true' is set on the URL)
func (n *DiscordNotifier) post(ctx context.Context, body DiscordWebhookBody) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := n.Client
	if client == nil {
		client = util.RobustHTTPClient()
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("discord webhook POST: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("failed discord webhook POST request. status=%d body=%q", resp.StatusCode, respBody)
	}
	return nil
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
