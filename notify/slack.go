package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/insalol/reportwatch/mastodon"
	"github.com/insalol/reportwatch/util"
)

type SlackNotifier struct {
	SlackWebhookURL string
	// Defaults to util.RobustHTTPClient()
	Client *http.Client
}

type SlackWebhookBody struct {
	Text string `json:"text"`
}

func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		SlackWebhookURL: webhookURL,
		Client:          util.RobustHTTPClient(),
	}
}

func (n *SlackNotifier) SendReport(ctx context.Context, msg string, report *mastodon.Report) error {
	if report != nil {
		msg = msg + "\n" + slackReportBody(report)
	}
	return n.sendSlackMsg(ctx, msg)
}

func (n *SlackNotifier) SendText(ctx context.Context, msg string) error {
	return n.sendSlackMsg(ctx, msg)
}

func slackReportBody(r *mastodon.Report) string {
	msg := fmt.Sprintf("report id: `%s`\tcreatedAt: `%s`\n", r.ID, r.CreatedAt.Format(util.ISO8601))
	msg += fmt.Sprintf("category: `%s`\n", r.Category)
	msg += fmt.Sprintf("reporter: `%s`\treported: `%s`\n", r.Account, r.TargetAccount)
	if r.Comment != "" {
		msg += fmt.Sprintf("```%s```\n", r.Comment)
	}
	return msg
}

// Sends a simple slack message to a channel via "incoming webhook".
//
// The slack incoming webhook must be already configured in the slack workplace.
func (n *SlackNotifier) sendSlackMsg(ctx context.Context, msg string) error {
	// loosely based on: https://golangcode.com/send-slack-messages-without-a-library/

	body, err := json.Marshal(SlackWebhookBody{Text: msg})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.SlackWebhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	client := n.Client
	if client == nil {
		client = util.RobustHTTPClient()
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}

	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	buf.ReadFrom(resp.Body)
	if resp.StatusCode != 200 || buf.String() != "ok" {
		return fmt.Errorf("failed slack webhook POST request. status=%d", resp.StatusCode)
	}
	return nil
}
