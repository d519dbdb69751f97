package mastodon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/insalol/reportwatch/util"

	"github.com/carlmjohnson/versioninfo"
	"github.com/google/go-querystring/query"
)

const reportsPath = "/api/v1/admin/reports"

// Upper bound on how much of an error response body is kept.
const maxErrorBody = 64 * 1024

type ReportClient struct {
	// HTTPClient to use. Should not retry on its own. If not set, a pooled
	// client with a 30 second timeout is created on first use.
	HTTPClient *http.Client
	// Base URL of the instance, eg "https://mastodon.example"
	Host string
	// Bearer token with admin:read:reports scope
	Token     string
	UserAgent string
	Query     ReportsQuery
}

// Optional query parameters for the admin reports endpoint. Zero values are omitted.
type ReportsQuery struct {
	Limit    int    `url:"limit,omitempty"`
	MaxID    string `url:"max_id,omitempty"`
	SinceID  string `url:"since_id,omitempty"`
	MinID    string `url:"min_id,omitempty"`
	Resolved *bool  `url:"resolved,omitempty"`
}

func NewReportClient(host, token string) *ReportClient {
	return &ReportClient{
		Host:      strings.TrimSuffix(host, "/"),
		Token:     token,
		UserAgent: "reportwatch/" + versioninfo.Short(),
	}
}

func (c *ReportClient) getClient() *http.Client {
	if c.HTTPClient == nil {
		c.HTTPClient = util.SingleShotHTTPClient(30 * time.Second)
	}
	return c.HTTPClient
}

func (c *ReportClient) reportsURL() (string, error) {
	u := c.Host + reportsPath
	vals, err := query.Values(c.Query)
	if err != nil {
		return "", fmt.Errorf("encoding report query: %w", err)
	}
	if len(vals) > 0 {
		u += "?" + vals.Encode()
	}
	return u, nil
}

// Fetches the current list of moderation reports. Exactly one HTTP request is
// made per call.
func (c *ReportClient) Reports(ctx context.Context) ([]Report, error) {
	if c.Token == "" {
		return nil, fmt.Errorf("mastodon client: empty API token")
	}

	u, err := c.reportsURL()
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building report request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.getClient().Do(req)
	if err != nil {
		return nil, &ConnectivityError{Host: c.Host, Wrapped: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var reports []Report
	if err := json.NewDecoder(resp.Body).Decode(&reports); err != nil {
		return nil, &DecodeError{Wrapped: err}
	}
	return reports, nil
}
