/*
Minimal client for the Mastodon admin moderation API.

[ReportClient] performs a single authenticated read of
`GET /api/v1/admin/reports` and returns the decoded [Report] list in the order
the server sent it. It never retries on its own; callers decide what a failed
read means.

Failures are typed so they can be told apart with [errors.As]:

- [ConnectivityError]: no HTTP response was obtained (DNS, TLS, timeouts, refused connections).
- [APIError]: the server answered with a non-200 status. The raw body is kept for diagnostics.
- [DecodeError]: the body was not a JSON array of reports.

Only the report fields needed to judge and describe a report are modeled; see
https://docs.joinmastodon.org/entities/Admin_Report/ for the full entity.
*/
package mastodon
