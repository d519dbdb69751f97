package mastodon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reportsHandler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != reportsPath || r.Header.Get("Authorization") != "Bearer secret" {
			http.Error(w, `{"error":"The access token is invalid"}`, http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}
}

func TestReportsSuccess(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	body := `[
		{"id":"2","action_taken":true,"created_at":"2024-01-01T00:00:00.000Z","account":{"username":"a","domain":null},"target_account":{"username":"b","domain":null}},
		{"id":"1","action_taken":false,"created_at":"2024-01-02T00:00:00.000Z","account":{"username":"c","domain":"remote.example"},"target_account":{"username":"d","domain":null}}
	]`
	srv := httptest.NewServer(reportsHandler(http.StatusOK, body))
	defer srv.Close()

	c := NewReportClient(srv.URL+"/", "secret")
	reports, err := c.Reports(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	// order as returned by the server
	assert.Equal("2", reports[0].ID)
	assert.True(reports[0].ActionTaken)
	assert.Equal("1", reports[1].ID)
	assert.Equal("@c@remote.example", reports[1].Account.String())
}

func TestReportsEmpty(t *testing.T) {
	srv := httptest.NewServer(reportsHandler(http.StatusOK, `[]`))
	defer srv.Close()

	reports, err := NewReportClient(srv.URL, "secret").Reports(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, reports)
}

func TestReportsAPIError(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(reportsHandler(http.StatusInternalServerError, "server error"))
	defer srv.Close()

	_, err := NewReportClient(srv.URL, "secret").Reports(context.Background())
	var apierr *APIError
	require.ErrorAs(t, err, &apierr)
	assert.Equal(500, apierr.StatusCode)
	assert.Equal("server error", apierr.Body)
	assert.Equal("api", ErrorKind(err))
}

func TestReportsUnauthorized(t *testing.T) {
	srv := httptest.NewServer(reportsHandler(http.StatusOK, `[]`))
	defer srv.Close()

	_, err := NewReportClient(srv.URL, "wrong").Reports(context.Background())
	var apierr *APIError
	require.ErrorAs(t, err, &apierr)
	assert.Equal(t, http.StatusUnauthorized, apierr.StatusCode)
	assert.Contains(t, apierr.Body, "access token is invalid")
}

func TestReportsDecodeError(t *testing.T) {
	assert := assert.New(t)

	for _, body := range []string{
		`<html>maintenance</html>`,
		`{"error":"not a list"}`,
		`[{"id":"1","action_taken":false}]`,
	} {
		srv := httptest.NewServer(reportsHandler(http.StatusOK, body))
		_, err := NewReportClient(srv.URL, "secret").Reports(context.Background())
		srv.Close()

		var decerr *DecodeError
		assert.ErrorAs(err, &decerr, body)
		assert.Equal("decode", ErrorKind(err))
	}
}

func TestReportsConnectivityError(t *testing.T) {
	srv := httptest.NewServer(reportsHandler(http.StatusOK, `[]`))
	host := srv.URL
	srv.Close()

	_, err := NewReportClient(host, "secret").Reports(context.Background())
	var connerr *ConnectivityError
	require.ErrorAs(t, err, &connerr)
	assert.Equal(t, host, connerr.Host)
	assert.Equal(t, "connectivity", ErrorKind(err))
}

func TestReportsQueryParams(t *testing.T) {
	assert := assert.New(t)

	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	c := NewReportClient(srv.URL, "secret")
	c.Query = ReportsQuery{Limit: 200}
	_, err := c.Reports(context.Background())
	assert.NoError(err)
	assert.Equal("limit=200", gotQuery)
}

func TestReportsEmptyToken(t *testing.T) {
	_, err := NewReportClient("http://localhost", "").Reports(context.Background())
	assert.Error(t, err)
	assert.Equal(t, "other", ErrorKind(err))
	assert.False(t, errors.Is(err, context.Canceled))
}
