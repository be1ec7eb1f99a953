package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"job-scheduler/internal/model"
	"job-scheduler/internal/service"
)

const externalUrl = "https://scheduler.example.com"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	log.SetOutput(io.Discard)
	logger := log.New()
	logger.SetOutput(io.Discard)
	jobs := service.NewJobService(model.NewMemoryJobStorage(), log.NewEntry(logger))
	router, err := NewRouter(jobs, ServerConfig{ExternalUrl: externalUrl, Version: "1.2.3"})
	require.NoError(t, err)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() {
		resp.Body.Close()
	})
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func createJob(t *testing.T, server *httptest.Server, body string) responseJob {
	t.Helper()
	resp := do(t, "POST", server.URL+"/jobs", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[responseJob](t, resp)
}

func TestCreateAndGetJob(t *testing.T) {
	server := newTestServer(t)

	resp := do(t, "POST", server.URL+"/jobs", `{
		"type": "every",
		"interval": "5 minutes",
		"target": {"url": "http://localhost/ping", "method": "POST", "headers": {"X-Token": "t"}, "body": {"a": 1}}
	}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[responseJob](t, resp)
	assert.True(t, created.Id.Valid())
	assert.Equal(t, model.JobTypeRecurring, created.Type)
	assert.Equal(t, "5 minutes", created.Interval)
	assert.Empty(t, created.When)
	assert.NotNil(t, created.NextRunAt)
	assert.Equal(t, "t", created.Target.Headers["X-Token"])
	assert.Equal(t, fmt.Sprintf("%s/jobs/%s", externalUrl, created.Id), resp.Header.Get("Location"))

	resp = do(t, "GET", server.URL+"/jobs/"+string(created.Id), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, created, decode[responseJob](t, resp))
}

func TestTrailingSlashIsIgnored(t *testing.T) {
	server := newTestServer(t)

	resp := do(t, "POST", server.URL+"/jobs/", `{"type": "every", "interval": "1 hour", "target": {"url": "http://localhost/", "method": "GET"}}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[responseJob](t, resp)
	assert.Equal(t, fmt.Sprintf("%s/jobs/%s", externalUrl, created.Id), resp.Header.Get("Location"))

	resp = do(t, "GET", server.URL+"/jobs/"+string(created.Id)+"/", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, created, decode[responseJob](t, resp))

	list := decode[responseJobList](t, do(t, "GET", server.URL+"/jobs/?pageSize=1", ""))
	assert.Len(t, list.Results, 1)
	assert.Equal(t, externalUrl+"/jobs?page=2&pageSize=1", list.Next)
}

func TestCreateOnceJob(t *testing.T) {
	server := newTestServer(t)
	created := createJob(t, server, `{"type": "once", "when": "2030-01-01T00:00:00+01:00", "target": {"url": "http://localhost/", "method": "GET"}}`)
	assert.Equal(t, "2029-12-31T23:00:00Z", created.When)
	assert.Empty(t, created.Interval)
}

func TestCreateRejectsInvalidPayloads(t *testing.T) {
	server := newTestServer(t)
	cases := []struct {
		name     string
		body     string
		contains string
	}{
		{"invalid interval", `{"type": "every", "interval": "0 minutes", "target": {"url": "http://localhost/", "method": "GET"}}`, "invalid schedule"},
		{"out of range cron", `{"type": "every", "interval": "0 25 * * *", "target": {"url": "http://localhost/", "method": "GET"}}`, "hour"},
		{"missing interval", `{"type": "every", "target": {"url": "http://localhost/", "method": "GET"}}`, "interval is required"},
		{"missing when", `{"type": "once", "target": {"url": "http://localhost/", "method": "GET"}}`, "when is required"},
		{"bad when", `{"type": "once", "when": "later", "target": {"url": "http://localhost/", "method": "GET"}}`, "when"},
		{"bad type", `{"type": "sometimes", "interval": "1 hour", "target": {"url": "http://localhost/", "method": "GET"}}`, "type must be one of"},
		{"bad method", `{"type": "every", "interval": "1 hour", "target": {"url": "http://localhost/", "method": "HEAD"}}`, "target.method"},
		{"bad url", `{"type": "every", "interval": "1 hour", "target": {"url": "not a url", "method": "GET"}}`, "target.url"},
		{"missing target", `{"type": "every", "interval": "1 hour"}`, "target is required"},
		{"unknown field", `{"type": "every", "interval": "1 hour", "target": {"url": "http://localhost/", "method": "GET"}, "extra": 1}`, "unknown field"},
		{"non object body", `{"type": "every", "interval": "1 hour", "target": {"url": "http://localhost/", "method": "GET", "body": [1]}}`, "failed to parse request body"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			resp := do(t, "POST", server.URL+"/jobs", c.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, decode[map[string]string](t, resp)["error"], c.contains)
		})
	}

	list := decode[responseJobList](t, do(t, "GET", server.URL+"/jobs", ""))
	assert.Empty(t, list.Results, "rejected payloads create no jobs")
}

func TestCreateRequiresJSON(t *testing.T) {
	server := newTestServer(t)
	resp, err := http.Post(server.URL+"/jobs", "text/plain", bytes.NewBufferString("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestGetJobErrors(t *testing.T) {
	server := newTestServer(t)

	resp := do(t, "GET", server.URL+"/jobs/65a1b2c3d4e5f60718293a4b", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, "GET", server.URL+"/jobs/123", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode[map[string]string](t, resp)["error"], "job id must be a valid ObjectId")
}

func TestDeleteJob(t *testing.T) {
	server := newTestServer(t)
	created := createJob(t, server, `{"type": "every", "interval": "1 hour", "target": {"url": "http://localhost/", "method": "GET"}}`)

	resp := do(t, "DELETE", server.URL+"/jobs/"+string(created.Id), "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = do(t, "DELETE", server.URL+"/jobs/"+string(created.Id), "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode, "delete is idempotent")

	resp = do(t, "GET", server.URL+"/jobs/"+string(created.Id), "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelJob(t *testing.T) {
	server := newTestServer(t)
	created := createJob(t, server, `{"type": "every", "interval": "1 hour", "target": {"url": "http://localhost/", "method": "GET"}}`)

	resp := do(t, "POST", server.URL+"/jobs/"+string(created.Id)+"/cancel", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, decode[responseJob](t, resp).NextRunAt)

	resp = do(t, "POST", server.URL+"/jobs/65a1b2c3d4e5f60718293a4b/cancel", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListJobsPagination(t *testing.T) {
	server := newTestServer(t)
	for i := 0; i < 10; i++ {
		createJob(t, server, `{"type": "every", "interval": "1 hour", "target": {"url": "http://localhost/", "method": "GET"}}`)
	}

	list := decode[responseJobList](t, do(t, "GET", server.URL+"/jobs?page=1&pageSize=10", ""))
	assert.Len(t, list.Results, 10)
	assert.Equal(t, externalUrl+"/jobs?page=2&pageSize=10", list.Next)
	assert.Empty(t, list.Prev)

	list = decode[responseJobList](t, do(t, "GET", server.URL+"/jobs?page=2&pageSize=10&tag=x", ""))
	assert.Empty(t, list.Results)
	assert.Empty(t, list.Next)
	assert.Equal(t, externalUrl+"/jobs?page=1&pageSize=10&tag=x", list.Prev)

	list = decode[responseJobList](t, do(t, "GET", server.URL+"/jobs?pageSize=4&page=2", ""))
	assert.Len(t, list.Results, 4)
	assert.Equal(t, externalUrl+"/jobs?page=3&pageSize=4", list.Next)
	assert.Equal(t, externalUrl+"/jobs?page=1&pageSize=4", list.Prev)
}

func TestListJobsFewerThanPage(t *testing.T) {
	server := newTestServer(t)
	for i := 0; i < 5; i++ {
		createJob(t, server, `{"type": "every", "interval": "1 hour", "target": {"url": "http://localhost/", "method": "GET"}}`)
	}

	list := decode[responseJobList](t, do(t, "GET", server.URL+"/jobs", ""))
	assert.Len(t, list.Results, 5)
	assert.Empty(t, list.Next)
	assert.Empty(t, list.Prev)
}

func TestListJobsRejectsBadQuery(t *testing.T) {
	server := newTestServer(t)
	for _, query := range []string{"page=0", "pageSize=101", "pageSize=0", "page=abc"} {
		resp := do(t, "GET", server.URL+"/jobs?"+query, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, query)
	}
}

func TestAdminRoutes(t *testing.T) {
	server := newTestServer(t)

	resp := do(t, "GET", server.URL+"/check-health", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, "GET", server.URL+"/version", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]string{"version": "1.2.3"}, decode[map[string]string](t, resp))
}
