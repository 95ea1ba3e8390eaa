package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/sswtrack/sswtrack/internal/compliance"
	"github.com/sswtrack/sswtrack/internal/config"
	"github.com/sswtrack/sswtrack/internal/roster"
	"github.com/sswtrack/sswtrack/internal/storage"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

// useClient points the CLI commands at ts for the duration of the test.
func (ts *testServer) useClient(t *testing.T) {
	t.Helper()
	old := newAPIClient
	newAPIClient = func() (*apiClient, error) { return ts.client(), nil }
	t.Cleanup(func() { newAPIClient = old })
}

func runCLI(t *testing.T, args ...string) error {
	t.Helper()
	defer rootCmd.SetArgs(nil)
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

var ctx = context.Background()

func TestStaffAddCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /staff": `{"id":"st-1","name":"Nguyen Van A","sector":"kaigo","residence_expiry":"2026-04-01T00:00:00Z"}`,
	})
	ts.useClient(t)

	err := runCLI(t, "staff", "add", "--name", "Nguyen Van A", "--entry", "2025-04-01", "--nationality", "Vietnam")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Method != "POST" || r.Path != "/staff" {
		t.Errorf("request = %s %s, want POST /staff", r.Method, r.Path)
	}
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}

	var body map[string]string
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["name"] != "Nguyen Van A" {
		t.Errorf("body.name = %q", body["name"])
	}
	if body["sector"] != "kaigo" {
		t.Errorf("body.sector = %q, want default kaigo", body["sector"])
	}
	if body["entry_date"] != "2025-04-01" {
		t.Errorf("body.entry_date = %q", body["entry_date"])
	}
	if body["nationality"] != "Vietnam" {
		t.Errorf("body.nationality = %q", body["nationality"])
	}
}

func TestStaffAddCommand_MissingArgs(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.useClient(t)

	err := runCLI(t, "staff", "add", "--name", "", "--entry", "")
	if err == nil {
		t.Fatal("expected error for missing args")
	}
	if !strings.Contains(err.Error(), "required") {
		t.Errorf("error = %q, want it to mention 'required'", err.Error())
	}
	if len(ts.requests) != 0 {
		t.Errorf("expected no requests, got %d", len(ts.requests))
	}
}

func TestStaffAddCommand_BadDate(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.useClient(t)

	err := runCLI(t, "staff", "add", "--name", "A", "--entry", "2025/04/01")
	if err == nil {
		t.Fatal("expected error for malformed date")
	}
	if !strings.Contains(err.Error(), "YYYY-MM-DD") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestStaffList(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /staff": `[{"staff":{"id":"0123456789ab","name":"グエン","sector":"kaigo"},"status":{"phase":"entry","urgency":"critical","days_until_expiry":12}}]`,
	})

	resp, err := ts.client().get(ctx, "/staff?archived=true")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var list []roster.StaffStatus
	if err := decodeJSON(resp, &list); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if ts.requests[0].Path != "/staff?archived=true" {
		t.Errorf("path = %q", ts.requests[0].Path)
	}

	old := noColor
	noColor = true
	defer func() { noColor = old }()

	var buf bytes.Buffer
	renderRoster(&buf, list)
	out := buf.String()
	for _, want := range []string{"01234567", "グエン", "entry", "12", "緊急"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "0123456789ab") {
		t.Errorf("ID should be shortened:\n%s", out)
	}
}

func TestRenderTasks(t *testing.T) {
	old := noColor
	noColor = true
	defer func() { noColor = old }()

	due := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	tasks := []compliance.Task{
		{StaffName: "グエン", Urgency: compliance.SeverityCritical, Message: "在留期限切れ", Days: -3, Due: due},
		{StaffName: "Tran", Urgency: compliance.SeverityNormal, Message: "定期面談", Days: compliance.NoDate},
	}

	var buf bytes.Buffer
	renderTasks(&buf, tasks)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[1], "2025-07-01") || !strings.Contains(lines[1], "-3") {
		t.Errorf("row 1 = %q", lines[1])
	}
	if !strings.HasSuffix(lines[2], "-") {
		t.Errorf("row 2 should show - for no date, got %q", lines[2])
	}
}

func TestFilterTasks(t *testing.T) {
	tasks := []compliance.Task{
		{StaffID: "a", Urgency: compliance.SeverityCritical},
		{StaffID: "b", Urgency: compliance.SeverityWarning},
		{StaffID: "c", Urgency: compliance.SeverityCritical},
	}

	got := filterTasks(tasks, compliance.SeverityCritical)
	if len(got) != 2 || got[0].StaffID != "a" || got[1].StaffID != "c" {
		t.Errorf("filterTasks(critical) = %+v", got)
	}
	if len(filterTasks(tasks, "")) != 3 {
		t.Error("empty filter should keep all tasks")
	}
	if tasks[1].StaffID != "b" {
		t.Error("filterTasks must not modify its input")
	}
}

func TestTableAlignsWideText(t *testing.T) {
	old := noColor
	noColor = true
	defer func() { noColor = old }()

	tb := table{
		header: []string{"NAME", "X"},
		rows: [][]string{
			{"山田太郎", "1"},
			{"Bob", "2"},
		},
	}
	var buf bytes.Buffer
	tb.write(&buf)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	col := func(line string) int { return lipgloss.Width(line[:strings.LastIndex(line, " ")+1]) }
	if col(lines[1]) != col(lines[2]) || col(lines[0]) != col(lines[1]) {
		t.Errorf("columns misaligned:\n%s", buf.String())
	}
}

func TestRenderDashboard(t *testing.T) {
	old := noColor
	noColor = true
	defer func() { noColor = old }()

	var buf bytes.Buffer
	renderDashboard(&buf, compliance.Dashboard{Active: 5, ExpiringSoon: 2, Critical: 1})
	out := buf.String()
	if !strings.Contains(out, "在籍: 5") {
		t.Errorf("missing active count:\n%s", out)
	}
	if !strings.Contains(out, "緊急タスク: 1") {
		t.Errorf("missing critical count:\n%s", out)
	}
}

func TestRenderStaffStatus(t *testing.T) {
	old := noColor
	noColor = true
	defer func() { noColor = old }()

	st := roster.StaffStatus{
		Staff: storage.Staff{Name: "Tran", Sector: "gaishoku", Status: "active"},
		Status: compliance.Status{
			Phase:           "renewal",
			Urgency:         compliance.SeverityWarning,
			DaysUntilExpiry: 45,
			NextAction:      compliance.ActionStartRenewal,
			Warnings: []compliance.Warning{
				{Severity: compliance.SeverityWarning, Message: "在留期限まで45日"},
			},
		},
	}

	var buf bytes.Buffer
	renderStaffStatus(&buf, st)
	out := buf.String()
	for _, want := range []string{"Name: Tran", "Phase: renewal", "(45 days)", "Next action: start_renewal", "[注意] 在留期限まで45日"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRemindCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /reminders/digest": `{"id":"job-1","status":"queued"}`,
	})
	ts.useClient(t)

	if err := runCLI(t, "remind"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ts.requests) != 1 || ts.requests[0].Path != "/reminders/digest" {
		t.Errorf("requests = %+v", ts.requests)
	}
}

func TestStatusCommand_Running(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status code = %d, want 200", resp.StatusCode)
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	client := ts.client()
	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(criticalStyle, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(403)
		w.Write([]byte(`{"error":{"message":"read-only role","type":"permission_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "viewer-token",
		httpClient: ts.Client(),
	}

	resp, err := client.post(ctx, "/staff", map[string]string{"name": "x"})
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 403 response")
	}
	if !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "read-only role") {
		t.Errorf("error = %q, want status and envelope message", err.Error())
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4000
	cfg.Storage.Driver = "postgres"

	keys := config.ShowAll(cfg)
	if len(keys) == 0 {
		t.Fatal("expected non-empty keys from ShowAll")
	}

	found := map[string]bool{}
	for _, k := range keys {
		found[k.Key+"="+k.Value] = true
	}
	if !found["server.port=4000"] {
		t.Error("expected to find server.port=4000 in ShowAll output")
	}
	if !found["storage.driver=postgres"] {
		t.Error("expected to find storage.driver=postgres in ShowAll output")
	}
}

func TestUrgencyLabel(t *testing.T) {
	tests := []struct {
		in   compliance.Severity
		want string
	}{
		{compliance.SeverityCritical, "緊急"},
		{compliance.SeverityWarning, "注意"},
		{compliance.SeverityNormal, "通常"},
		{"", "通常"},
	}
	for _, tt := range tests {
		if got := urgencyLabel(tt.in); got != tt.want {
			t.Errorf("urgencyLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatDays(t *testing.T) {
	if got := formatDays(compliance.NoDate); got != "-" {
		t.Errorf("formatDays(NoDate) = %q, want -", got)
	}
	if got := formatDays(-7); got != "-7" {
		t.Errorf("formatDays(-7) = %q", got)
	}
}
