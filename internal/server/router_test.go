package server_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/f-sync/followtrack/internal/history"
	"github.com/f-sync/followtrack/internal/importer"
	"github.com/f-sync/followtrack/internal/metrics"
	"github.com/f-sync/followtrack/internal/persistence"
	"github.com/f-sync/followtrack/internal/server"
)

const (
	followersUpload      = `[{"string_list_data":[{"value":"a","href":"https://www.instagram.com/a"}]},{"string_list_data":[{"value":"b","href":"https://www.instagram.com/b"}]}]`
	followingUpload      = `{"relationships_following":[{"string_list_data":[{"value":"c","href":"https://www.instagram.com/c"}]}]}`
	laterFollowersUpload = `[{"string_list_data":[{"value":"a"}]},{"string_list_data":[{"value":"c"}]}]`
	firstTakenAt         = "2024-06-01T08:00:00.000Z"
	secondTakenAt        = "2024-06-08T08:00:00.000Z"
)

var fixedNow = time.Date(2024, time.July, 1, 12, 0, 0, 0, time.UTC)

type snapshotSummary struct {
	TakenAt        string `json:"takenAt"`
	FollowerCount  int    `json:"followers"`
	FollowingCount int    `json:"following"`
}

type historyPayload struct {
	Snapshots []snapshotSummary `json:"snapshots"`
	Warning   string            `json:"warning"`
}

type importPayload struct {
	Outcome   string            `json:"outcome"`
	Snapshot  snapshotSummary   `json:"snapshot"`
	Snapshots []snapshotSummary `json:"snapshots"`
}

type identityPayload struct {
	Username   string `json:"username"`
	ProfileURL string `json:"profileUrl"`
}

type deltaPayload struct {
	Added   []identityPayload `json:"added"`
	Removed []identityPayload `json:"removed"`
	Error   string            `json:"error"`
}

type changesPayload struct {
	Ready     bool         `json:"ready"`
	From      string       `json:"from"`
	To        string       `json:"to"`
	Followers deltaPayload `json:"followers"`
	Following deltaPayload `json:"following"`
}

type analysisPayload struct {
	Ready            bool `json:"ready"`
	NotFollowingBack struct {
		Accounts []identityPayload `json:"accounts"`
	} `json:"notFollowingBack"`
	NotFollowedBack struct {
		Accounts []identityPayload `json:"accounts"`
	} `json:"notFollowedBack"`
}

type overviewPayload struct {
	Ready          bool              `json:"ready"`
	Trend          []snapshotSummary `json:"trend"`
	FollowerGrowth struct {
		Difference int `json:"difference"`
	} `json:"followerGrowth"`
	NotFollowedBack int `json:"notFollowedBack"`
}

type errorPayload struct {
	Error string `json:"error"`
	File  string `json:"file"`
	Index *int   `json:"index"`
}

type testServer struct {
	router *gin.Engine
	store  *history.Store
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	store, err := history.NewStore(history.Config{Persistence: persistence.NewMemoryStore()})
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	snapshotImporter, err := importer.New(importer.Config{Store: store, Recorder: collector})
	if err != nil {
		t.Fatalf("importer.New returned error: %v", err)
	}
	router, err := server.NewRouter(server.RouterConfig{
		Store:    store,
		Importer: snapshotImporter,
		Recorder: collector,
		Gatherer: registry,
		Now:      func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("NewRouter returned error: %v", err)
	}
	return testServer{router: router, store: store}
}

func (testServer testServer) serve(request *http.Request) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	testServer.router.ServeHTTP(recorder, request)
	return recorder
}

func newMultipartRequest(t *testing.T, path string, files map[string]string, fields map[string]string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for fieldName, content := range files {
		part, err := writer.CreateFormFile(fieldName, fieldName+".json")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write([]byte(content)); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	for fieldName, value := range fields {
		if err := writer.WriteField(fieldName, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	request := httptest.NewRequest(http.MethodPost, path, body)
	request.Header.Set("Content-Type", writer.FormDataContentType())
	return request
}

func newImportRequest(t *testing.T, followers string, following string, takenAt string) *http.Request {
	t.Helper()
	fields := map[string]string{}
	if takenAt != "" {
		fields["takenAt"] = takenAt
	}
	return newMultipartRequest(t, "/api/snapshots", map[string]string{"followers": followers, "following": following}, fields)
}

func decodeResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

func TestHealthStatus(t *testing.T) {
	testServer := newTestServer(t)
	recorder := testServer.serve(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if recorder.Code != http.StatusOK || !strings.Contains(recorder.Body.String(), `"ok"`) {
		t.Fatalf("unexpected health response %d %s", recorder.Code, recorder.Body.String())
	}
}

func TestNewRouterRequiresCollaborators(t *testing.T) {
	if _, err := server.NewRouter(server.RouterConfig{}); err == nil {
		t.Fatalf("expected an error without a store")
	}
}

func TestImportFlow(t *testing.T) {
	testServer := newTestServer(t)

	recorder := testServer.serve(newImportRequest(t, followersUpload, followingUpload, firstTakenAt))
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, recorder.Code, recorder.Body.String())
	}
	var created importPayload
	decodeResponse(t, recorder, &created)
	if created.Outcome != "created" || created.Snapshot.TakenAt != firstTakenAt || created.Snapshot.FollowerCount != 2 {
		t.Fatalf("unexpected import response %+v", created)
	}

	recorder = testServer.serve(newImportRequest(t, followersUpload, followingUpload, secondTakenAt))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d for an unchanged import, got %d", http.StatusOK, recorder.Code)
	}
	var unchanged importPayload
	decodeResponse(t, recorder, &unchanged)
	if unchanged.Outcome != "unchanged" || len(unchanged.Snapshots) != 1 {
		t.Fatalf("unexpected unchanged response %+v", unchanged)
	}

	recorder = testServer.serve(httptest.NewRequest(http.MethodGet, "/api/changes", nil))
	var notReady changesPayload
	decodeResponse(t, recorder, &notReady)
	if notReady.Ready {
		t.Fatalf("changes should not be ready with one snapshot")
	}

	recorder = testServer.serve(newImportRequest(t, laterFollowersUpload, followingUpload, secondTakenAt))
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, recorder.Code)
	}

	recorder = testServer.serve(httptest.NewRequest(http.MethodGet, "/api/changes", nil))
	var changes changesPayload
	decodeResponse(t, recorder, &changes)
	if !changes.Ready || changes.From != firstTakenAt || changes.To != secondTakenAt {
		t.Fatalf("unexpected changes header %+v", changes)
	}
	if len(changes.Followers.Removed) != 1 || changes.Followers.Removed[0].Username != "b" {
		t.Fatalf("expected b removed, got %+v", changes.Followers.Removed)
	}
	if len(changes.Followers.Added) != 1 || changes.Followers.Added[0].Username != "c" {
		t.Fatalf("expected c added, got %+v", changes.Followers.Added)
	}

	recorder = testServer.serve(httptest.NewRequest(http.MethodGet, "/api/analysis", nil))
	var analysis analysisPayload
	decodeResponse(t, recorder, &analysis)
	if len(analysis.NotFollowingBack.Accounts) != 0 {
		t.Fatalf("expected nobody not following back, got %+v", analysis.NotFollowingBack.Accounts)
	}
	if len(analysis.NotFollowedBack.Accounts) != 1 || analysis.NotFollowedBack.Accounts[0].Username != "a" {
		t.Fatalf("expected a not followed back, got %+v", analysis.NotFollowedBack.Accounts)
	}

	recorder = testServer.serve(httptest.NewRequest(http.MethodGet, "/api/overview", nil))
	var overview overviewPayload
	decodeResponse(t, recorder, &overview)
	if !overview.Ready || len(overview.Trend) != 2 || overview.FollowerGrowth.Difference != 0 || overview.NotFollowedBack != 1 {
		t.Fatalf("unexpected overview %+v", overview)
	}

	recorder = testServer.serve(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(recorder.Body.String(), `followtrack_imports_total{outcome="unchanged"} 1`) {
		t.Fatalf("metrics missing unchanged import counter:\n%s", recorder.Body.String())
	}
	if !strings.Contains(recorder.Body.String(), "followtrack_history_snapshots 2") {
		t.Fatalf("metrics missing history size gauge:\n%s", recorder.Body.String())
	}

	recorder = testServer.serve(httptest.NewRequest(http.MethodGet, "/", nil))
	if recorder.Code != http.StatusOK || !strings.HasPrefix(recorder.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("unexpected report response %d %q", recorder.Code, recorder.Header().Get("Content-Type"))
	}
	if !strings.Contains(recorder.Body.String(), ">@c</a>") {
		t.Fatalf("report missing the new follower:\n%s", recorder.Body.String())
	}
}

func TestImportRejections(t *testing.T) {
	testCases := []struct {
		name         string
		request      func(t *testing.T) *http.Request
		expectedFile string
	}{
		{
			name: "followers not json",
			request: func(t *testing.T) *http.Request {
				return newImportRequest(t, "{", followingUpload, "")
			},
			expectedFile: "followers",
		},
		{
			name: "following empty after extraction",
			request: func(t *testing.T) *http.Request {
				return newImportRequest(t, followersUpload, `[]`, "")
			},
			expectedFile: "following",
		},
		{
			name: "missing following upload",
			request: func(t *testing.T) *http.Request {
				return newMultipartRequest(t, "/api/snapshots", map[string]string{"followers": followersUpload}, nil)
			},
			expectedFile: "following",
		},
		{
			name: "invalid takenAt",
			request: func(t *testing.T) *http.Request {
				return newImportRequest(t, followersUpload, followingUpload, "yesterday")
			},
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			testServer := newTestServer(t)
			recorder := testServer.serve(testCase.request(t))
			if recorder.Code != http.StatusBadRequest {
				t.Fatalf("expected status %d, got %d", http.StatusBadRequest, recorder.Code)
			}
			var response errorPayload
			decodeResponse(t, recorder, &response)
			if response.File != testCase.expectedFile {
				t.Fatalf("expected file %q, got %q (%s)", testCase.expectedFile, response.File, response.Error)
			}
			if len(testServer.store.Snapshots()) != 0 {
				t.Fatalf("rejected import must not mutate history")
			}
		})
	}
}

func TestImportDefaultsTakenAtToNow(t *testing.T) {
	testServer := newTestServer(t)
	recorder := testServer.serve(newImportRequest(t, followersUpload, followingUpload, ""))
	var created importPayload
	decodeResponse(t, recorder, &created)
	if created.Snapshot.TakenAt != "2024-07-01T12:00:00.000Z" {
		t.Fatalf("expected the current time, got %s", created.Snapshot.TakenAt)
	}
}

func TestChangesBetweenChosenSnapshots(t *testing.T) {
	testServer := newTestServer(t)
	testServer.serve(newImportRequest(t, followersUpload, followingUpload, firstTakenAt))
	testServer.serve(newImportRequest(t, laterFollowersUpload, followingUpload, secondTakenAt))

	recorder := testServer.serve(httptest.NewRequest(http.MethodGet, "/api/changes?from="+secondTakenAt+"&to="+firstTakenAt, nil))
	var reversed changesPayload
	decodeResponse(t, recorder, &reversed)
	if len(reversed.Followers.Added) != 1 || reversed.Followers.Added[0].Username != "b" {
		t.Fatalf("expected b added when diffing backwards, got %+v", reversed.Followers)
	}

	testCases := []struct {
		name           string
		query          string
		expectedStatus int
	}{
		{name: "only from", query: "?from=" + firstTakenAt, expectedStatus: http.StatusBadRequest},
		{name: "unparseable", query: "?from=x&to=" + firstTakenAt, expectedStatus: http.StatusBadRequest},
		{name: "unknown snapshot", query: "?from=" + firstTakenAt + "&to=2020-01-01T00:00:00Z", expectedStatus: http.StatusNotFound},
	}
	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			recorder := testServer.serve(httptest.NewRequest(http.MethodGet, "/api/changes"+testCase.query, nil))
			if recorder.Code != testCase.expectedStatus {
				t.Fatalf("expected status %d, got %d", testCase.expectedStatus, recorder.Code)
			}
		})
	}
}

func TestDeleteAndClear(t *testing.T) {
	testServer := newTestServer(t)
	testServer.serve(newImportRequest(t, followersUpload, followingUpload, firstTakenAt))
	testServer.serve(newImportRequest(t, laterFollowersUpload, followingUpload, secondTakenAt))

	recorder := testServer.serve(httptest.NewRequest(http.MethodDelete, "/api/snapshots/2030-01-01T00:00:00Z", nil))
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected status %d for an unknown snapshot, got %d", http.StatusNotFound, recorder.Code)
	}

	recorder = testServer.serve(httptest.NewRequest(http.MethodDelete, "/api/snapshots/"+firstTakenAt, nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, recorder.Code, recorder.Body.String())
	}
	var remaining historyPayload
	decodeResponse(t, recorder, &remaining)
	if len(remaining.Snapshots) != 1 || remaining.Snapshots[0].TakenAt != secondTakenAt {
		t.Fatalf("unexpected remaining history %+v", remaining)
	}

	recorder = testServer.serve(httptest.NewRequest(http.MethodDelete, "/api/snapshots", nil))
	var cleared historyPayload
	decodeResponse(t, recorder, &cleared)
	if recorder.Code != http.StatusOK || len(cleared.Snapshots) != 0 {
		t.Fatalf("unexpected clear response %d %+v", recorder.Code, cleared)
	}
}

func TestBackupAndRestore(t *testing.T) {
	testServer := newTestServer(t)
	recorder := testServer.serve(httptest.NewRequest(http.MethodGet, "/api/backup", nil))
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected status %d for an empty history, got %d", http.StatusNotFound, recorder.Code)
	}

	testServer.serve(newImportRequest(t, followersUpload, followingUpload, firstTakenAt))
	recorder = testServer.serve(httptest.NewRequest(http.MethodGet, "/api/backup", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}
	if disposition := recorder.Header().Get("Content-Disposition"); disposition != `attachment; filename="instatrack_backup_2024-07-01.json"` {
		t.Fatalf("unexpected disposition %q", disposition)
	}
	backupBlob := recorder.Body.String()
	if !strings.HasPrefix(backupBlob, `[{"date":"`+firstTakenAt+`"`) {
		t.Fatalf("unexpected backup payload %s", backupBlob)
	}

	invalidBackup := `[{"date":"2024-01-01T00:00:00.000Z","followers":[],"following":[]},{"date":"2024-01-02T00:00:00.000Z","following":[]}]`
	recorder = testServer.serve(newMultipartRequest(t, "/api/restore", map[string]string{"backup": invalidBackup}, nil))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, recorder.Code)
	}
	var restoreFailure errorPayload
	decodeResponse(t, recorder, &restoreFailure)
	if restoreFailure.Index == nil || *restoreFailure.Index != 1 {
		t.Fatalf("expected failing index 1, got %+v", restoreFailure)
	}
	if len(testServer.store.Snapshots()) != 1 {
		t.Fatalf("rejected restore must leave history untouched")
	}

	testServer.serve(httptest.NewRequest(http.MethodDelete, "/api/snapshots", nil))
	recorder = testServer.serve(newMultipartRequest(t, "/api/restore", map[string]string{"backup": backupBlob}, nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, recorder.Code, recorder.Body.String())
	}
	var restored historyPayload
	decodeResponse(t, recorder, &restored)
	if len(restored.Snapshots) != 1 || restored.Snapshots[0].TakenAt != firstTakenAt || restored.Snapshots[0].FollowerCount != 2 {
		t.Fatalf("unexpected restored history %+v", restored)
	}
}
