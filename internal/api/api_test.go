package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avesia/backend/internal/data"
	"github.com/avesia/backend/internal/nodes"
	"github.com/avesia/backend/internal/results"
	"github.com/avesia/backend/internal/tokens"
	"github.com/avesia/backend/internal/vision"
)

type testEnv struct {
	router   http.Handler
	mock     sqlmock.Sqlmock
	db       *sql.DB
	buffer   *results.Buffer
	tokens   *tokens.Manager
	clipDir  string
	nodesLoc string
}

func newTestEnv(t *testing.T, visionURL string) *testEnv {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	dir := t.TempDir()
	clipDir := filepath.Join(dir, "clips")
	require.NoError(t, os.MkdirAll(clipDir, 0o755))
	nodesPath := filepath.Join(dir, "nodes.json")

	buffer := results.NewBuffer(10)
	svc := results.NewService(buffer, nil, nil, nil)

	tokenMgr := tokens.NewManager("test-secret", time.Hour)
	projects := &data.ProjectModel{DB: db}
	clipModel := &data.ClipModel{DB: db}
	registry := nodes.NewRegistry(nil)

	var visionClient *vision.Client
	if visionURL != "" {
		visionClient = vision.NewClient(visionURL)
	} else {
		visionClient = vision.NewClient("http://127.0.0.1:1")
	}

	router := NewRouter(Handlers{
		Results:  NewResultsHandler(svc, NewStreamHub()),
		Projects: NewProjectHandler(projects, clipModel),
		Clips:    NewClipHandler(clipModel, projects, tokenMgr, clipDir),
		Nodes:    NewNodesHandler(nodesPath, registry, visionClient),
		Vision:   NewVisionHandler(visionClient),
		Health:   NewHealthHandler(db, nil, nil),
	})

	return &testEnv{
		router:   router,
		mock:     mock,
		db:       db,
		buffer:   buffer,
		tokens:   tokenMgr,
		clipDir:  clipDir,
		nodesLoc: nodesPath,
	}
}

func TestIngestAlwaysAcks(t *testing.T) {
	env := newTestEnv(t, "")

	for _, body := range []string{
		`{"result": "{\"has_person\": true}", "timestamp": "2026-08-30T12:00:00Z", "prompt": "is there a person?", "project_id": "p1"}`,
		`{"project_id": "p1", "has_person": true}`,
		`plain text from the model`,
		`{"broken json`,
		``,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/results", strings.NewReader(body))
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, true, resp["success"])
		assert.Equal(t, "Result received", resp["message"])
	}

	assert.Equal(t, 5, env.buffer.Len())

	// The envelope body is unwrapped: the detection field comes from the
	// result string, the metadata from the envelope itself.
	unwrapped := env.buffer.Recent(0)[4]
	assert.Equal(t, true, unwrapped.Structured["has_person"])
	assert.Equal(t, "p1", unwrapped.ProjectID)
	assert.Equal(t, "is there a person?", unwrapped.Prompt)
	assert.Equal(t, time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC), unwrapped.OccurredAt)
}

func TestRecentResults(t *testing.T) {
	env := newTestEnv(t, "")

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/results", strings.NewReader(`{"n": 1}`))
		env.router.ServeHTTP(httptest.NewRecorder(), req)
	}

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/results?limit=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Count   int                       `json:"count"`
		Results []results.DetectionResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)

	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/results?limit=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLatestFallsBackToBuffer(t *testing.T) {
	env := newTestEnv(t, "")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/results", strings.NewReader(`{"project_id": "p1", "x": true}`))
	env.router.ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/results/latest?project_id=p1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var res results.DetectionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "p1", res.ProjectID)

	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/results/latest?project_id=other", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClipServingTokenGate(t *testing.T) {
	env := newTestEnv(t, "")

	clipID := uuid.New()
	filename := clipID.String() + ".mp4"
	require.NoError(t, os.WriteFile(filepath.Join(env.clipDir, filename), []byte("mp4data"), 0o644))

	token, err := env.tokens.GenerateClipToken(clipID.String(), uuid.New().String())
	require.NoError(t, err)

	t.Run("valid token serves the file", func(t *testing.T) {
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/clips/"+clipID.String()+"/"+filename+"?token="+token, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "mp4data", rec.Body.String())
	})

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/clips/"+clipID.String()+"/"+filename, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("token for another clip", func(t *testing.T) {
		otherID := uuid.New()
		otherFile := otherID.String() + ".mp4"
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/clips/"+otherID.String()+"/"+otherFile+"?token="+token, nil))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("path traversal shape rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/clips/"+clipID.String()+"/evil.sh?token="+token, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestProjectEndpointsRequireUser(t *testing.T) {
	env := newTestEnv(t, "")

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/projects/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/projects/", strings.NewReader(`{"name": "x"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProjectCreate(t *testing.T) {
	env := newTestEnv(t, "")

	id := uuid.New()
	now := time.Now()
	env.mock.ExpectQuery("INSERT INTO projects").
		WithArgs("user-1", "Front Door").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(id.String(), now, now))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects/", strings.NewReader(`{"name": "Front Door"}`))
	req.Header.Set("X-User-Id", "user-1")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var p data.Project
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, id, p.ID)
	assert.Equal(t, "Front Door", p.Name)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestAnalyticsEvents(t *testing.T) {
	env := newTestEnv(t, "")

	projectID := uuid.New()
	clipID := uuid.New()
	ts := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	env.mock.ExpectQuery("SELECT (.+) FROM projects").
		WithArgs(projectID, "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "created_at", "updated_at"}).
			AddRow(projectID.String(), "user-1", "Front Door", ts, ts))

	cols := []string{
		"id", "project_id", "listener_id", "event_timestamp", "video_id",
		"filename", "duration_seconds", "event_type", "email_sent_to", "created_at",
	}
	env.mock.ExpectQuery("SELECT (.+) FROM video_clips").
		WithArgs(projectID).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(clipID.String(), projectID.String(), "has_person", ts, nil, clipID.String()+".mp4", 5.0, data.ClipEmailAlert, "ops@example.com", ts))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects/"+projectID.String()+"/analytics/events", nil)
	req.Header.Set("X-User-Id", "user-1")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Events []analyticsEvent `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 1)

	evt := resp.Events[0]
	assert.Equal(t, clipID.String(), evt.ID)
	assert.Equal(t, clipID.String(), evt.ClipID)
	assert.Equal(t, data.ClipEmailAlert, evt.Type)
	assert.Equal(t, "2026-08-30T12:00:00.000Z", evt.Timestamp)
	assert.Equal(t, "has_person", evt.ListenerID)
	require.NotNil(t, evt.EmailSentTo)
	assert.Equal(t, "ops@example.com", *evt.EmailSentTo)
	assert.Nil(t, evt.VideoID)
}

func TestNodesPutAndGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	env := newTestEnv(t, srv.URL)

	body := `[{"id": "has_person", "name": "Person", "datatype": "boolean",
		"events": [{"action": "notify", "channel": "Email", "recipient": "ops@example.com"}]}]`

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/v1/nodes", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var putResp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &putResp))
	assert.Equal(t, float64(1), putResp["count"])
	assert.Equal(t, true, putResp["visionPush"])

	// Persisted to disk.
	saved, err := os.ReadFile(env.nodesLoc)
	require.NoError(t, err)
	assert.Contains(t, string(saved), "has_person")

	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/nodes", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var getResp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &getResp))
	assert.Equal(t, "Goal: Person, Constraints: none", getResp["prompt"])
}

func TestNodesPutRejectsInvalid(t *testing.T) {
	env := newTestEnv(t, "")

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/v1/nodes", strings.NewReader(`[{"datatype": "boolean"}]`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, err := os.Stat(env.nodesLoc)
	assert.True(t, os.IsNotExist(err), "invalid config must not be persisted")
}

func TestVisionProxyUnavailable(t *testing.T) {
	env := newTestEnv(t, "")

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/vision/prompt", strings.NewReader(`{"prompt": "watch"}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/vision/control", strings.NewReader(`{"action": "start"}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/vision/control", strings.NewReader(`{"action": "reboot"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLiveness(t *testing.T) {
	env := newTestEnv(t, "")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
