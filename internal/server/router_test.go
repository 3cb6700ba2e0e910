package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/pylaunch/pylaunch/internal/app"
	"github.com/pylaunch/pylaunch/internal/config"
)

func testHandler(t *testing.T) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.DataDir = t.TempDir()
	cfg.VersionTablePath = filepath.Join(cfg.DataDir, "python-versions.json")
	a, err := app.New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(a.Close)
	return NewRouter(a).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestServerStatusWhenIdle(t *testing.T) {
	h := testHandler(t)
	w := do(t, h, http.MethodGet, "/api/v1/server/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d, body = %s", w.Code, w.Body.String())
	}
	var st struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.State != "stopped" {
		t.Fatalf("state = %q", st.State)
	}
}

func TestListRuntimesEmptyCatalog(t *testing.T) {
	h := testHandler(t)
	w := do(t, h, http.MethodGet, "/api/v1/runtimes", "")
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	var cat struct {
		Managed []json.RawMessage `json:"managed"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &cat); err != nil {
		t.Fatalf("body %q: %v", w.Body.String(), err)
	}
	if len(cat.Managed) != 0 {
		t.Fatalf("fresh catalog has %d managed entries", len(cat.Managed))
	}
}

func TestDownloadRejectsBadJSON(t *testing.T) {
	h := testHandler(t)
	w := do(t, h, http.MethodPost, "/api/v1/runtimes/download", "{not json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d", w.Code)
	}
}

func TestDownloadRejectsUnknownVersion(t *testing.T) {
	h := testHandler(t)
	w := do(t, h, http.MethodPost, "/api/v1/runtimes/download", `{"version":"2.7.18"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestDeleteUnknownRuntime(t *testing.T) {
	h := testHandler(t)
	w := do(t, h, http.MethodDelete, "/api/v1/runtimes/3.11.9", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("code = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestSetPreferenceRequiresInstalledRuntime(t *testing.T) {
	h := testHandler(t)
	project := t.TempDir()
	body := `{"path":` + mustJSON(t, project) + `,"version":"3.11.9"}`
	w := do(t, h, http.MethodPut, "/api/v1/projects/preference", body)
	if w.Code != http.StatusNotFound {
		t.Fatalf("code = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestEnvInfoRejectsInvalidPath(t *testing.T) {
	h := testHandler(t)
	w := do(t, h, http.MethodGet, "/api/v1/env/info?path=/definitely/not/there", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestEnvInfoForFreshProject(t *testing.T) {
	h := testHandler(t)
	project := t.TempDir()
	w := do(t, h, http.MethodGet, "/api/v1/env/info?path="+project+"&version=3.11.9", "")
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		RootDir string `json:"rootDir"`
		Exists  bool   `json:"exists"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Exists || resp.RootDir == "" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestEnvInfoWithoutRuntimeSelection(t *testing.T) {
	h := testHandler(t)
	project := t.TempDir()
	w := do(t, h, http.MethodGet, "/api/v1/env/info?path="+project, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestValidateProject(t *testing.T) {
	h := testHandler(t)
	project := t.TempDir()
	w := do(t, h, http.MethodPost, "/api/v1/projects/validate", `{"path":`+mustJSON(t, project)+`}`)
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Path      string `json:"path"`
		ProjectID string `json:"projectId"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Path == "" || len(resp.ProjectID) == 0 {
		t.Fatalf("resp = %+v", resp)
	}

	w = do(t, h, http.MethodPost, "/api/v1/projects/validate", `{"path":"/definitely/not/there"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestStopWhenNothingRuns(t *testing.T) {
	h := testHandler(t)
	w := do(t, h, http.MethodPost, "/api/v1/server/stop", "")
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestStartRejectsUnvalidatedProject(t *testing.T) {
	h := testHandler(t)
	w := do(t, h, http.MethodPost, "/api/v1/server/start", `{"path":"/definitely/not/there"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestSessionLogUnknownID(t *testing.T) {
	h := testHandler(t)
	w := do(t, h, http.MethodGet, "/api/v1/sessions/999/log", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("code = %d, body = %s", w.Code, w.Body.String())
	}
	w = do(t, h, http.MethodGet, "/api/v1/sessions/notanumber/log", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestSessionsOnFreshStore(t *testing.T) {
	h := testHandler(t)
	w := do(t, h, http.MethodGet, "/api/v1/sessions", "")
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d, body = %s", w.Code, w.Body.String())
	}
}

func mustJSON(t *testing.T, s string) string {
	t.Helper()
	b, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}
