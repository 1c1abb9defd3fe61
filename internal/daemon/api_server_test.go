package daemon

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"folderexport/internal/api"
	"folderexport/internal/queue"
	"folderexport/internal/testsupport"
)

func (s *stack) do(t *testing.T, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.daemon.api.handler.ServeHTTP(w, req)
	return w
}

func decodeJSON[T any](t *testing.T, body []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	return out
}

func TestExportRoundTripOverHTTP(t *testing.T) {
	s := newStack(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.daemon.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	base := "http://" + s.daemon.Status(ctx).APIAddress + "/api/v1"

	req, _ := http.NewRequest(http.MethodPost, base+"/exports", strings.NewReader(`{"folder_id": 2}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(userIDHeader, "42")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, body)
	}
	submitted := decodeJSON[api.JobView](t, body)
	if submitted.UserID != 42 || !submitted.IncludeChildren || !submitted.IncludeManifest {
		t.Fatalf("unexpected submission: %+v", submitted)
	}

	var view api.JobView
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(base + "/exports/" + submitted.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		view = decodeJSON[api.JobView](t, body)
		if view.IsTerminal() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not finish: %+v", view)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if view.Status != string(queue.StatusComplete) || view.Progress != 2 || view.Total != 2 {
		t.Fatalf("unexpected final view: %+v", view)
	}
	if !strings.HasPrefix(view.DownloadURL, "/api/v1/exports/") {
		t.Fatalf("unexpected download url %q", view.DownloadURL)
	}

	resp, err = http.Get("http://" + s.daemon.Status(ctx).APIAddress + view.DownloadURL)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/zip" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != `attachment; filename="`+view.ArtifactName+`"` {
		t.Fatalf("unexpected content disposition %q", cd)
	}
	if resp.Header.Get("Cache-Control") != "no-cache" {
		t.Fatalf("missing cache control header")
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	for _, want := range []string{"Clients/Acme-Corp/logo.png", "Clients/Acme-Corp/brief.pdf", "manifest.csv"} {
		if !names[want] {
			t.Fatalf("missing %s in %v", want, names)
		}
	}

	delReq, _ := http.NewRequest(http.MethodDelete, base+"/exports/"+view.ID, nil)
	resp, err = http.DefaultClient.Do(delReq)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on delete, got %d", resp.StatusCode)
	}
	resp, err = http.Get(base + "/exports/" + view.ID)
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestSubmitErrors(t *testing.T) {
	s := newStack(t, false)

	cases := []struct {
		name   string
		body   string
		header map[string]string
		status int
		code   string
	}{
		{"malformed body", `{"folder_id":`, nil, http.StatusBadRequest, "validation"},
		{"empty body", ``, nil, http.StatusBadRequest, "validation"},
		{"zero folder", `{"folder_id": 0}`, nil, http.StatusBadRequest, "validation"},
		{"unknown folder", `{"folder_id": 99}`, nil, http.StatusNotFound, "invalid_folder"},
		{"bad user header", `{"folder_id": 2}`, map[string]string{userIDHeader: "abc"}, http.StatusBadRequest, "validation"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/v1/exports", tc.body, tc.header)
			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, w.Code, w.Body.String())
			}
			resp := decodeJSON[errorResponse](t, w.Body.Bytes())
			if resp.Code != tc.code || resp.Error == "" {
				t.Fatalf("unexpected error body: %+v", resp)
			}
		})
	}

	w := s.do(t, http.MethodPost, "/api/v1/exports", `{"folder_id": 0}`, nil)
	resp := decodeJSON[errorResponse](t, w.Body.Bytes())
	if _, ok := resp.Fields["folder_id"]; !ok {
		t.Fatalf("expected folder_id field error, got %+v", resp)
	}
}

func TestListAndGet(t *testing.T) {
	s := newStack(t, false)
	for i := 0; i < 3; i++ {
		if w := s.do(t, http.MethodPost, "/api/v1/exports", `{"folder_id": 2, "include_manifest": false}`, nil); w.Code != http.StatusCreated {
			t.Fatalf("submit %d: %d %s", i, w.Code, w.Body.String())
		}
	}

	w := s.do(t, http.MethodGet, "/api/v1/exports?limit=2", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d", w.Code)
	}
	list := decodeJSON[map[string][]api.JobView](t, w.Body.Bytes())
	if len(list["exports"]) != 2 {
		t.Fatalf("expected 2 exports, got %d", len(list["exports"]))
	}
	first := list["exports"][0]
	if first.Status != "pending" || first.IncludeManifest {
		t.Fatalf("unexpected job: %+v", first)
	}

	if w := s.do(t, http.MethodGet, "/api/v1/exports?limit=abc", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", w.Code)
	}

	w = s.do(t, http.MethodGet, "/api/v1/exports/"+first.ID, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: %d", w.Code)
	}
	if got := decodeJSON[api.JobView](t, w.Body.Bytes()); got.ID != first.ID {
		t.Fatalf("unexpected job %+v", got)
	}
	if w := s.do(t, http.MethodGet, "/api/v1/exports/missing", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestDownloadStatusCodes(t *testing.T) {
	s := newStack(t, false)

	pending := testsupport.MustCreateJob(t, s.store, 2)
	if w := s.do(t, http.MethodGet, "/api/v1/exports/"+pending.ID+"/download", "", nil); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for pending job, got %d", w.Code)
	}

	expired := testsupport.MustCreateJob(t, s.store, 2)
	testsupport.MustCompleteJob(t, s.store, expired, queue.Artifact{
		Path: filepath.Join(s.cfg.Paths.ExportDir, "gone.zip"),
		Name: "gone.zip",
	})
	w := s.do(t, http.MethodGet, "/api/v1/exports/"+expired.ID+"/download", "", nil)
	if w.Code != http.StatusGone {
		t.Fatalf("expected 410 for missing artifact, got %d", w.Code)
	}
	if resp := decodeJSON[errorResponse](t, w.Body.Bytes()); resp.Code != "gone" || strings.Contains(resp.Error, s.cfg.Paths.ExportDir) {
		t.Fatalf("unexpected error body: %+v", resp)
	}

	if w := s.do(t, http.MethodGet, "/api/v1/exports/nope/download", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := newStack(t, false)
	job := testsupport.MustCreateJob(t, s.store, 2)
	for i := 0; i < 2; i++ {
		w := s.do(t, http.MethodDelete, "/api/v1/exports/"+job.ID, "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("delete %d: %d", i, w.Code)
		}
		if got := decodeJSON[map[string]bool](t, w.Body.Bytes()); !got["deleted"] {
			t.Fatalf("unexpected body %v", got)
		}
	}
}

func TestFoldersAndStatusRoutes(t *testing.T) {
	s := newStack(t, false)
	testsupport.MustCreateJob(t, s.store, 2)

	w := s.do(t, http.MethodGet, "/api/v1/folders", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("folders: %d", w.Code)
	}
	folders := decodeJSON[map[string][]api.FolderView](t, w.Body.Bytes())["folders"]
	if len(folders) != 2 {
		t.Fatalf("expected 2 folders, got %+v", folders)
	}
	paths := map[int64]string{}
	for _, f := range folders {
		paths[f.ID] = f.Path
	}
	if paths[2] != "Clients / Acme Corp" {
		t.Fatalf("unexpected folder paths %v", paths)
	}

	w = s.do(t, http.MethodGet, "/api/v1/status", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	status := decodeJSON[statusResponse](t, w.Body.Bytes())
	if status.Running || status.StoreBackend != "sqlite" {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.QueueStats["pending"] != 1 || status.QueueStats["complete"] != 0 {
		t.Fatalf("unexpected queue stats %v", status.QueueStats)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newStack(t, false)
	w := s.do(t, http.MethodOptions, "/api/v1/exports", "", map[string]string{
		"Origin":                        "https://app.example.com",
		"Access-Control-Request-Method": http.MethodPost,
	})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("expected allowed origin, got %q (status %d)", got, w.Code)
	}

	w = s.do(t, http.MethodGet, "/api/v1/status", "", map[string]string{"Origin": "https://evil.example.com"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow origin for foreign site: %q", got)
	}
}
