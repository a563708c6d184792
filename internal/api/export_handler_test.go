package api

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/reelkit/reelkit-agent/internal/export"
	"github.com/reelkit/reelkit-agent/internal/project"
)

// waitForPhase polls the job state machine until it reaches the phase, or
// fails the test if the run errors out or stalls.
func waitForPhase(t *testing.T, env *apiEnv, phase string) export.State {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		s := env.exports.State()
		if s.Phase == phase {
			return s
		}
		if s.Phase == export.PhaseIdle && s.Error != "" {
			t.Fatalf("export failed while waiting for %s: %s", phase, s.Error)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for phase %s, still at %s", phase, env.exports.State().Phase)
	return export.State{}
}

func signIn(t *testing.T, env *apiEnv) {
	t.Helper()
	resp := env.do(t, http.MethodPost, "/auth/token", AuthTokenRequest{AccessToken: "cloud-credential"})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("sign in status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
}

func TestGetSettings_Defaults(t *testing.T) {
	env := setupAPIEnv(t)

	resp := env.do(t, http.MethodGet, "/projects/"+env.proj.ID+"/settings", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body := decodeJSON(t, resp)
	if body["format"] != export.FormatMp4 {
		t.Errorf("format = %v, want mp4", body["format"])
	}
	if fps, ok := body["fps"].(float64); !ok || fps != 30 {
		t.Errorf("fps = %v, want 30", body["fps"])
	}
	if body["destination"] != export.DestinationFile {
		t.Errorf("destination = %v, want file", body["destination"])
	}

	res, ok := body["resolution_base"].(map[string]interface{})
	if !ok {
		t.Fatalf("resolution_base missing: %v", body)
	}
	if w, _ := res["width"].(float64); w != 1920 {
		t.Errorf("width = %v, want 1920 (sized from the recording)", res["width"])
	}
}

func TestPutSettings_NormalizesAndPersists(t *testing.T) {
	env := setupAPIEnv(t)

	// GIF cannot be shared as a link, and 18fps is not an MP4 rate: both
	// get coerced rather than rejected.
	put := export.Settings{
		Format:      export.FormatGif,
		FPS:         18,
		Resolution:  export.Resolution{Width: 1920, Height: 1080},
		Compression: export.CompressionWeb,
		Destination: export.DestinationLink,
	}
	resp := env.do(t, http.MethodPut, "/projects/"+env.proj.ID+"/settings", put)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body := decodeJSON(t, resp)
	if body["format"] != export.FormatMp4 {
		t.Errorf("format = %v, want mp4 after link coercion", body["format"])
	}
	if fps, _ := body["fps"].(float64); fps != 15 {
		t.Errorf("fps = %v, want 15 (nearest allowed)", body["fps"])
	}

	stored := decodeJSON(t, env.do(t, http.MethodGet, "/projects/"+env.proj.ID+"/settings", nil))
	if stored["format"] != export.FormatMp4 {
		t.Errorf("stored format = %v, want mp4", stored["format"])
	}
	if stored["destination"] != export.DestinationLink {
		t.Errorf("stored destination = %v, want link", stored["destination"])
	}
}

func TestPutSettings_InvalidRejected(t *testing.T) {
	env := setupAPIEnv(t)

	resp := env.do(t, http.MethodPut, "/projects/"+env.proj.ID+"/settings",
		map[string]interface{}{"format": "webm"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}

	body := decodeJSON(t, resp)
	if body["code"] != "INVALID_SETTINGS" {
		t.Errorf("code = %v, want INVALID_SETTINGS", body["code"])
	}
}

func TestEstimates_StoredSettings(t *testing.T) {
	env := setupAPIEnv(t)

	resp := env.do(t, http.MethodGet, "/projects/"+env.proj.ID+"/estimates", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body := decodeJSON(t, resp)
	if dur, _ := body["duration_seconds"].(float64); dur != 3 {
		t.Errorf("duration_seconds = %v, want 3", body["duration_seconds"])
	}
	if frames, _ := body["total_frames"].(float64); frames != 90 {
		t.Errorf("total_frames = %v, want 90 (3s at default 30fps)", body["total_frames"])
	}
	if size, _ := body["estimated_size_mb"].(float64); size <= 0 {
		t.Errorf("estimated_size_mb = %v, want positive", body["estimated_size_mb"])
	}
}

func TestEstimates_QueryOverrides(t *testing.T) {
	env := setupAPIEnv(t)

	body := decodeJSON(t, env.do(t, http.MethodGet,
		"/projects/"+env.proj.ID+"/estimates?fps=60&width=1280&height=720", nil))
	if frames, _ := body["total_frames"].(float64); frames != 180 {
		t.Errorf("total_frames = %v, want 180 (3s at 60fps)", body["total_frames"])
	}
}

func TestEstimates_BadOverrides(t *testing.T) {
	env := setupAPIEnv(t)

	cases := []struct {
		name  string
		query string
	}{
		{"non-numeric fps", "?fps=fast"},
		{"zero width", "?width=0"},
		{"bpp above range", "?bpp=1.5"},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodGet, "/projects/"+env.proj.ID+"/estimates"+tt.query, nil)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
			}
		})
	}
}

func TestEligibility_NotAuthenticated(t *testing.T) {
	env := setupAPIEnv(t)

	resp := env.do(t, http.MethodGet, "/projects/"+env.proj.ID+"/eligibility", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body := decodeJSON(t, resp)
	if body["allowed"] != false {
		t.Errorf("allowed = %v, want false", body["allowed"])
	}
	if body["reason"] != export.ReasonNotAuthenticated {
		t.Errorf("reason = %v, want %s", body["reason"], export.ReasonNotAuthenticated)
	}
}

func TestEligibility_ShortRecordingAllowed(t *testing.T) {
	env := setupAPIEnv(t)
	signIn(t, env)

	body := decodeJSON(t, env.do(t, http.MethodGet, "/projects/"+env.proj.ID+"/eligibility", nil))
	if body["allowed"] != true {
		t.Errorf("allowed = %v, want true for a short recording", body["allowed"])
	}
}

func TestEligibility_UpgradeRequired(t *testing.T) {
	env := setupAPIEnv(t)
	long := seedProject(t, env, "feature-length.cap", 400)
	signIn(t, env)

	body := decodeJSON(t, env.do(t, http.MethodGet, "/projects/"+long.ID+"/eligibility", nil))
	if body["allowed"] != false {
		t.Errorf("allowed = %v, want false past the duration threshold", body["allowed"])
	}
	if body["reason"] != export.ReasonUpgradeRequired {
		t.Errorf("reason = %v, want %s", body["reason"], export.ReasonUpgradeRequired)
	}
}

func TestExportLifecycle_FileDestination(t *testing.T) {
	env := setupAPIEnv(t)
	savePath := filepath.Join(env.tmp, "final.mp4")

	resp := env.do(t, http.MethodPost, "/projects/"+env.proj.ID+"/export",
		ExportStartRequest{SavePath: savePath})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("start status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}
	started := decodeJSON(t, resp)
	exportID, _ := started["export_id"].(string)
	if exportID == "" {
		t.Fatal("export_id missing from start response")
	}

	// The slot stays occupied until the Done surface is dismissed, so a
	// second start is rejected no matter how far the first has progressed.
	resp = env.do(t, http.MethodPost, "/projects/"+env.proj.ID+"/export",
		ExportStartRequest{SavePath: filepath.Join(env.tmp, "second.mp4")})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("concurrent start status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}
	if body := decodeJSON(t, resp); body["code"] != "EXPORT_IN_PROGRESS" {
		t.Errorf("code = %v, want EXPORT_IN_PROGRESS", body["code"])
	}

	done := waitForPhase(t, env, export.PhaseDone)
	if done.ExportID != exportID {
		t.Errorf("done export id = %s, want %s", done.ExportID, exportID)
	}
	if done.OutputPath != savePath {
		t.Errorf("output path = %s, want %s", done.OutputPath, savePath)
	}

	content, err := os.ReadFile(savePath)
	if err != nil {
		t.Fatalf("artifact not saved: %v", err)
	}
	if len(content) == 0 {
		t.Error("saved artifact is empty")
	}

	state := decodeJSON(t, env.do(t, http.MethodGet, "/export", nil))
	if state["phase"] != export.PhaseDone {
		t.Errorf("phase over http = %v, want done", state["phase"])
	}
	if state["output_path"] != savePath {
		t.Errorf("output_path over http = %v, want %s", state["output_path"], savePath)
	}

	resp = env.do(t, http.MethodPost, "/export/dismiss", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("dismiss status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	if got := env.exports.State().Phase; got != export.PhaseIdle {
		t.Errorf("phase after dismiss = %s, want idle", got)
	}
}

func TestExportStart_NoSavePath(t *testing.T) {
	env := setupAPIEnv(t)

	resp := env.do(t, http.MethodPost, "/projects/"+env.proj.ID+"/export", ExportStartRequest{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}

	body := decodeJSON(t, resp)
	if body["code"] != "INVALID_SETTINGS" {
		t.Errorf("code = %v, want INVALID_SETTINGS", body["code"])
	}
	if !strings.Contains(body["error"].(string), "no save path") {
		t.Errorf("error = %v, want save path complaint", body["error"])
	}
}

func TestExportStart_LinkRequiresAuth(t *testing.T) {
	env := setupAPIEnv(t)

	settings := export.Settings{
		Format:      export.FormatMp4,
		FPS:         30,
		Resolution:  export.Resolution{Width: 1920, Height: 1080},
		Compression: export.CompressionWeb,
		Destination: export.DestinationLink,
	}
	resp := env.do(t, http.MethodPost, "/projects/"+env.proj.ID+"/export",
		ExportStartRequest{Settings: &settings})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}

	body := decodeJSON(t, resp)
	if body["code"] != "NOT_AUTHENTICATED" {
		t.Errorf("code = %v, want NOT_AUTHENTICATED", body["code"])
	}
}

func TestExportLifecycle_LinkDestination(t *testing.T) {
	env := setupAPIEnv(t)
	signIn(t, env)

	settings := export.Settings{
		Format:      export.FormatMp4,
		FPS:         30,
		Resolution:  export.Resolution{Width: 1920, Height: 1080},
		Compression: export.CompressionWeb,
		Destination: export.DestinationLink,
	}
	resp := env.do(t, http.MethodPost, "/projects/"+env.proj.ID+"/export",
		ExportStartRequest{Settings: &settings})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("start status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}

	done := waitForPhase(t, env, export.PhaseDone)
	if done.ShareURL == "" {
		t.Fatal("done state missing share url")
	}

	ctx := context.Background()
	link, err := env.repo.LatestShareLink(ctx)
	if err != nil || link == nil {
		t.Fatalf("LatestShareLink() = %v, %v, want a record", link, err)
	}
	if link.URL != done.ShareURL {
		t.Errorf("recorded link = %s, want %s", link.URL, done.ShareURL)
	}
	if link.ProjectID != env.proj.ID {
		t.Errorf("link project = %s, want %s", link.ProjectID, env.proj.ID)
	}

	stored, err := env.svc.GetProject(ctx, env.proj.ID)
	if err != nil {
		t.Fatalf("GetProject() error = %v", err)
	}
	if stored.Meta == nil || stored.Meta.Sharing == nil || stored.Meta.Sharing.Link != done.ShareURL {
		t.Errorf("sharing meta not updated, got %+v", stored.Meta)
	}

	proj := decodeJSON(t, env.do(t, http.MethodGet, "/projects/"+env.proj.ID, nil))
	if proj["shared_url"] != done.ShareURL {
		t.Errorf("shared_url = %v, want %s", proj["shared_url"], done.ShareURL)
	}
}

func TestExportCancel(t *testing.T) {
	env := setupAPIEnv(t)
	// Slow the simulated render down so the cancel lands mid-run.
	env.stub.FrameDelay = 25 * time.Millisecond
	savePath := filepath.Join(env.tmp, "cancelled.mp4")

	resp := env.do(t, http.MethodPost, "/projects/"+env.proj.ID+"/export",
		ExportStartRequest{SavePath: savePath})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("start status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}
	started := decodeJSON(t, resp)
	exportID, _ := started["export_id"].(string)

	resp = env.do(t, http.MethodPost, "/export/cancel", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("cancel status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}

	state := env.exports.State()
	if state.Phase != export.PhaseIdle {
		t.Fatalf("phase after cancel = %s, want idle", state.Phase)
	}
	if state.Error != "" {
		t.Errorf("cancel surfaced an error: %s", state.Error)
	}

	// The run goroutine unwinds asynchronously; wait for the record to be
	// marked cancelled.
	deadline := time.Now().Add(5 * time.Second)
	for {
		records, err := env.repo.ListExportsByProject(context.Background(), env.proj.ID)
		if err != nil {
			t.Fatalf("ListExportsByProject() error = %v", err)
		}
		if len(records) == 1 && records[0].ID == exportID &&
			records[0].Status == project.ExportStatusCancelled {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("export record not marked cancelled, records = %+v", records)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := os.Stat(savePath); !os.IsNotExist(err) {
		t.Errorf("cancelled export should not produce %s", savePath)
	}
}
