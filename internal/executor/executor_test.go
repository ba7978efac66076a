package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/mentxia/mordomo/internal/config"
	"github.com/mentxia/mordomo/internal/cron"
	"github.com/mentxia/mordomo/internal/hass"
	"github.com/mentxia/mordomo/internal/types"
)

// fakeHA is a minimal Home Assistant REST stand-in that records the
// requests it receives.
type fakeHA struct {
	mu       sync.Mutex
	requests []string
	server   *httptest.Server
}

func newFakeHA(t *testing.T) *fakeHA {
	t.Helper()
	f := &fakeHA{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, r.Method+" "+r.URL.Path)
		f.mu.Unlock()

		switch {
		case r.URL.Path == "/api/states/sensor.temperatura_sala":
			json.NewEncoder(w).Encode(map[string]any{
				"entity_id": "sensor.temperatura_sala",
				"state":     "21.5",
				"attributes": map[string]any{
					"friendly_name":       "Temperatura Sala",
					"unit_of_measurement": "°C",
				},
			})
		case r.URL.Path == "/api/states/light.inexistente":
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"message": "Entity not found."})
		case r.URL.Path == "/api/states":
			json.NewEncoder(w).Encode([]map[string]any{
				{"entity_id": "light.sala", "state": "on", "attributes": map[string]any{"friendly_name": "Luz da Sala"}},
				{"entity_id": "light.cozinha", "state": "off", "attributes": map[string]any{"friendly_name": "Luz da Cozinha"}},
				{"entity_id": "sensor.humidade", "state": "55", "attributes": map[string]any{"friendly_name": "Humidade", "unit_of_measurement": "%"}},
			})
		case strings.HasPrefix(r.URL.Path, "/api/services/"):
			w.Write([]byte(`[]`))
		case strings.HasPrefix(r.URL.Path, "/api/config/automation/config/"):
			json.NewEncoder(w).Encode(map[string]string{"result": "ok"})
		default:
			w.Write([]byte(`{}`))
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeHA) saw(fragment string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if strings.Contains(r, fragment) {
			return true
		}
	}
	return false
}

func newTestExecutor(t *testing.T) (*Executor, *fakeHA, *cron.Service) {
	t.Helper()
	ha := newFakeHA(t)
	client, err := hass.NewClient(config.HomeAssistantConfig{URL: ha.server.URL, Token: "test-token"})
	if err != nil {
		t.Fatal(err)
	}
	store := cron.NewStore(filepath.Join(t.TempDir(), "jobs.json"))
	if err := store.Load(); err != nil {
		t.Fatal(err)
	}
	svc := cron.NewService(store)
	exec := New(client, svc)
	svc.SetRunner(exec)
	return exec, ha, svc
}

func call(kind, params string) types.ToolCall {
	return types.ToolCall{ID: "tc1", Kind: kind, Params: []byte(params)}
}

func TestServiceCall(t *testing.T) {
	exec, ha, _ := newTestExecutor(t)

	res := exec.Execute(context.Background(), call(types.KindServiceCall,
		`{"domain":"light","service":"turn_on","entity_id":"light.sala"}`))
	if !res.Success {
		t.Fatalf("failed: %s (%s)", res.Summary, res.Error)
	}
	if !strings.Contains(res.Summary, "light.turn_on") || !strings.Contains(res.Summary, "light.sala") {
		t.Errorf("summary = %q", res.Summary)
	}
	if !ha.saw("POST /api/services/light/turn_on") {
		t.Error("service call never reached the control plane")
	}
	if res.CallID != "tc1" {
		t.Errorf("CallID = %q", res.CallID)
	}
}

func TestServiceCallMissingFields(t *testing.T) {
	exec, ha, _ := newTestExecutor(t)

	res := exec.Execute(context.Background(), call(types.KindServiceCall, `{"domain":"light"}`))
	if res.Success {
		t.Fatal("accepted call without service")
	}
	if ha.saw("/api/services/") {
		t.Error("invalid call reached the control plane")
	}
}

func TestQueryStateWithUnit(t *testing.T) {
	exec, _, _ := newTestExecutor(t)

	res := exec.Execute(context.Background(), call(types.KindQueryState,
		`{"entity_id":"sensor.temperatura_sala"}`))
	if !res.Success {
		t.Fatalf("failed: %s", res.Error)
	}
	if res.Summary != "Temperatura Sala: 21.5 °C" {
		t.Errorf("summary = %q", res.Summary)
	}
}

func TestQueryStateUnknownEntity(t *testing.T) {
	exec, _, _ := newTestExecutor(t)

	res := exec.Execute(context.Background(), call(types.KindQueryState,
		`{"entity_id":"light.inexistente"}`))
	if res.Success {
		t.Fatal("unknown entity reported success")
	}
	if res.Error == "" {
		t.Error("raw error missing")
	}
}

func TestQueryAllStates(t *testing.T) {
	exec, _, _ := newTestExecutor(t)

	res := exec.Execute(context.Background(), call(types.KindQueryState, `{}`))
	if !res.Success {
		t.Fatalf("failed: %s", res.Error)
	}
	if !strings.Contains(res.Summary, "Luz da Sala: on") {
		t.Errorf("summary = %q", res.Summary)
	}
	if !strings.Contains(res.Summary, "Humidade: 55 %") {
		t.Errorf("summary = %q", res.Summary)
	}
}

func TestQueryStatesByDomain(t *testing.T) {
	exec, _, _ := newTestExecutor(t)

	res := exec.Execute(context.Background(), call(types.KindQueryState, `{"domain":"light"}`))
	if !res.Success {
		t.Fatalf("failed: %s", res.Error)
	}
	if !strings.Contains(res.Summary, "Luz da Sala") || !strings.Contains(res.Summary, "Luz da Cozinha") {
		t.Errorf("summary = %q", res.Summary)
	}
	if strings.Contains(res.Summary, "Humidade") {
		t.Errorf("other domains leaked into the listing: %q", res.Summary)
	}

	res = exec.Execute(context.Background(), call(types.KindQueryState, `{"domain":"vacuum"}`))
	if !res.Success || !strings.Contains(res.Summary, "Nenhuma entidade no dominio vacuum") {
		t.Errorf("empty domain summary = %q", res.Summary)
	}
}

func TestCreateAutomationValidatesBeforeSubmission(t *testing.T) {
	exec, ha, _ := newTestExecutor(t)

	res := exec.Execute(context.Background(), call(types.KindCreateAutomation,
		`{"alias":"teste","trigger":{"platform":"state","entity_id":"sun.sun"}}`))
	if res.Success {
		t.Fatal("accepted automation without action")
	}
	if ha.saw("/api/config/automation/") {
		t.Error("partial spec reached the control plane")
	}

	res = exec.Execute(context.Background(), call(types.KindCreateAutomation,
		`{"alias":"teste","trigger":{"platform":"state","entity_id":"sun.sun"},"action":[{"service":"light.turn_on"}]}`))
	if !res.Success {
		t.Fatalf("valid automation rejected: %s (%s)", res.Summary, res.Error)
	}
	if !strings.Contains(res.Summary, "mordomo_") {
		t.Errorf("summary missing automation id: %q", res.Summary)
	}
	if !ha.saw("/api/config/automation/config/") {
		t.Error("automation never submitted")
	}
}

func TestScheduleRemoveAndListJobs(t *testing.T) {
	exec, _, svc := newTestExecutor(t)
	creator := "351911111111"

	res := exec.ExecuteAs(context.Background(), creator, call(types.KindScheduleJob,
		`{"cron_expression":"30 7 * * *","description":"abrir estores","commands":[{"kind":"service_call","params":{"domain":"cover","service":"open_cover","entity_id":"cover.sala"}}]}`))
	if !res.Success {
		t.Fatalf("schedule failed: %s (%s)", res.Summary, res.Error)
	}

	jobs := svc.List(creator)
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(jobs))
	}
	jobID := jobs[0].ID
	if !strings.Contains(res.Summary, jobID) {
		t.Errorf("summary missing job id: %q", res.Summary)
	}

	res = exec.ExecuteAs(context.Background(), creator, call(types.KindListJobs, `{}`))
	if !res.Success || !strings.Contains(res.Summary, "abrir estores") {
		t.Errorf("list summary = %q", res.Summary)
	}

	res = exec.Execute(context.Background(), call(types.KindRemoveJob, `{"job_id":"`+jobID+`"}`))
	if !res.Success {
		t.Fatalf("remove failed: %s", res.Error)
	}
	if len(svc.List(creator)) != 0 {
		t.Error("job still present after removal")
	}

	res = exec.Execute(context.Background(), call(types.KindRemoveJob, `{"job_id":"deadbeef"}`))
	if res.Success {
		t.Error("removing unknown job reported success")
	}
}

func TestScheduleJobInvalidExpression(t *testing.T) {
	exec, _, svc := newTestExecutor(t)

	res := exec.Execute(context.Background(), call(types.KindScheduleJob,
		`{"cron_expression":"sempre","commands":[{"kind":"service_call","params":{}}]}`))
	if res.Success {
		t.Fatal("invalid expression accepted")
	}
	if len(svc.List("")) != 0 {
		t.Error("job persisted despite invalid expression")
	}
}

func TestUnknownKind(t *testing.T) {
	exec, _, _ := newTestExecutor(t)

	res := exec.Execute(context.Background(), call("explodir", `{}`))
	if res.Success {
		t.Fatal("unknown kind reported success")
	}
	if !strings.Contains(res.Error, "explodir") {
		t.Errorf("error = %q", res.Error)
	}
}
