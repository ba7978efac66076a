package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mentxia/mordomo/internal/auth"
	"github.com/mentxia/mordomo/internal/config"
	"github.com/mentxia/mordomo/internal/cron"
	"github.com/mentxia/mordomo/internal/executor"
	"github.com/mentxia/mordomo/internal/gateway"
	"github.com/mentxia/mordomo/internal/hass"
	"github.com/mentxia/mordomo/internal/llm"
	"github.com/mentxia/mordomo/internal/session"
	"github.com/mentxia/mordomo/internal/types"
)

// scriptedProvider returns queued responses in order, or an error.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []*llm.Response
	calls     int
	err       error
}

func (s *scriptedProvider) Name() string  { return "scripted" }
func (s *scriptedProvider) Type() string  { return "test" }
func (s *scriptedProvider) Model() string { return "test-model" }

func (s *scriptedProvider) Complete(ctx context.Context, system string, messages []types.Message, tools []types.ToolDefinition) (*llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if len(s.responses) == 0 {
		return &llm.Response{Text: "sem guião", StopReason: "end_turn"}, nil
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func (s *scriptedProvider) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// sinkProvider records outbound sends for the gateway adapter. Like
// the real HTTP providers, it refuses to send on a dead context.
type sinkProvider struct {
	mu   sync.Mutex
	sent []string
}

func (s *sinkProvider) Name() string { return "sink" }

func (s *sinkProvider) ParseWebhook(body []byte) (*gateway.Inbound, error) {
	return nil, errors.New("not used")
}

func (s *sinkProvider) Send(ctx context.Context, identity, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, identity+"|"+text)
	return nil
}

func (s *sinkProvider) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return ""
	}
	return s.sent[len(s.sent)-1]
}

func (s *sinkProvider) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type fixture struct {
	orch     *Orchestrator
	llm      *scriptedProvider
	sink     *sinkProvider
	sessions *session.Store
	haCalls  *[]string
}

func newFixture(t *testing.T, scripted *scriptedProvider) *fixture {
	return newFixtureHA(t, scripted, nil)
}

func newFixtureHA(t *testing.T, scripted *scriptedProvider, haHandler http.HandlerFunc) *fixture {
	t.Helper()

	var haCalls []string
	var haMu sync.Mutex
	ha := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		haMu.Lock()
		haCalls = append(haCalls, r.Method+" "+r.URL.Path)
		haMu.Unlock()
		if haHandler != nil {
			haHandler(w, r)
			return
		}
		if r.URL.Path == "/api/states" {
			json.NewEncoder(w).Encode([]map[string]any{
				{"entity_id": "light.sala", "state": "off", "attributes": map[string]any{"friendly_name": "Luz da Sala"}},
			})
			return
		}
		w.Write([]byte(`[]`))
	}))
	t.Cleanup(ha.Close)

	cfg := config.Defaults()
	cfg.AllowedNumbers = "351911111111"
	cfg.DenyReply = true

	hassClient, err := hass.NewClient(config.HomeAssistantConfig{URL: ha.URL, Token: "t"})
	if err != nil {
		t.Fatal(err)
	}

	store := cron.NewStore(filepath.Join(t.TempDir(), "jobs.json"))
	store.Load()
	cronSvc := cron.NewService(store)
	exec := executor.New(hassClient, cronSvc)
	cronSvc.SetRunner(exec)

	sink := &sinkProvider{}
	adapter := gateway.NewAdapter(sink)

	sessions := session.NewStore(cfg.ContextWindow)
	guard := auth.NewGuard(cfg.AllowedList())

	orch := New(cfg, guard, sessions, scripted, exec, cronSvc, adapter, hassClient)
	return &fixture{orch: orch, llm: scripted, sink: sink, sessions: sessions, haCalls: &haCalls}
}

func TestServiceCallScenario(t *testing.T) {
	input, _ := json.Marshal(map[string]any{
		"domain": "light", "service": "turn_on", "entity_id": "light.sala",
	})
	scripted := &scriptedProvider{responses: []*llm.Response{
		{
			ToolCalls:  []llm.ToolUse{{ID: "t1", Name: types.KindServiceCall, Input: input}},
			StopReason: "tool_use",
		},
		{Text: "✅ Luz da sala ligada (light.sala).", StopReason: "end_turn"},
	}}
	f := newFixture(t, scripted)

	f.orch.process(context.Background(), "351911111111", "Liga a luz da sala")

	reply := f.sink.last()
	if !strings.Contains(reply, "✅") || !strings.Contains(reply, "light.sala") {
		t.Errorf("reply = %q", reply)
	}
	found := false
	for _, c := range *f.haCalls {
		if c == "POST /api/services/light/turn_on" {
			found = true
		}
	}
	if !found {
		t.Errorf("service call never executed, ha calls: %v", *f.haCalls)
	}

	// The exchange is recorded: user, tool use, tool result, reply.
	snap := f.sessions.Snapshot("351911111111")
	if len(snap) != 4 {
		t.Fatalf("session has %d messages, want 4", len(snap))
	}
	if snap[1].Role != types.RoleToolUse || snap[2].Role != types.RoleToolResult {
		t.Errorf("tool exchange not recorded: %v %v", snap[1].Role, snap[2].Role)
	}
}

func TestLimparCommandScenario(t *testing.T) {
	scripted := &scriptedProvider{}
	f := newFixture(t, scripted)

	f.sessions.Append("351911111111", types.Message{Role: types.RoleUser, Body: "olá"})

	f.orch.process(context.Background(), "351911111111", "/limpar")

	if got := f.sessions.Snapshot("351911111111"); len(got) != 0 {
		t.Errorf("session has %d messages after /limpar, want 0", len(got))
	}
	if scripted.callCount() != 0 {
		t.Errorf("reasoning backend called %d times for a command", scripted.callCount())
	}
	if !strings.Contains(f.sink.last(), "Conversa limpa") {
		t.Errorf("reply = %q", f.sink.last())
	}
}

func TestUnauthorizedSenderScenario(t *testing.T) {
	scripted := &scriptedProvider{}
	f := newFixture(t, scripted)

	f.orch.process(context.Background(), "351999999999", "Liga a luz")

	if got := f.sessions.Snapshot("351999999999"); len(got) != 0 {
		t.Errorf("unauthorized sender created %d context entries", len(got))
	}
	if scripted.callCount() != 0 {
		t.Errorf("reasoning backend called %d times for unauthorized sender", scripted.callCount())
	}
	if !strings.Contains(f.sink.last(), auth.DenialReply) {
		t.Errorf("denial reply = %q", f.sink.last())
	}
}

func TestBackendUnreachableScenario(t *testing.T) {
	scripted := &scriptedProvider{err: fmt.Errorf("%w: connection refused", llm.ErrUnavailable)}
	f := newFixture(t, scripted)

	f.orch.process(context.Background(), "351911111111", "Liga a luz da sala")

	if f.sink.last() == "" || !strings.Contains(f.sink.last(), ReplyUnavailable) {
		t.Errorf("reply = %q, want unavailable notice", f.sink.last())
	}
	for _, c := range *f.haCalls {
		if strings.Contains(c, "/api/services/") {
			t.Errorf("tool call attempted while backend down: %s", c)
		}
	}
}

func TestToolLoopBound(t *testing.T) {
	input, _ := json.Marshal(map[string]string{"entity_id": "light.sala"})
	loop := &llm.Response{
		ToolCalls:  []llm.ToolUse{{ID: "t", Name: types.KindQueryState, Input: input}},
		StopReason: "tool_use",
	}
	scripted := &scriptedProvider{responses: []*llm.Response{loop, loop, loop, loop, loop, loop, loop, loop}}
	f := newFixture(t, scripted)

	f.orch.process(context.Background(), "351911111111", "estado da luz?")

	if scripted.callCount() != f.orch.cfg.MaxToolRounds {
		t.Errorf("backend called %d times, want %d", scripted.callCount(), f.orch.cfg.MaxToolRounds)
	}
	if !strings.Contains(f.sink.last(), ReplyLoopExceeded) {
		t.Errorf("reply = %q, want loop-exceeded notice", f.sink.last())
	}
}

func TestTimeoutReplyStillDelivered(t *testing.T) {
	scripted := &scriptedProvider{err: context.DeadlineExceeded}
	f := newFixture(t, scripted)

	// The message budget is already gone when reasoning fails; the
	// timeout notice must still reach the user.
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	f.orch.process(ctx, "351911111111", "Liga a luz da sala")

	if !strings.Contains(f.sink.last(), ReplyTimeout) {
		t.Errorf("reply = %q, want the timeout notice delivered", f.sink.last())
	}
}

func TestToolCallNotDispatchedAfterDeadline(t *testing.T) {
	scripted := &scriptedProvider{}
	f := newFixture(t, scripted)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	input, _ := json.Marshal(map[string]string{"domain": "light", "service": "turn_on"})
	f.orch.executeRound(ctx, "351911111111", []llm.ToolUse{
		{ID: "t1", Name: types.KindServiceCall, Input: input},
	})

	for _, c := range *f.haCalls {
		if strings.Contains(c, "/api/services/") {
			t.Errorf("spent budget still dispatched to the control plane: %s", c)
		}
	}
	snap := f.sessions.Snapshot("351911111111")
	if len(snap) == 0 {
		t.Fatal("tool exchange not recorded")
	}
	last := snap[len(snap)-1]
	if last.Role != types.RoleToolResult || !strings.Contains(last.Body, "tempo esgotado") {
		t.Errorf("tool result = %q %q", last.Role, last.Body)
	}
}

func TestDispatchedToolCallRunsToCompletion(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	input, _ := json.Marshal(map[string]any{
		"domain": "light", "service": "turn_on", "entity_id": "light.sala",
	})
	scripted := &scriptedProvider{responses: []*llm.Response{
		{
			ToolCalls:  []llm.ToolUse{{ID: "t1", Name: types.KindServiceCall, Input: input}},
			StopReason: "tool_use",
		},
		{Text: "feito", StopReason: "end_turn"},
	}}
	f := newFixtureHA(t, scripted, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/services/") {
			close(started)
			<-release
		}
		w.Write([]byte(`[]`))
	})

	// Cancel the message context while the service call is in flight;
	// the dispatched mutation still runs to completion.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-started
		cancel()
		close(release)
	}()

	f.orch.process(ctx, "351911111111", "Liga a luz da sala")

	var result *types.Message
	snap := f.sessions.Snapshot("351911111111")
	for i := range snap {
		if snap[i].Role == types.RoleToolResult {
			result = &snap[i]
		}
	}
	if result == nil {
		t.Fatal("no tool result recorded")
	}
	if !strings.HasPrefix(result.Body, "OK:") {
		t.Errorf("tool result = %q, call was cut off mid-flight", result.Body)
	}
}

func TestCommandsAvailableWithBackendDown(t *testing.T) {
	scripted := &scriptedProvider{err: llm.ErrUnavailable}
	f := newFixture(t, scripted)

	f.orch.process(context.Background(), "351911111111", "/tarefas")

	if !strings.Contains(f.sink.last(), "Sem tarefas agendadas") {
		t.Errorf("reply = %q", f.sink.last())
	}
	if scripted.callCount() != 0 {
		t.Error("command reached the reasoning backend")
	}
}

func TestQueueSerializesPerIdentity(t *testing.T) {
	q := newQueue(4)
	var mu sync.Mutex
	var order []int
	for i := 0; i < 20; i++ {
		i := i
		q.enqueue("same", func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	q.wait()

	if len(order) != 20 {
		t.Fatalf("ran %d tasks, want 20", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("order[%d] = %d, tasks ran out of order", i, v)
		}
	}
}
