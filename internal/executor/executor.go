package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mentxia/mordomo/internal/cron"
	"github.com/mentxia/mordomo/internal/hass"
	. "github.com/mentxia/mordomo/internal/logging"
	"github.com/mentxia/mordomo/internal/types"
)

// Executor translates tool calls into control-plane and scheduler
// invocations. Stateless: no caching, no retries. A failed service call
// is reported as-is because service calls are not guaranteed idempotent.
type Executor struct {
	hass *hass.Client
	cron *cron.Service
}

func New(hassClient *hass.Client, cronService *cron.Service) *Executor {
	return &Executor{hass: hassClient, cron: cronService}
}

// Execute runs a call with no attributed creator. Satisfies the
// scheduler's Runner interface for job-fired commands.
func (e *Executor) Execute(ctx context.Context, call types.ToolCall) types.ExecutionResult {
	return e.ExecuteAs(ctx, "", call)
}

// ExecuteAs runs a call on behalf of an identity. The creator is
// attached to jobs created through schedule_job and scopes list_jobs.
// Always returns exactly one result; never panics on bad input.
func (e *Executor) ExecuteAs(ctx context.Context, creator string, call types.ToolCall) types.ExecutionResult {
	L_debug("executor: dispatch", "kind", call.Kind, "creator", creator)

	var result types.ExecutionResult
	switch call.Kind {
	case types.KindServiceCall:
		result = e.serviceCall(ctx, call.Params)
	case types.KindQueryState:
		result = e.queryState(ctx, call.Params)
	case types.KindCreateAutomation:
		result = e.createAutomation(ctx, call.Params)
	case types.KindScheduleJob:
		result = e.scheduleJob(creator, call.Params)
	case types.KindRemoveJob:
		result = e.removeJob(call.Params)
	case types.KindListJobs:
		result = e.listJobs(creator)
	default:
		result = failure(fmt.Sprintf("Erro: acao desconhecida %q.", call.Kind), fmt.Sprintf("unknown tool kind: %s", call.Kind))
	}

	result.CallID = call.ID
	return result
}

type serviceCallParams struct {
	Domain   string         `json:"domain"`
	Service  string         `json:"service"`
	EntityID string         `json:"entity_id"`
	Data     map[string]any `json:"data"`
}

func (e *Executor) serviceCall(ctx context.Context, raw json.RawMessage) types.ExecutionResult {
	var p serviceCallParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return failure("Erro: parametros invalidos para service_call.", err.Error())
	}
	if p.Domain == "" || p.Service == "" {
		return failure("Erro: dominio e servico sao obrigatorios.", "missing domain or service")
	}

	data := p.Data
	if p.EntityID != "" {
		if data == nil {
			data = map[string]any{}
		}
		data["entity_id"] = p.EntityID
	}

	if err := e.hass.CallService(ctx, p.Domain, p.Service, data); err != nil {
		return failure(fmt.Sprintf("Erro ao executar %s.%s: %v", p.Domain, p.Service, err), err.Error())
	}

	target := p.EntityID
	if target == "" {
		target = p.Domain
	}
	return success(fmt.Sprintf("OK: %s.%s em %s", p.Domain, p.Service, target))
}

type queryStateParams struct {
	EntityID string `json:"entity_id"`
	Domain   string `json:"domain"`
}

func (e *Executor) queryState(ctx context.Context, raw json.RawMessage) types.ExecutionResult {
	var p queryStateParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return failure("Erro: parametros invalidos para query_state.", err.Error())
		}
	}

	if p.EntityID != "" {
		state, err := e.hass.GetState(ctx, p.EntityID)
		if err != nil {
			return failure(fmt.Sprintf("Erro ao consultar %s: %v", p.EntityID, err), err.Error())
		}
		return success(formatState(state))
	}

	states, err := e.hass.GetStates(ctx)
	if err != nil {
		return failure(fmt.Sprintf("Erro ao consultar estados: %v", err), err.Error())
	}
	if p.Domain != "" {
		prefix := p.Domain + "."
		filtered := states[:0]
		for _, s := range states {
			if strings.HasPrefix(s.EntityID, prefix) {
				filtered = append(filtered, s)
			}
		}
		states = filtered
		if len(states) == 0 {
			return success(fmt.Sprintf("Nenhuma entidade no dominio %s.", p.Domain))
		}
	}
	if len(states) == 0 {
		return success("Nenhuma entidade encontrada.")
	}
	var b strings.Builder
	for i := range states {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(formatState(&states[i]))
	}
	return success(b.String())
}

// formatState renders one entity state for a human, unit-aware when the
// entity carries a unit of measurement.
func formatState(s *hass.State) string {
	name := s.FriendlyName()
	if unit := s.Unit(); unit != "" {
		return fmt.Sprintf("%s: %s %s", name, s.State, unit)
	}
	return fmt.Sprintf("%s: %s", name, s.State)
}

type createAutomationParams struct {
	Alias     string `json:"alias"`
	Trigger   any    `json:"trigger"`
	Condition any    `json:"condition"`
	Action    any    `json:"action"`
}

func (e *Executor) createAutomation(ctx context.Context, raw json.RawMessage) types.ExecutionResult {
	var p createAutomationParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return failure("Erro: parametros invalidos para create_automation.", err.Error())
	}
	if p.Trigger == nil || p.Action == nil {
		return failure("Erro: a automacao precisa de trigger e action.", "missing trigger or action")
	}

	spec := map[string]any{
		"alias":   p.Alias,
		"trigger": p.Trigger,
		"action":  p.Action,
	}
	if p.Alias == "" {
		spec["alias"] = "Automacao do Mordomo"
	}
	if p.Condition != nil {
		spec["condition"] = p.Condition
	}
	if err := hass.ValidateAutomationSpec(spec); err != nil {
		return failure(fmt.Sprintf("Erro: automacao mal formada: %v", err), err.Error())
	}

	id := "mordomo_" + uuid.NewString()[:8]
	if err := e.hass.CreateAutomation(ctx, id, spec); err != nil {
		return failure(fmt.Sprintf("Erro ao criar automacao: %v", err), err.Error())
	}
	return success(fmt.Sprintf("Automacao criada: %s", id))
}

type scheduleJobParams struct {
	CronExpression string           `json:"cron_expression"`
	Description    string           `json:"description"`
	Commands       []types.ToolCall `json:"commands"`
	OneShot        bool             `json:"one_shot"`
}

func (e *Executor) scheduleJob(creator string, raw json.RawMessage) types.ExecutionResult {
	var p scheduleJobParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return failure("Erro: parametros invalidos para schedule_job.", err.Error())
	}
	if p.CronExpression == "" || len(p.Commands) == 0 {
		return failure("Erro: cron_expression e commands sao obrigatorios.", "missing cron_expression or commands")
	}

	job, err := e.cron.Create(p.CronExpression, p.Description, p.Commands, creator, p.OneShot)
	if err != nil {
		return failure(fmt.Sprintf("Erro ao agendar tarefa: %v", err), err.Error())
	}
	return success(fmt.Sprintf("Tarefa agendada %s: %s (%s), proxima execucao %s",
		job.ID, job.Description, job.Expr, job.NextRun.Format("2006-01-02 15:04")))
}

type removeJobParams struct {
	JobID string `json:"job_id"`
}

func (e *Executor) removeJob(raw json.RawMessage) types.ExecutionResult {
	var p removeJobParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return failure("Erro: parametros invalidos para remove_job.", err.Error())
	}
	if p.JobID == "" {
		return failure("Erro: job_id e obrigatorio.", "missing job_id")
	}
	if err := e.cron.Cancel(p.JobID); err != nil {
		return failure(fmt.Sprintf("Erro: tarefa %s nao encontrada.", p.JobID), err.Error())
	}
	return success(fmt.Sprintf("Tarefa %s removida.", p.JobID))
}

func (e *Executor) listJobs(creator string) types.ExecutionResult {
	jobs := e.cron.List(creator)
	return success(FormatJobs(jobs))
}

// FormatJobs renders a job list for a chat reply. Shared with the
// /tarefas command handler.
func FormatJobs(jobs []*cron.Job) string {
	if len(jobs) == 0 {
		return "Sem tarefas agendadas."
	}
	var b strings.Builder
	b.WriteString("Tarefas agendadas:")
	for _, j := range jobs {
		b.WriteString(fmt.Sprintf("\n• %s: %s (%s), proxima: %s",
			j.ID, j.Description, j.Expr, j.NextRun.Format("2006-01-02 15:04")))
		if j.OneShot {
			b.WriteString(" [unica]")
		}
	}
	return b.String()
}

func success(summary string) types.ExecutionResult {
	return types.ExecutionResult{Success: true, Summary: summary}
}

func failure(summary, rawErr string) types.ExecutionResult {
	return types.ExecutionResult{Success: false, Summary: summary, Error: rawErr}
}
