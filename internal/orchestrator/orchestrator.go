// Package orchestrator drives each inbound message through
// authorization, command interception, reasoning and reply delivery.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mentxia/mordomo/internal/auth"
	"github.com/mentxia/mordomo/internal/commands"
	"github.com/mentxia/mordomo/internal/config"
	"github.com/mentxia/mordomo/internal/cron"
	"github.com/mentxia/mordomo/internal/executor"
	"github.com/mentxia/mordomo/internal/gateway"
	"github.com/mentxia/mordomo/internal/hass"
	"github.com/mentxia/mordomo/internal/llm"
	. "github.com/mentxia/mordomo/internal/logging"
	"github.com/mentxia/mordomo/internal/session"
	"github.com/mentxia/mordomo/internal/types"
)

// Fixed degraded replies. Reasoning failures always produce a reply;
// the user is never left without feedback.
const (
	ReplyUnavailable  = "😞 O assistente está indisponível de momento. Tenta novamente daqui a pouco."
	ReplyTimeout      = "⏳ Desculpa, demorei demasiado a processar o pedido. Tenta novamente."
	ReplyLoopExceeded = "🤷 Não consegui completar a tarefa automaticamente. Tenta dividir o pedido em passos mais simples."
)

// Per-message processing states, for log correlation.
const (
	stateReceived      = "RECEIVED"
	stateAuthorized    = "AUTHORIZED"
	stateRejected      = "REJECTED"
	stateContextLoaded = "CONTEXT_LOADED"
	stateReasoned      = "REASONED"
	stateExecuted      = "EXECUTED"
	stateReplied       = "REPLIED"
	stateFailed        = "FAILED"
)

const maxConcurrentMessages = 4

// replySendTimeout bounds reply delivery independently of the
// per-message budget: when a message times out, its budget is already
// spent, and the timeout notice still has to go out.
const replySendTimeout = 30 * time.Second

// toolCallTimeout bounds one dispatched tool call. Control-plane
// mutations run to completion on this budget; cancelling them mid-flight
// would leave the house in an unknown state.
const toolCallTimeout = 30 * time.Second

// Orchestrator owns the per-message pipeline.
type Orchestrator struct {
	cfg      *config.Config
	guard    *auth.Guard
	sessions *session.Store
	provider llm.Provider
	exec     *executor.Executor
	cron     *cron.Service
	cmds     *commands.Manager
	gateway  *gateway.Adapter
	hass     *hass.Client
	queue    *queue
	tools    []types.ToolDefinition
	started  time.Time
}

func New(cfg *config.Config, guard *auth.Guard, sessions *session.Store, provider llm.Provider,
	exec *executor.Executor, cronService *cron.Service, gw *gateway.Adapter, hassClient *hass.Client) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		guard:    guard,
		sessions: sessions,
		provider: provider,
		exec:     exec,
		cron:     cronService,
		gateway:  gw,
		hass:     hassClient,
		queue:    newQueue(maxConcurrentMessages),
		tools:    executor.Definitions(),
		started:  time.Now(),
	}
	o.cmds = commands.NewManager(o)
	return o
}

// HandleInbound queues a message for processing. Messages from the
// same identity run in receipt order; identities are independent.
func (o *Orchestrator) HandleInbound(msg *gateway.Inbound) {
	identity := msg.From
	text := msg.Text
	o.queue.enqueue(identity, func() {
		ctx, cancel := context.WithTimeout(context.Background(), o.cfg.MessageTimeout())
		defer cancel()
		o.process(ctx, identity, text)
	})
}

// Drain waits for all in-flight messages to finish.
func (o *Orchestrator) Drain() {
	o.queue.wait()
}

func (o *Orchestrator) process(ctx context.Context, identity, text string) {
	L_debug("orchestrator: state", "state", stateReceived, "identity", identity)

	// Hard boundary: nothing below runs for unauthorized senders.
	if !o.guard.IsAuthorized(identity) {
		L_warn("orchestrator: unauthorized sender", "state", stateRejected, "identity", identity)
		if o.cfg.DenyReply {
			o.reply(ctx, identity, auth.DenialReply)
		}
		return
	}
	L_debug("orchestrator: state", "state", stateAuthorized, "identity", identity)

	// Deterministic shortcuts run before any reasoning so they stay
	// available when the backend is down.
	if commands.IsCommand(text) {
		o.reply(ctx, identity, o.cmds.Execute(ctx, identity, text))
		return
	}

	o.sessions.Append(identity, types.Message{
		ID:        uuid.NewString(),
		Identity:  identity,
		Direction: types.DirectionIn,
		Role:      types.RoleUser,
		Body:      text,
		Timestamp: time.Now(),
	})
	L_debug("orchestrator: state", "state", stateContextLoaded, "identity", identity)

	reply := o.reason(ctx, identity)
	o.reply(ctx, identity, reply)
}

// reason runs the tool-call loop and returns the final reply text.
func (o *Orchestrator) reason(ctx context.Context, identity string) string {
	system := o.systemPrompt(ctx)

	for round := 0; round < o.cfg.MaxToolRounds; round++ {
		resp, err := o.provider.Complete(ctx, system, o.sessions.Snapshot(identity), o.tools)
		if err != nil {
			if ctx.Err() != nil {
				L_error("orchestrator: timed out", "state", stateFailed, "identity", identity)
				return ReplyTimeout
			}
			L_error("orchestrator: backend failed", "state", stateFailed, "identity", identity, "error", err)
			return ReplyUnavailable
		}
		L_debug("orchestrator: state", "state", stateReasoned, "identity", identity, "round", round, "toolCalls", len(resp.ToolCalls))

		if !resp.HasToolCalls() {
			final := strings.TrimSpace(resp.Text)
			if final == "" {
				final = "🤵 Às suas ordens."
			}
			o.sessions.Append(identity, types.Message{
				ID:        uuid.NewString(),
				Identity:  identity,
				Direction: types.DirectionOut,
				Role:      types.RoleAssistant,
				Body:      final,
				Timestamp: time.Now(),
			})
			return final
		}

		if resp.Text != "" {
			o.sessions.Append(identity, types.Message{
				ID:        uuid.NewString(),
				Identity:  identity,
				Role:      types.RoleAssistant,
				Body:      resp.Text,
				Timestamp: time.Now(),
			})
		}
		o.executeRound(ctx, identity, resp.ToolCalls)
	}

	L_warn("orchestrator: tool loop exceeded", "state", stateFailed, "identity", identity, "rounds", o.cfg.MaxToolRounds)
	return ReplyLoopExceeded
}

// executeRound runs one batch of requested tool calls and records the
// exchange in the conversation. Malformed tool names are a backend
// protocol violation: logged and answered with an error result, never
// sent to the control plane.
func (o *Orchestrator) executeRound(ctx context.Context, identity string, calls []llm.ToolUse) {
	for _, tc := range calls {
		o.sessions.Append(identity, types.Message{
			ID:        uuid.NewString(),
			Identity:  identity,
			Role:      types.RoleToolUse,
			ToolUseID: tc.ID,
			ToolName:  tc.Name,
			ToolInput: tc.Input,
			Timestamp: time.Now(),
		})

		var result types.ExecutionResult
		if ctx.Err() != nil {
			// Budget spent before dispatch: a mutation nobody waits for
			// must not start.
			result = types.ExecutionResult{
				CallID:  tc.ID,
				Summary: fmt.Sprintf("Erro: tempo esgotado antes de executar %s.", tc.Name),
				Error:   ctx.Err().Error(),
			}
		} else {
			// Once dispatched, the call finishes on its own bound even
			// if the message deadline expires meanwhile.
			execCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), toolCallTimeout)
			result = o.exec.ExecuteAs(execCtx, identity, types.ToolCall{
				ID:     tc.ID,
				Kind:   tc.Name,
				Params: tc.Input,
			})
			cancel()
		}
		L_info("orchestrator: state", "state", stateExecuted, "identity", identity, "tool", tc.Name, "success", result.Success)

		o.sessions.Append(identity, types.Message{
			ID:        uuid.NewString(),
			Identity:  identity,
			Role:      types.RoleToolResult,
			ToolUseID: tc.ID,
			ToolName:  tc.Name,
			Body:      result.Summary,
			Timestamp: time.Now(),
		})
	}
}

// systemPrompt extends the persona with a best-effort house snapshot.
// A control-plane outage degrades to the bare persona, never an error.
func (o *Orchestrator) systemPrompt(ctx context.Context) string {
	prompt := o.cfg.SystemPrompt
	summary, err := o.hass.Summary(ctx, 12)
	if err != nil {
		L_warn("orchestrator: house context unavailable", "error", err)
		return prompt
	}
	if summary != "" {
		prompt += "\n\nEstado atual da casa:\n" + summary
	}
	return prompt
}

func (o *Orchestrator) reply(ctx context.Context, identity, text string) {
	if text == "" {
		return
	}
	// Detached from the per-message deadline so a timed-out message can
	// still tell the user what happened.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), replySendTimeout)
	defer cancel()
	if err := o.gateway.Send(sendCtx, identity, text); err != nil {
		L_error("orchestrator: reply delivery failed", "state", stateFailed, "identity", identity, "error", err)
		return
	}
	L_info("orchestrator: state", "state", stateReplied, "identity", identity, "length", len(text))
}

// ResetConversation implements commands.Provider.
func (o *Orchestrator) ResetConversation(identity string) {
	o.sessions.Reset(identity)
}

// JobsReport implements commands.Provider.
func (o *Orchestrator) JobsReport(identity string) string {
	return executor.FormatJobs(o.cron.List(identity))
}

// StatusReport implements commands.Provider.
func (o *Orchestrator) StatusReport(ctx context.Context) string {
	var b strings.Builder
	b.WriteString("🤵 Estado do Mordomo\n")
	b.WriteString(fmt.Sprintf("Ativo há %s\n", time.Since(o.started).Round(time.Second)))
	b.WriteString(fmt.Sprintf("Gateway: %s\n", o.gateway.ProviderName()))
	b.WriteString(fmt.Sprintf("Cérebro: %s (%s)\n", o.provider.Name(), o.provider.Model()))
	b.WriteString(fmt.Sprintf("Tarefas agendadas: %d\n", len(o.cron.List(""))))

	if o.hass.IsAvailable(ctx) {
		b.WriteString("Home Assistant: ligado ✅")
		if summary, err := o.hass.Summary(ctx, 6); err == nil && summary != "" {
			b.WriteString("\n\n" + summary)
		}
	} else {
		b.WriteString("Home Assistant: inacessível ❌")
	}
	return b.String()
}
