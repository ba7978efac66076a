package commands

import (
	"context"
	"fmt"
	"strings"
)

func registerBuiltins(m *Manager) {
	m.Register(&Command{
		Name:        "/ajuda",
		Description: "Mostra os comandos disponíveis",
		Aliases:     []string{"/help"},
		Handler: func(ctx context.Context, identity, rawArgs string) string {
			var b strings.Builder
			b.WriteString("🤵 Mordomo ao seu dispor.\n\nComandos:")
			for _, cmd := range m.List() {
				b.WriteString(fmt.Sprintf("\n%s", cmd.Name))
				if len(cmd.Aliases) > 0 {
					b.WriteString(" (" + strings.Join(cmd.Aliases, ", ") + ")")
				}
				b.WriteString(" · " + cmd.Description)
			}
			b.WriteString("\n\nTudo o resto é conversa normal: peça-me para ligar luzes, consultar sensores ou agendar tarefas.")
			return b.String()
		},
	})

	m.Register(&Command{
		Name:        "/limpar",
		Description: "Esquece a conversa atual",
		Aliases:     []string{"/reset", "/clear"},
		Handler: func(ctx context.Context, identity, rawArgs string) string {
			m.provider.ResetConversation(identity)
			return "🧹 Conversa limpa. Começamos de novo."
		},
	})

	m.Register(&Command{
		Name:        "/tarefas",
		Description: "Lista as tarefas agendadas",
		Aliases:     []string{"/jobs"},
		Handler: func(ctx context.Context, identity, rawArgs string) string {
			return m.provider.JobsReport(identity)
		},
	})

	m.Register(&Command{
		Name:        "/estado",
		Description: "Estado do mordomo e da casa",
		Aliases:     []string{"/status", "/resumo"},
		Handler: func(ctx context.Context, identity, rawArgs string) string {
			return m.provider.StatusReport(ctx)
		},
	})
}
