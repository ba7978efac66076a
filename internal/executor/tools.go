package executor

import "github.com/mentxia/mordomo/internal/types"

// Definitions returns the tool surface exposed to the reasoning
// backend. Tool names match the dispatch kinds in Execute.
func Definitions() []types.ToolDefinition {
	return []types.ToolDefinition{
		{
			Name:        types.KindServiceCall,
			Description: "Call a Home Assistant service, e.g. light.turn_on on light.sala. Use this to control devices.",
			InputSchema: objectSchema(map[string]any{
				"domain":    prop("string", "Service domain, e.g. light, switch, climate"),
				"service":   prop("string", "Service name, e.g. turn_on, turn_off, set_temperature"),
				"entity_id": prop("string", "Target entity id, e.g. light.sala"),
				"data":      map[string]any{"type": "object", "description": "Extra service data, e.g. brightness or temperature"},
			}, "domain", "service"),
		},
		{
			Name:        types.KindQueryState,
			Description: "Read the current state of an entity. Set domain to list entities of one domain, or omit both to list every entity. Never changes anything.",
			InputSchema: objectSchema(map[string]any{
				"entity_id": prop("string", "Entity id to read, e.g. sensor.temperatura_sala"),
				"domain":    prop("string", "List all entities of this domain, e.g. light or sensor"),
			}),
		},
		{
			Name:        types.KindCreateAutomation,
			Description: "Create a Home Assistant automation from trigger, optional condition and action blocks.",
			InputSchema: objectSchema(map[string]any{
				"alias":     prop("string", "Human-readable automation name"),
				"trigger":   map[string]any{"description": "Automation trigger block or list of blocks"},
				"condition": map[string]any{"description": "Optional condition block or list of blocks"},
				"action":    map[string]any{"description": "Automation action block or list of blocks"},
			}, "trigger", "action"),
		},
		{
			Name:        types.KindScheduleJob,
			Description: "Schedule commands to run on a cron schedule (5 fields: minute hour day-of-month month day-of-week). Set one_shot for a single future run.",
			InputSchema: objectSchema(map[string]any{
				"cron_expression": prop("string", "5-field cron expression, e.g. '30 7 * * *' for every day at 07:30"),
				"description":     prop("string", "What the job does, shown in job listings"),
				"commands": map[string]any{
					"type":        "array",
					"description": "Commands to run at fire time",
					"items": objectSchema(map[string]any{
						"kind":   prop("string", "Command kind: service_call, query_state or create_automation"),
						"params": map[string]any{"type": "object", "description": "Parameters for the command, same shape as the matching tool"},
					}, "kind", "params"),
				},
				"one_shot": prop("boolean", "Remove the job after its first run"),
			}, "cron_expression", "commands"),
		},
		{
			Name:        types.KindRemoveJob,
			Description: "Cancel a scheduled job by its id.",
			InputSchema: objectSchema(map[string]any{
				"job_id": prop("string", "Job id as shown in job listings"),
			}, "job_id"),
		},
		{
			Name:        types.KindListJobs,
			Description: "List the user's scheduled jobs.",
			InputSchema: objectSchema(map[string]any{}),
		},
	}
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}
