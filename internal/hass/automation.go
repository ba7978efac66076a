package hass

import "fmt"

// ErrInvalidAutomation reports a structurally invalid automation spec,
// rejected before anything is sent to Home Assistant.
type ErrInvalidAutomation struct {
	Reason string
}

func (e *ErrInvalidAutomation) Error() string {
	return "invalid automation spec: " + e.Reason
}

// ValidateAutomationSpec checks that an automation spec is well-formed
// before submission. Rejection here guarantees no partial state is ever
// created on the control plane.
func ValidateAutomationSpec(spec map[string]any) error {
	if len(spec) == 0 {
		return &ErrInvalidAutomation{Reason: "empty spec"}
	}
	for _, field := range []string{"trigger", "action"} {
		v, ok := spec[field]
		if !ok || v == nil {
			return &ErrInvalidAutomation{Reason: field + " is required"}
		}
		if err := validateBlock(field, v); err != nil {
			return err
		}
	}
	if cond, ok := spec["condition"]; ok && cond != nil {
		if err := validateBlock("condition", cond); err != nil {
			return err
		}
	}
	return nil
}

// validateBlock accepts a single mapping or a non-empty list of
// mappings, the two shapes Home Assistant takes for automation blocks.
func validateBlock(name string, v any) error {
	switch block := v.(type) {
	case map[string]any:
		if len(block) == 0 {
			return &ErrInvalidAutomation{Reason: name + " is empty"}
		}
	case []any:
		if len(block) == 0 {
			return &ErrInvalidAutomation{Reason: name + " is empty"}
		}
		for i, item := range block {
			m, ok := item.(map[string]any)
			if !ok || len(m) == 0 {
				return &ErrInvalidAutomation{Reason: fmt.Sprintf("%s[%d] is not a mapping", name, i)}
			}
		}
	default:
		return &ErrInvalidAutomation{Reason: name + " must be a mapping or a list of mappings"}
	}
	return nil
}
