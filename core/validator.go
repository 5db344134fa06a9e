package core

import "fmt"

// ValidateMessage checks the structural invariants required
// before a Message may enter dispatch. It does not check agent
// existence or tool support; those are resolved during dispatch.
func ValidateMessage(m *Message) error {
	if m.ID == "" {
		return fmt.Errorf("message validation: id is required")
	}
	if m.Source.AgentID == "" {
		return fmt.Errorf("message validation: source.agent_id is required")
	}
	if m.ToolName == "" {
		return fmt.Errorf("message validation: tool_name is required")
	}
	if m.TTL < 0 {
		return fmt.Errorf("message validation: ttl must be non-negative")
	}
	if err := validateTarget(m.Target); err != nil {
		return fmt.Errorf("message validation: %w", err)
	}
	if err := validateCoordination(m.Coordination); err != nil {
		return fmt.Errorf("message validation: %w", err)
	}
	return nil
}

func validateTarget(t Target) error {
	switch t.Type {
	case TargetSingle:
		if t.AgentID == "" {
			return fmt.Errorf("single target requires agent_id")
		}
	case TargetMultiple:
		if len(t.AgentIDs) == 0 {
			return fmt.Errorf("multiple target requires at least one agent_id")
		}
	case TargetGroup:
		if t.Role == "" && len(t.Capabilities) == 0 {
			return fmt.Errorf("group target requires role or capabilities")
		}
	case TargetBroadcast:
		// no required fields
	case TargetConditional:
		if len(t.Conditions) == 0 {
			return fmt.Errorf("conditional target requires at least one condition")
		}
	default:
		return fmt.Errorf("unknown target type %q", t.Type)
	}
	return nil
}

func validateCoordination(c Coordination) error {
	switch c.Mode {
	case CoordinationDirect, CoordinationBroadcast:
		// no required fields beyond Mode
	case CoordinationConsensus:
		if c.MinimumParticipants < 0 {
			return fmt.Errorf("consensus minimum_participants must be non-negative")
		}
	case CoordinationPipeline:
		// an empty stage list is permitted; dispatch returns an empty
		// response list for it
	case "":
		// defaults to direct at dispatch time
	default:
		return ErrUnknownCoordinationMode
	}
	return nil
}
