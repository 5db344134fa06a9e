package bus

import (
	"fmt"
	"math/rand/v2"

	"github.com/a2aforge/meshbus/core"
)

// resolveTarget resolves a Target into an ordered, de-duplicated list
// of agent IDs against a consistent registry snapshot.
func (b *Bus) resolveTarget(t core.Target, sourceAgentID string) ([]string, error) {
	snapshot := b.snapshotRegistry()
	ids, err := b.resolveAgainst(t, sourceAgentID, snapshot)
	if err != nil {
		return nil, err
	}
	return dedupe(ids), nil
}

func (b *Bus) resolveAgainst(t core.Target, sourceAgentID string, snapshot []*registeredAgent) ([]string, error) {
	switch t.Type {
	case core.TargetSingle:
		if t.AgentID == "" {
			return nil, nil
		}
		return []string{t.AgentID}, nil

	case core.TargetMultiple:
		return append([]string(nil), t.AgentIDs...), nil

	case core.TargetGroup:
		matches := filterByRoleAndCapabilities(snapshot, t.Role, t.Capabilities)
		matches = b.applySelectionStrategy(matches, t.SelectionStrategy)
		if t.MaxAgents > 0 && len(matches) > t.MaxAgents {
			matches = matches[:t.MaxAgents]
		}
		return idsOf(matches), nil

	case core.TargetBroadcast:
		var out []*registeredAgent
		for _, ra := range snapshot {
			if t.ExcludeSource && ra.agent.ID == sourceAgentID {
				continue
			}
			out = append(out, ra)
		}
		return idsOf(orderByRegistration(out)), nil

	case core.TargetConditional:
		matched := evaluateConditions(snapshot, t.Conditions)
		if len(matched) == 0 && t.Fallback != nil {
			return b.resolveAgainst(*t.Fallback, sourceAgentID, snapshot)
		}
		return idsOf(matched), nil

	default:
		return nil, fmt.Errorf("unknown target type %q", t.Type)
	}
}

func idsOf(agents []*registeredAgent) []string {
	out := make([]string, len(agents))
	for i, ra := range agents {
		out[i] = ra.agent.ID
	}
	return out
}

func orderByRegistration(agents []*registeredAgent) []*registeredAgent {
	out := append([]*registeredAgent(nil), agents...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].order > out[j].order; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

func filterByRoleAndCapabilities(snapshot []*registeredAgent, role string, capabilities []string) []*registeredAgent {
	var out []*registeredAgent
	for _, ra := range snapshot {
		if role != "" && ra.agent.Role != role {
			continue
		}
		if len(capabilities) > 0 && !hasAllCapabilities(ra.agent.Capabilities, capabilities) {
			continue
		}
		out = append(out, ra)
	}
	return orderByRegistration(out)
}

func hasAllCapabilities(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, c := range have {
		set[c] = true
	}
	for _, w := range want {
		if !set[w] {
			return false
		}
	}
	return true
}

// applySelectionStrategy reorders matches for the group target: random
// draws uniformly, load-balanced prefers fewest in-flight, and
// capability-matched (along with the default) keeps registration order.
func (b *Bus) applySelectionStrategy(matches []*registeredAgent, strategy core.SelectionStrategy) []*registeredAgent {
	switch strategy {
	case core.SelectRandom:
		out := append([]*registeredAgent(nil), matches...)
		rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
		return out
	case core.SelectLoadBalanced:
		out := append([]*registeredAgent(nil), matches...)
		inFlight := b.inFlightSnapshot()
		for i := 1; i < len(out); i++ {
			for j := i; j > 0 && inFlight[out[j-1].agent.ID] > inFlight[out[j].agent.ID]; j-- {
				out[j-1], out[j] = out[j], out[j-1]
			}
		}
		return out
	default: // capability-matched and "" keep registration order
		return matches
	}
}

func evaluateConditions(snapshot []*registeredAgent, conditions []core.AgentCondition) []*registeredAgent {
	var out []*registeredAgent
	for _, ra := range snapshot {
		for _, c := range conditions {
			if predicate, ok := c.(func(*core.AgentIdentifier) bool); ok {
				id := core.AgentIdentifier{AgentID: ra.agent.ID, Role: ra.agent.Role, Capabilities: ra.agent.Capabilities}
				if predicate(&id) {
					out = append(out, ra)
					break
				}
			}
		}
	}
	return orderByRegistration(out)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
