package core

import "time"

// StateRequirementType selects how a StateRequirement is reconciled
// against an agent's state map.
type StateRequirementType string

const (
	StateRead      StateRequirementType = "read"
	StateWrite     StateRequirementType = "write"
	StateExclusive StateRequirementType = "exclusive"
	StateShared    StateRequirementType = "shared"
)

// Consistency is an advisory hint on a StateRequirement; the core
// guarantees only local-agent sequencing of state operations for a
// single message.
type Consistency string

const (
	ConsistencyEventual Consistency = "eventual"
	ConsistencyStrong   Consistency = "strong"
	ConsistencyCausal   Consistency = "causal"
)

// StateRequirement declares a state-map operation an agent must perform
// before dispatching the tool. Keys combine with Namespace to form the
// composite key "{namespace}:{k1}:{k2}:...".
type StateRequirement struct {
	Type        StateRequirementType `json:"type"`
	Namespace   string               `json:"namespace"`
	Keys        []string             `json:"keys"`
	Consistency Consistency          `json:"consistency"`
	Timeout     time.Duration        `json:"timeout"`
}

// CompositeKey builds the "{namespace}:{k1}:{k2}:..." state-map key.
func (r StateRequirement) CompositeKey() string {
	key := r.Namespace
	for _, k := range r.Keys {
		key += ":" + k
	}
	return key
}

// ResourceType names a resource pool an agent tracks.
type ResourceType string

const (
	ResourceCPU     ResourceType = "cpu"
	ResourceMemory  ResourceType = "memory"
	ResourceGPU     ResourceType = "gpu"
	ResourceNetwork ResourceType = "network"
	ResourceStorage ResourceType = "storage"
	ResourceCustom  ResourceType = "custom"
)

// ResourceRequirement declares an integer-unit allocation an agent must
// make from its own pool before dispatching the tool.
type ResourceRequirement struct {
	Type     ResourceType  `json:"type"`
	Amount   int           `json:"amount"`
	Unit     string        `json:"unit,omitempty"`
	Priority Priority      `json:"priority,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Exclusive bool         `json:"exclusive,omitempty"`
}
