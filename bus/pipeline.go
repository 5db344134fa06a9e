package bus

import (
	"fmt"

	"github.com/a2aforge/meshbus/core"
)

// executePipeline runs the "pipeline" coordination mode: stages run strictly
// in declared order, each consuming the (optionally transformed) output
// of the one before it.
func (b *Bus) executePipeline(m *core.Message) ([]*core.Response, error) {
	if len(m.Coordination.Stages) == 0 {
		return []*core.Response{}, nil
	}

	responses := make([]*core.Response, 0, len(m.Coordination.Stages))
	current := m.Parameters

	for i, stage := range m.Coordination.Stages {
		input := current
		if stage.InputTransform != nil {
			input = stage.InputTransform(current)
		}

		stageMsg := *m
		stageMsg.ID = fmt.Sprintf("%s-stage-%d", m.ID, i)
		stageMsg.Target = stage.AgentTarget
		stageMsg.ToolName = stage.ToolName
		stageMsg.Parameters = input
		stageMsg.Coordination = core.Coordination{Mode: core.CoordinationDirect, Timeout: m.Coordination.Timeout}

		resp, err := b.dispatchStage(&stageMsg)
		if err != nil {
			resp = &core.Response{
				MessageID:     stageMsg.ID,
				CorrelationID: stageMsg.EffectiveCorrelationID(),
				Source:        core.UnknownSource(),
				Success:       false,
				Error:         core.NewA2AError(core.ErrCodeCoordinationFailed, err.Error()),
				Metadata:      core.ResponseMetadata{Hops: len(stageMsg.Route) + 1},
				Timestamp:     core.NowMS(),
			}
			b.metrics.recordResponse(resp)
			b.history.recordResponse(resp)
		}

		if !resp.Success {
			switch m.Coordination.FailureStrategy {
			case core.FailureRetry:
				retryResp, retryErr := b.dispatchStage(&stageMsg)
				if retryErr == nil && retryResp.Success {
					resp = retryResp
				} else {
					responses = append(responses, resp)
					return responses, nil
				}
			case core.FailureSkip:
				responses = append(responses, resp)
				continue // current unchanged
			default: // abort
				responses = append(responses, resp)
				return responses, nil
			}
		}

		responses = append(responses, resp)
		if stage.OutputTransform != nil {
			current = stage.OutputTransform(resp.Result)
		} else {
			current = resp.Result
		}
	}

	return responses, nil
}

// dispatchStage runs one pipeline stage as a direct coordination.
func (b *Bus) dispatchStage(m *core.Message) (*core.Response, error) {
	return b.executeDirect(m)
}
