package gcp

import (
	"context"
	"encoding/json"
	"fmt"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
)

// WorkflowParent is the resource name of a workflow, the parent of its executions.
func WorkflowParent(projectID, location, workflowID string) string {
	return fmt.Sprintf("projects/%s/locations/%s/workflows/%s", projectID, location, workflowID)
}

// NewExecutionRequest builds a CreateExecutionRequest carrying payload as the
// JSON argument of the execution.
func NewExecutionRequest(parent string, payload any) (*executionspb.CreateExecutionRequest, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal workflow payload: %w", err)
	}
	return &executionspb.CreateExecutionRequest{
		Parent: parent,
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	}, nil
}

// TriggerWorkflow starts an execution and returns its resource name.
func TriggerWorkflow(ctx context.Context, client *executions.Client, parent string, payload any) (string, error) {
	req, err := NewExecutionRequest(parent, payload)
	if err != nil {
		return "", err
	}
	exec, err := client.CreateExecution(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to trigger workflow execution: %w", err)
	}
	return exec.GetName(), nil
}
