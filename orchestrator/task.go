package orchestrator

import (
	"context"
	"time"
)

type Task struct {
	Name       string                 `yaml:"name" json:"name"`
	Type       string                 `yaml:"type" json:"type"`
	Params     map[string]interface{} `yaml:"params,omitempty" json:"params,omitempty"`
	DependsOn  []string               `yaml:"dependsOn,omitempty" json:"dependsOn,omitempty"`
	// RetryCount only applies to failures raised before a transaction was
	// sent. See failure.Retryable.
	RetryCount int                    `yaml:"retryCount,omitempty" json:"retryCount,omitempty"`
	Timeout    time.Duration          `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

type Scenario struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description,omitempty"`
	Tasks       []Task            `yaml:"tasks"`
	Variables   map[string]string `yaml:"variables,omitempty"`
}

type TaskResult struct {
	TaskName string
	Type     string
	Output   map[string]interface{}
	Error    error
	Attempts int
	Duration time.Duration
}

type TaskHandler interface {
	Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error)
}

// HandlerFunc adapts a function to TaskHandler.
type HandlerFunc func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error)

func (f HandlerFunc) Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	return f(ctx, params)
}
