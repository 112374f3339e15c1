package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/parthshah1/carddraw/failure"
)

type Orchestrator struct {
	handlers map[string]TaskHandler
	mu       sync.RWMutex
}

func New() *Orchestrator {
	return &Orchestrator{handlers: make(map[string]TaskHandler)}
}

// Register binds a handler to a task type, replacing any previous one.
func (o *Orchestrator) Register(taskType string, h TaskHandler) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.handlers[taskType] = h
}

// Types lists registered task types.
func (o *Orchestrator) Types() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	types := make([]string, 0, len(o.handlers))
	for t := range o.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func (o *Orchestrator) handler(taskType string) (TaskHandler, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	h, ok := o.handlers[taskType]
	return h, ok
}

// Run executes the scenario's tasks one at a time in dependency order. The
// first failing task stops the run; the results gathered so far are
// returned with the error.
func (o *Orchestrator) Run(ctx context.Context, scenario *Scenario) ([]TaskResult, error) {
	ordered, err := ExecutionOrder(scenario.Tasks)
	if err != nil {
		return nil, failure.Validation("plan scenario", err)
	}
	for _, task := range ordered {
		if _, ok := o.handler(task.Type); !ok {
			return nil, failure.Validation("plan scenario",
				fmt.Errorf("task %q: unknown type %q (known: %s)", task.Name, task.Type, strings.Join(o.Types(), ", ")))
		}
	}

	log.Info("Running scenario", "name", scenario.Name, "tasks", len(ordered))
	outputs := make(map[string]map[string]interface{}, len(ordered))
	results := make([]TaskResult, 0, len(ordered))

	for _, task := range ordered {
		result := o.runTask(ctx, task, scenario.Variables, outputs)
		results = append(results, result)
		if result.Error != nil {
			return results, fmt.Errorf("task %q failed: %w", task.Name, result.Error)
		}
		outputs[task.Name] = result.Output
	}

	log.Info("Scenario complete", "name", scenario.Name, "tasks", len(results))
	return results, nil
}

func (o *Orchestrator) runTask(ctx context.Context, task Task, vars map[string]string, outputs map[string]map[string]interface{}) TaskResult {
	result := TaskResult{TaskName: task.Name, Type: task.Type}
	start := time.Now()

	params, err := expandParams(task.Params, vars, outputs)
	if err != nil {
		result.Error = failure.Validation("expand params", err)
		result.Duration = time.Since(start)
		return result
	}

	h, _ := o.handler(task.Type)
	for attempt := 0; attempt <= task.RetryCount; attempt++ {
		if attempt > 0 {
			log.Warn("Retrying task", "task", task.Name, "attempt", attempt+1, "err", result.Error)
		}
		result.Attempts = attempt + 1
		result.Output, result.Error = execute(ctx, h, task, params)
		if result.Error == nil || ctx.Err() != nil {
			break
		}
		if !failure.Retryable(result.Error) {
			if attempt < task.RetryCount {
				log.Warn("Not retrying task", "task", task.Name, "kind", failure.KindOf(result.Error), "sent", failure.WasSent(result.Error))
			}
			break
		}
	}

	if result.Error != nil {
		log.Error("Task failed", "task", task.Name, "type", task.Type, "attempts", result.Attempts, "err", result.Error)
	} else {
		log.Info("Task complete", "task", task.Name, "type", task.Type, "elapsed", time.Since(start))
	}
	result.Duration = time.Since(start)
	return result
}

func execute(ctx context.Context, h TaskHandler, task Task, params map[string]interface{}) (map[string]interface{}, error) {
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}
	out, err := h.Execute(ctx, params)
	if out == nil {
		out = map[string]interface{}{}
	}
	return out, err
}

// ExecutionOrder sorts tasks so each runs after its dependencies. Tasks
// whose dependencies are met keep their listed order.
func ExecutionOrder(tasks []Task) ([]Task, error) {
	names := make(map[string]bool, len(tasks))
	for i, task := range tasks {
		if task.Name == "" {
			return nil, fmt.Errorf("task %d has no name", i+1)
		}
		if task.Type == "" {
			return nil, fmt.Errorf("task %q has no type", task.Name)
		}
		if names[task.Name] {
			return nil, fmt.Errorf("duplicate task name %q", task.Name)
		}
		names[task.Name] = true
	}
	for _, task := range tasks {
		for _, dep := range task.DependsOn {
			if !names[dep] {
				return nil, fmt.Errorf("task %q depends on unknown task %q", task.Name, dep)
			}
		}
	}

	var ordered []Task
	done := make(map[string]bool, len(tasks))

	for len(ordered) < len(tasks) {
		progress := false

		for _, task := range tasks {
			if done[task.Name] {
				continue
			}

			ready := true
			for _, dep := range task.DependsOn {
				if !done[dep] {
					ready = false
					break
				}
			}

			if ready {
				ordered = append(ordered, task)
				done[task.Name] = true
				progress = true
				// restart so earlier-listed tasks unblocked by this one go first
				break
			}
		}

		if !progress {
			var stuck []string
			for _, task := range tasks {
				if !done[task.Name] {
					stuck = append(stuck, task.Name)
				}
			}
			return nil, fmt.Errorf("circular dependency among tasks: %s", strings.Join(stuck, ", "))
		}
	}

	return ordered, nil
}

// expandParams substitutes ${var} from scenario variables and ${task.key}
// from earlier task outputs in every string value.
func expandParams(params map[string]interface{}, vars map[string]string, outputs map[string]map[string]interface{}) (map[string]interface{}, error) {
	var missing []string
	mapping := func(key string) string {
		if task, field, ok := strings.Cut(key, "."); ok {
			if out, ok := outputs[task]; ok {
				if v, ok := out[field]; ok {
					return fmt.Sprint(v)
				}
			}
		} else if v, ok := vars[key]; ok {
			return v
		}
		missing = append(missing, key)
		return ""
	}

	expanded, _ := expandValue(params, mapping).(map[string]interface{})
	if len(missing) > 0 {
		return nil, fmt.Errorf("undefined references: %s", strings.Join(missing, ", "))
	}
	if expanded == nil {
		expanded = map[string]interface{}{}
	}
	return expanded, nil
}

func expandValue(v interface{}, mapping func(string) string) interface{} {
	switch val := v.(type) {
	case string:
		return os.Expand(val, mapping)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = expandValue(item, mapping)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = expandValue(item, mapping)
		}
		return out
	default:
		return v
	}
}

// LoadScenario reads a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, failure.State("load scenario", fmt.Errorf("failed to read scenario: %w", err))
	}
	return ParseScenario(data)
}

func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, failure.State("load scenario", fmt.Errorf("failed to parse scenario: %w", err))
	}
	if len(scenario.Tasks) == 0 {
		return nil, failure.State("load scenario", errors.New("scenario has no tasks"))
	}
	if _, err := ExecutionOrder(scenario.Tasks); err != nil {
		return nil, failure.State("load scenario", err)
	}
	return &scenario, nil
}
