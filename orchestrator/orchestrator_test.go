package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parthshah1/carddraw/failure"
)

func names(tasks []Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Name
	}
	return out
}

func TestExecutionOrder(t *testing.T) {
	tasks := []Task{
		{Name: "mint-a", Type: "mint", DependsOn: []string{"deploy"}},
		{Name: "info", Type: "info"},
		{Name: "deploy", Type: "deploy"},
		{Name: "verify-a", Type: "verify", DependsOn: []string{"mint-a"}},
		{Name: "mint-b", Type: "mint", DependsOn: []string{"deploy"}},
	}
	ordered, err := ExecutionOrder(tasks)
	require.NoError(t, err)
	assert.Equal(t, []string{"info", "deploy", "mint-a", "verify-a", "mint-b"}, names(ordered))
}

func TestExecutionOrderErrors(t *testing.T) {
	cases := map[string][]Task{
		"cycle": {
			{Name: "a", Type: "x", DependsOn: []string{"b"}},
			{Name: "b", Type: "x", DependsOn: []string{"a"}},
		},
		"unknown dependency": {{Name: "a", Type: "x", DependsOn: []string{"ghost"}}},
		"duplicate name":     {{Name: "a", Type: "x"}, {Name: "a", Type: "y"}},
		"missing type":       {{Name: "a"}},
		"missing name":       {{Type: "x"}},
	}
	for name, tasks := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ExecutionOrder(tasks)
			assert.Error(t, err)
		})
	}
}

func TestRunExpandsVariablesAndOutputs(t *testing.T) {
	o := New()
	var seen []map[string]interface{}
	record := func(out map[string]interface{}) TaskHandler {
		return HandlerFunc(func(_ context.Context, params map[string]interface{}) (map[string]interface{}, error) {
			seen = append(seen, params)
			return out, nil
		})
	}
	o.Register("deploy", record(map[string]interface{}{"address": "0xabc"}))
	o.Register("mint", record(map[string]interface{}{"tokenId": 1}))

	scenario := &Scenario{
		Name:      "expand",
		Variables: map[string]string{"card": "7"},
		Tasks: []Task{
			{Name: "deploy", Type: "deploy"},
			{Name: "mint", Type: "mint", DependsOn: []string{"deploy"}, Params: map[string]interface{}{
				"cardId":   "${card}",
				"contract": "${deploy.address}",
				"nested":   map[string]interface{}{"list": []interface{}{"${card}", 3}},
			}},
		},
	}

	results, err := o.Run(context.Background(), scenario)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "deploy", results[0].TaskName)
	assert.Equal(t, 1, results[1].Output["tokenId"])

	require.Len(t, seen, 2)
	assert.Equal(t, "7", seen[1]["cardId"])
	assert.Equal(t, "0xabc", seen[1]["contract"])
	assert.Equal(t, []interface{}{"7", 3}, seen[1]["nested"].(map[string]interface{})["list"])
}

func TestRunUndefinedReference(t *testing.T) {
	o := New()
	o.Register("mint", HandlerFunc(func(context.Context, map[string]interface{}) (map[string]interface{}, error) {
		t.Fatal("handler must not run")
		return nil, nil
	}))

	_, err := o.Run(context.Background(), &Scenario{Tasks: []Task{
		{Name: "mint", Type: "mint", Params: map[string]interface{}{"cardId": "${missing}"}},
	}})
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.KindValidation))
	assert.Contains(t, err.Error(), "missing")
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	o := New()
	calls := map[string]int{}
	o.Register("ok", HandlerFunc(func(_ context.Context, p map[string]interface{}) (map[string]interface{}, error) {
		calls["ok"]++
		return nil, nil
	}))
	o.Register("fail", HandlerFunc(func(context.Context, map[string]interface{}) (map[string]interface{}, error) {
		calls["fail"]++
		return nil, failure.Chain("draw card", errors.New("connection refused"))
	}))

	results, err := o.Run(context.Background(), &Scenario{Tasks: []Task{
		{Name: "first", Type: "ok"},
		{Name: "broken", Type: "fail", RetryCount: 2},
		{Name: "never", Type: "ok"},
	}})
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.KindChain))
	assert.Len(t, results, 2)
	assert.Equal(t, 3, results[1].Attempts)
	assert.Equal(t, map[string]int{"ok": 1, "fail": 3}, calls)
}

func TestRunDoesNotRetryAfterBroadcast(t *testing.T) {
	tests := map[string]error{
		"decode":  failure.Decode("draw card", errors.New("CardDrawn event not found")),
		"verify":  failure.Verify("verify card", errors.New("metadata mismatch")),
		"partial": failure.Sent(failure.Chain("set card metadata", errors.New("execution reverted"))),
		"receipt": failure.Sent(failure.Chain("draw card", context.DeadlineExceeded)),
	}
	for name, taskErr := range tests {
		t.Run(name, func(t *testing.T) {
			o := New()
			broadcasts := 0
			o.Register("draw", HandlerFunc(func(context.Context, map[string]interface{}) (map[string]interface{}, error) {
				broadcasts++
				return map[string]interface{}{"tokenId": "1"}, taskErr
			}))

			results, err := o.Run(context.Background(), &Scenario{Tasks: []Task{
				{Name: "draw", Type: "draw", RetryCount: 1},
			}})
			require.Error(t, err)
			assert.Equal(t, 1, broadcasts)
			require.Len(t, results, 1)
			assert.Equal(t, 1, results[0].Attempts)
			assert.Equal(t, "1", results[0].Output["tokenId"])
		})
	}
}

func TestRunUnknownType(t *testing.T) {
	_, err := New().Run(context.Background(), &Scenario{Tasks: []Task{{Name: "a", Type: "teleport"}}})
	assert.True(t, failure.Is(err, failure.KindValidation))
	assert.Contains(t, err.Error(), "teleport")
}

func TestRunTaskTimeout(t *testing.T) {
	o := New()
	o.Register("slow", HandlerFunc(func(ctx context.Context, _ map[string]interface{}) (map[string]interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))

	_, err := o.Run(context.Background(), &Scenario{Tasks: []Task{
		{Name: "slow", Type: "slow", Timeout: 10 * time.Millisecond},
	}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParseScenario(t *testing.T) {
	data := []byte(`
name: mint-twice
description: deploy then mint card 1 twice
variables:
  card: "1"
tasks:
  - name: deploy
    type: deploy
  - name: first
    type: mint
    dependsOn: [deploy]
    timeout: 2m
    params:
      cardId: ${card}
  - name: second
    type: mint
    dependsOn: [first]
    retryCount: 1
    params:
      cardId: ${card}
`)
	s, err := ParseScenario(data)
	require.NoError(t, err)
	assert.Equal(t, "mint-twice", s.Name)
	assert.Len(t, s.Tasks, 3)
	assert.Equal(t, 2*time.Minute, s.Tasks[1].Timeout)
	assert.Equal(t, 1, s.Tasks[2].RetryCount)
	assert.Equal(t, "${card}", s.Tasks[1].Params["cardId"])
	assert.Equal(t, "1", s.Variables["card"])

	_, err = ParseScenario([]byte("name: empty\ntasks: []\n"))
	assert.True(t, failure.Is(err, failure.KindState))

	_, err = ParseScenario([]byte("tasks: [{name: a, type: x, dependsOn: [a]}]"))
	assert.True(t, failure.Is(err, failure.KindState))
}
