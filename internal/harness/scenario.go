// Package harness runs YAML conformance scenarios against a fully wired
// system and snapshots the final state. Scenarios exercise the services
// end to end: ordering, quotas, sharing, and identity merges, with golden
// files as the source of truth for expected state.
package harness

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines one conformance scenario.
type Scenario struct {
	// Name uniquely identifies the scenario; golden files are named
	// after it.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description,omitempty"`

	// Actors lists the session names used in steps. Every actor enrolls
	// a fresh anonymous session with its own device before the first
	// step runs.
	Actors []string `yaml:"actors"`

	// Steps run in order against the wired services.
	Steps []Step `yaml:"steps"`
}

// Step is one service operation performed by an actor.
//
// Ops and their args:
//
//	verify         email
//	create_plan    title
//	delete_plan    plan
//	retype_plan    plan, type
//	reorder_plans  type, from, to
//	create_task    plan, title
//	delete_task    plan, task
//	toggle_task    plan, task, done
//	rename_task    plan, task, title
//	reorder_tasks  plan, from, to
//	share          plan, email
//	unshare        plan, email
//	leave          plan
//
// Plans and tasks are referenced by the title they were created with.
type Step struct {
	Actor string         `yaml:"actor"`
	Op    string         `yaml:"op"`
	Args  map[string]any `yaml:"args,omitempty"`

	// Expect names the fault the step must fail with: a kind in lower
	// case ("input", "unauthorized", "not_found") or "rule:<key>".
	// Empty means the step must succeed.
	Expect string `yaml:"expect,omitempty"`
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if s.Name == "" {
		return nil, fmt.Errorf("scenario %s: name is required", path)
	}
	if len(s.Actors) == 0 {
		return nil, fmt.Errorf("scenario %s: at least one actor is required", path)
	}
	actors := make(map[string]bool, len(s.Actors))
	for _, a := range s.Actors {
		actors[a] = true
	}
	for i, step := range s.Steps {
		if !actors[step.Actor] {
			return nil, fmt.Errorf("scenario %s: step %d names unknown actor %q", path, i, step.Actor)
		}
	}
	return &s, nil
}

// stringArg extracts a required string argument.
func (s Step) stringArg(key string) (string, error) {
	v, ok := s.Args[key]
	if !ok {
		return "", fmt.Errorf("op %s: missing arg %q", s.Op, key)
	}
	str, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("op %s: arg %q must be a string", s.Op, key)
	}
	return str, nil
}

// intArg extracts a required integer argument.
func (s Step) intArg(key string) (int, error) {
	v, ok := s.Args[key]
	if !ok {
		return 0, fmt.Errorf("op %s: missing arg %q", s.Op, key)
	}
	n, ok := v.(int)
	if !ok {
		return 0, fmt.Errorf("op %s: arg %q must be an integer", s.Op, key)
	}
	return n, nil
}

// boolArg extracts a required boolean argument.
func (s Step) boolArg(key string) (bool, error) {
	v, ok := s.Args[key]
	if !ok {
		return false, fmt.Errorf("op %s: missing arg %q", s.Op, key)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("op %s: arg %q must be a boolean", s.Op, key)
	}
	return b, nil
}
