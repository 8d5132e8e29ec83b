package harness

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tally/internal/model"
)

// Scenario defines a conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Author and Device form the identity steps fall back to.
	// Defaults are DefaultAuthor and DefaultDevice.
	Author string `yaml:"author,omitempty"`
	Device string `yaml:"device,omitempty"`

	// Key is an optional hex snapshot key. Defaults to a fixed test key.
	Key string `yaml:"key,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one operation against the tracker or the database.
type Step struct {
	// Label names the commit this step creates so later steps and
	// assertions can refer to it.
	Label string `yaml:"label,omitempty"`

	// Op is one of the Op* constants.
	Op string `yaml:"op"`

	Author string `yaml:"author,omitempty"`

	// cash and balance
	Prev   string `yaml:"prev,omitempty"`
	Next   string `yaml:"next,omitempty"`
	Source string `yaml:"source,omitempty"` // cash: manual | distribution
	Manual bool   `yaml:"manual,omitempty"` // balance

	// debt and entity
	Entity string         `yaml:"entity,omitempty"` // entity type, entity op only
	ID     string         `yaml:"id,omitempty"`
	Change string         `yaml:"change,omitempty"` // add | modify | delete
	Before map[string]any `yaml:"before,omitempty"`
	After  map[string]any `yaml:"after,omitempty"`

	// restore and tamper
	Commit string `yaml:"commit,omitempty"` // label of an earlier step
	Column string `yaml:"column,omitempty"` // tamper target, see TamperColumns

	// ExpectError is the error kind the step must fail with, e.g.
	// "DecryptionError". Empty means the step must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step operations.
const (
	OpCash    = "cash"
	OpBalance = "balance"
	OpDebt    = "debt"
	OpEntity  = "entity"
	OpRestore = "restore"
	OpTamper  = "tamper"
	OpClear   = "clear"
)

// Assertion validates the history after all steps ran.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Commit is a step label (change_type, description_contains,
	// restore_amount).
	Commit string `yaml:"commit,omitempty"`

	Count        *int     `yaml:"count,omitempty"`         // commit_count
	Expect       string   `yaml:"expect,omitempty"`        // change_type
	Text         string   `yaml:"text,omitempty"`          // description_contains
	Valid        *bool    `yaml:"valid,omitempty"`         // integrity_valid
	FirstInvalid string   `yaml:"first_invalid,omitempty"` // integrity_valid, step label
	Amount       string   `yaml:"amount,omitempty"`        // restore_amount
	EntityType   string   `yaml:"entity_type,omitempty"`   // entity_history
	EntityID     string   `yaml:"entity_id,omitempty"`     // entity_history
	Changes      []string `yaml:"changes,omitempty"`       // entity_history, most recent first
}

// Assertion type constants.
const (
	AssertCommitCount         = "commit_count"
	AssertChangeType          = "change_type"
	AssertDescriptionContains = "description_contains"
	AssertIntegrityValid      = "integrity_valid"
	AssertRestoreAmount       = "restore_amount"
	AssertEntityHistory       = "entity_history"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// FindScenarios lists the *.yaml files in dir, sorted, optionally
// filtered by a glob on the file name.
func FindScenarios(dir, filter string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || (filepath.Ext(name) != ".yaml" && filepath.Ext(name) != ".yml") {
			continue
		}
		if filter != "" {
			ok, err := filepath.Match(filter, strings.TrimSuffix(name, filepath.Ext(name)))
			if err != nil {
				return nil, fmt.Errorf("bad filter %q: %w", filter, err)
			}
			if !ok {
				continue
			}
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)
	return files, nil
}

// validateScenario checks that required fields are present and that every
// label reference points at an earlier step.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.Description == "" {
		return errors.New("description is required")
	}
	if len(s.Steps) == 0 {
		return errors.New("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return errors.New("assertions list is required and must be non-empty")
	}
	if s.Key != "" {
		if _, err := hex.DecodeString(s.Key); err != nil {
			return fmt.Errorf("key: %w", err)
		}
	}

	labels := make(map[string]bool)
	for i, step := range s.Steps {
		if err := validateStep(i, step, labels); err != nil {
			return err
		}
		if step.Label != "" {
			if labels[step.Label] {
				return fmt.Errorf("steps[%d]: duplicate label %q", i, step.Label)
			}
			labels[step.Label] = true
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a, labels); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step, labels map[string]bool) error {
	switch step.Op {
	case OpCash, OpBalance:
		if _, err := model.ParseAmount(step.Prev); err != nil {
			return fmt.Errorf("steps[%d]: prev: %w", i, err)
		}
		if _, err := model.ParseAmount(step.Next); err != nil {
			return fmt.Errorf("steps[%d]: next: %w", i, err)
		}
	case OpDebt, OpEntity:
		if step.Op == OpEntity {
			if _, err := model.ParseEntityType(step.Entity); err != nil {
				return fmt.Errorf("steps[%d]: %w", i, err)
			}
		}
		if _, err := model.ParseChangeType(step.Change); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	case OpRestore, OpTamper:
		if !labels[step.Commit] {
			return fmt.Errorf("steps[%d]: commit %q does not name an earlier step", i, step.Commit)
		}
		if step.Op == OpTamper {
			if _, ok := TamperColumns[step.Column]; !ok {
				return fmt.Errorf("steps[%d]: cannot tamper with column %q", i, step.Column)
			}
			if step.Label != "" {
				return fmt.Errorf("steps[%d]: tamper steps create no commit and take no label", i)
			}
		}
	case OpClear:
		if step.Label != "" {
			return fmt.Errorf("steps[%d]: clear steps create no commit and take no label", i)
		}
	case "":
		return fmt.Errorf("steps[%d]: op is required", i)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
	}
	return nil
}

func validateAssertion(i int, a Assertion, labels map[string]bool) error {
	needLabel := func(label, field string) error {
		if !labels[label] {
			return fmt.Errorf("assertions[%d]: %s %q does not name a step", i, field, label)
		}
		return nil
	}

	switch a.Type {
	case AssertCommitCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for commit_count", i)
		}
	case AssertChangeType:
		if _, err := model.ParseChangeType(a.Expect); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
		return needLabel(a.Commit, "commit")
	case AssertDescriptionContains:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for description_contains", i)
		}
		return needLabel(a.Commit, "commit")
	case AssertIntegrityValid:
		if a.Valid == nil {
			return fmt.Errorf("assertions[%d]: valid is required for integrity_valid", i)
		}
		if a.FirstInvalid != "" {
			return needLabel(a.FirstInvalid, "first_invalid")
		}
	case AssertRestoreAmount:
		if _, err := model.ParseAmount(a.Amount); err != nil {
			return fmt.Errorf("assertions[%d]: amount: %w", i, err)
		}
		return needLabel(a.Commit, "commit")
	case AssertEntityHistory:
		if _, err := model.ParseEntityType(a.EntityType); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
		if a.EntityID == "" {
			return fmt.Errorf("assertions[%d]: entity_id is required for entity_history", i)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", i)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
	}
	return nil
}
