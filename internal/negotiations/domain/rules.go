package domain

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Wildcards accepted on the match side of a rule. The next stage is always
// concrete.
const (
	StageAny  Stage      = "*"
	RoleAny   ThreadRole = "*"
	AnyIntent Intent     = "*"
)

type ruleKey struct {
	stage  Stage
	role   ThreadRole
	intent Intent
}

// RuleTable maps (stage, thread role, intent) to the next stage. Lookups
// fall back from the exact key to intent and then stage/role wildcards,
// so a single rule can cover reschedule requests from every stage.
type RuleTable struct {
	rules map[ruleKey]Stage
}

// Rule is one transition in the serialized form of the table.
type Rule struct {
	Stage  Stage      `yaml:"stage"`
	Role   ThreadRole `yaml:"role"`
	Intent Intent     `yaml:"intent"`
	Next   Stage      `yaml:"next"`
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// DefaultRules is the built-in transition table covering the happy path,
// provider-led rebooking and the reschedule branch.
func DefaultRules() []Rule {
	return []Rule{
		{StageInitialContact, RoleClient, AnyIntent, StageAwaitingProviderAvailability},
		{StageAwaitingProviderAvailability, RoleProvider, IntentAvailabilityGiven, StageAwaitingClientSlotSelection},
		{StageAwaitingClientSlotSelection, RoleClient, IntentSlotSelected, StageAwaitingProviderConfirmation},
		{StageAwaitingProviderConfirmation, RoleProvider, IntentConfirmationGiven, StageAwaitingMeetingLink},
		{StageAwaitingProviderConfirmation, RoleProvider, IntentMeetingLinkProvided, StageConfirmed},
		{StageAwaitingMeetingLink, RoleProvider, IntentMeetingLinkProvided, StageConfirmed},
		{StageRescheduling, RoleProvider, IntentAvailabilityGiven, StageAwaitingClientSlotSelection},
		{StageFeedbackRequested, RoleClient, IntentFeedbackGiven, StageCompleted},
		{StageAny, RoleAny, IntentRescheduleRequested, StageRescheduling},
	}
}

// NewRuleTable builds a table from the given rules, validating every value.
func NewRuleTable(rules []Rule) (*RuleTable, error) {
	table := &RuleTable{rules: make(map[ruleKey]Stage, len(rules))}
	for i, rule := range rules {
		if rule.Stage != StageAny && !IsKnownStage(rule.Stage) {
			return nil, fmt.Errorf("rule %d: unknown stage %q", i, rule.Stage)
		}
		if rule.Role != RoleAny && !IsKnownThreadRole(rule.Role) {
			return nil, fmt.Errorf("rule %d: unknown role %q", i, rule.Role)
		}
		if rule.Intent != AnyIntent && !IsKnownIntent(rule.Intent) {
			return nil, fmt.Errorf("rule %d: unknown intent %q", i, rule.Intent)
		}
		if !IsKnownStage(rule.Next) {
			return nil, fmt.Errorf("rule %d: unknown next stage %q", i, rule.Next)
		}
		if IsTerminal(rule.Stage) {
			return nil, fmt.Errorf("rule %d: terminal stage %q admits no transitions", i, rule.Stage)
		}
		key := ruleKey{rule.Stage, rule.Role, rule.Intent}
		if _, exists := table.rules[key]; exists {
			return nil, fmt.Errorf("rule %d: duplicate rule for %s/%s/%s", i, rule.Stage, rule.Role, rule.Intent)
		}
		table.rules[key] = rule.Next
	}
	return table, nil
}

// DefaultRuleTable returns the built-in table. It never fails; the defaults
// are covered by tests.
func DefaultRuleTable() *RuleTable {
	table, err := NewRuleTable(DefaultRules())
	if err != nil {
		panic(fmt.Sprintf("default transition rules invalid: %v", err))
	}
	return table
}

// LoadRuleTable reads a full replacement table from a YAML file. An empty
// path returns the defaults.
func LoadRuleTable(path string) (*RuleTable, error) {
	if path == "" {
		return DefaultRuleTable(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transition rules: %w", err)
	}
	var file ruleFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse transition rules: %w", err)
	}
	if len(file.Rules) == 0 {
		return nil, fmt.Errorf("transition rules file %s contains no rules", path)
	}
	return NewRuleTable(file.Rules)
}

// Next returns the stage a message with the given role and intent moves the
// negotiation to. Lookup tries the exact key, then the stage/role wildcard
// for the intent, then the intent wildcard for the stage and role, so a
// cross-stage rule like the reschedule branch beats a stage-local
// catch-all. Terminal stages and unknown intents never transition.
func (t *RuleTable) Next(stage Stage, role ThreadRole, intent Intent) (Stage, bool) {
	if IsTerminal(stage) || intent == IntentUnknown {
		return "", false
	}
	if next, ok := t.rules[ruleKey{stage, role, intent}]; ok {
		return next, true
	}
	if next, ok := t.rules[ruleKey{StageAny, RoleAny, intent}]; ok {
		return next, true
	}
	if next, ok := t.rules[ruleKey{stage, role, AnyIntent}]; ok {
		return next, true
	}
	return "", false
}
