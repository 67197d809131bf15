package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// UnmarshalJSON decodes a wire rule group. Each entry of rules is a group when
// it carries a "condition" key and a leaf rule when it carries a "field" key.
func (g *RuleGroup) UnmarshalJSON(data []byte) error {
	var wire struct {
		Condition Condition         `json:"condition"`
		Rules     []json.RawMessage `json:"rules"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	out := RuleGroup{Condition: wire.Condition, Rules: make([]Node, 0, len(wire.Rules))}
	for i, raw := range wire.Rules {
		node, err := decodeNode(raw)
		if err != nil {
			return fmt.Errorf("rules[%d]: %w", i, err)
		}
		out.Rules = append(out.Rules, node)
	}
	*g = out
	return nil
}

func decodeNode(raw json.RawMessage) (Node, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}
	if probe == nil {
		return nil, fmt.Errorf("rule is null")
	}

	_, isGroup := probe["condition"]
	_, isRule := probe["field"]
	switch {
	case isGroup && isRule:
		return nil, fmt.Errorf("entry has both condition and field")
	case isGroup:
		var group RuleGroup
		if err := json.Unmarshal(raw, &group); err != nil {
			return nil, err
		}
		return group, nil
	case isRule:
		var rule Rule
		if err := json.Unmarshal(raw, &rule); err != nil {
			return nil, err
		}
		return rule, nil
	default:
		return nil, fmt.Errorf("entry is neither a rule nor a rule group")
	}
}

// ParseRuleGroup decodes a wire rule group, rejecting JSON nested deeper than a
// group tree of maxDepth levels can need. Failures are InvalidRuleErrors.
func ParseRuleGroup(data []byte, maxDepth int) (RuleGroup, error) {
	if maxDepth > 0 {
		// group object, rules array, rule object, value array, one spare level
		if err := checkNesting(data, 2*maxDepth+3); err != nil {
			return RuleGroup{}, newInvalidRule(nil, ReasonMaxDepthExceeded, "%v", err)
		}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	var group RuleGroup
	if err := dec.Decode(&group); err != nil {
		return RuleGroup{}, newInvalidRule(nil, ReasonMalformed, "%v", err)
	}
	if dec.More() {
		return RuleGroup{}, newInvalidRule(nil, ReasonMalformed, "trailing data after rule group")
	}
	return group, nil
}

// checkNesting scans raw JSON and fails once objects and arrays nest deeper
// than limit. It does not validate the JSON otherwise.
func checkNesting(data []byte, limit int) error {
	depth := 0
	inString := false
	escaped := false
	for _, b := range data {
		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}
		switch b {
		case '"':
			inString = true
		case '{', '[':
			depth++
			if depth > limit {
				return fmt.Errorf("JSON nesting exceeds %d levels", limit)
			}
		case '}', ']':
			depth--
		}
	}
	return nil
}
