package rules

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRuleGroup(t *testing.T) {
	data := []byte(`{
		"condition": "OR",
		"rules": [
			{"field": "status", "operator": "equal", "value": ["active"]},
			{"condition": "AND", "rules": [
				{"field": "age", "operator": "between", "value": [18, 65]},
				{"field": "nickname", "operator": "is_empty", "value": []}
			]},
			{"condition": "AND", "rules": []}
		]
	}`)

	group, err := ParseRuleGroup(data, 8)
	require.NoError(t, err)

	want := Or(
		NewRule("status", OpEqual, "active"),
		And(
			NewRule("age", OpBetween, float64(18), float64(65)),
			NewRule("nickname", OpIsEmpty),
		),
		And(),
	)
	assert.Equal(t, want, group)
}

func TestParseRuleGroupRejectsMalformed(t *testing.T) {
	tests := map[string]string{
		"not json":       `{"condition":`,
		"array":          `[]`,
		"ambiguous":      `{"condition":"AND","rules":[{"condition":"AND","field":"x","operator":"equal","value":[]}]}`,
		"neither":        `{"condition":"AND","rules":[{"operator":"equal"}]}`,
		"null entry":     `{"condition":"AND","rules":[null]}`,
		"scalar entry":   `{"condition":"AND","rules":[1]}`,
		"value object":   `{"condition":"AND","rules":[{"field":"x","operator":"equal","value":{"a":1}}]}`,
		"trailing data":  `{"condition":"AND","rules":[]} {}`,
		"condition type": `{"condition":1,"rules":[]}`,
	}

	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRuleGroup([]byte(data), 8)
			invalid := requireInvalid(t, err, ReasonMalformed)
			assert.Nil(t, invalid.Rule)
		})
	}
}

func TestParseRuleGroupNestingLimit(t *testing.T) {
	deep := strings.Repeat(`{"condition":"AND","rules":[`, 50) + strings.Repeat(`]}`, 50)
	_, err := ParseRuleGroup([]byte(deep), 8)
	requireInvalid(t, err, ReasonMaxDepthExceeded)

	// brackets inside strings do not count
	quoted := `{"condition":"AND","rules":[{"field":"name","operator":"equal","value":["` +
		strings.Repeat("[{", 100) + `\"` + `"]}]}`
	group, err := ParseRuleGroup([]byte(quoted), 2)
	require.NoError(t, err)
	require.Len(t, group.Rules, 1)
	assert.Equal(t, strings.Repeat("[{", 100)+`"`, group.Rules[0].(Rule).Value[0])

	exact, err := json.Marshal(nestedGroup(8))
	require.NoError(t, err)
	_, err = ParseRuleGroup(exact, 8)
	require.NoError(t, err)
}

func TestRuleGroupJSONRoundTrip(t *testing.T) {
	group := Or(NewRule("name", OpContains, "x"), And(NewRule("age", OpIn, float64(1), float64(2))))

	data, err := json.Marshal(group)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"condition":"OR","rules":[{"field":"name","operator":"contains","value":["x"]},{"condition":"AND","rules":[{"field":"age","operator":"in","value":[1,2]}]}]}`,
		string(data))

	var decoded RuleGroup
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, group, decoded)
}
