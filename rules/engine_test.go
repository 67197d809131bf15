package rules

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabisonia/go-rulefilter/internal/logging"
)

func testEngine(t *testing.T, buf *bytes.Buffer, entities ...Entity) *Engine {
	t.Helper()
	opts := DefaultEngineOptions()
	opts.Clock = func() time.Time { return fixedNow }
	if buf != nil {
		opts.Logger = logging.NewWithWriter(buf, zerolog.DebugLevel)
	}
	engine, err := NewEngine(testRegistry(t, entities...), opts)
	require.NoError(t, err)
	return engine
}

func TestEngineParseAndBuild(t *testing.T) {
	engine := testEngine(t, nil)

	clause, err := engine.ParseAndBuild("people", []byte(`{
		"condition": "AND",
		"rules": [
			{"field": "status", "operator": "equal", "value": ["active"]},
			{"field": "joinedAt", "operator": "greater_or_equal", "value": ["$now(d:-1)"]}
		]
	}`))
	require.NoError(t, err)

	assert.Equal(t, `(("p"."status" = @p1) AND ("p"."joined_at" >= @p2))`, clause.SQL)
	assert.Equal(t, map[string]any{
		"p1": "active",
		"p2": fixedNow.AddDate(0, 0, -1),
	}, clause.Params)
	assert.Equal(t, "postgres", engine.Dialect().Name())
	assert.Equal(t, DefaultLimits(), engine.Limits())
	assert.NotNil(t, engine.Registry())
}

func TestEngineLogsRejectionsAtDebug(t *testing.T) {
	var buf bytes.Buffer
	engine := testEngine(t, &buf)

	_, err := engine.ValidateAndBuild("people", And(NewRule("status", OpEqual, "bogus")))
	requireInvalid(t, err, ReasonNotInOptions)

	out := buf.String()
	assert.Contains(t, out, `"level":"debug"`)
	assert.Contains(t, out, `"message":"rule rejected"`)
	assert.Contains(t, out, `"reason":"value not in options"`)
	assert.Contains(t, out, `"entity":"people"`)
}

func TestEngineLogsContractViolationsAtError(t *testing.T) {
	var buf bytes.Buffer
	entity := peopleEntity()
	entity.Handlers = map[string]Handler{
		"visibleTo": func(hc *HandlerContext) (map[string]any, error) { return nil, nil },
	}
	engine := testEngine(t, &buf, entity)

	_, err := engine.ValidateAndBuild("people", And(NewRule("visibleTo", OpEqual, "u")))
	require.ErrorIs(t, err, ErrContractViolation)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"level":"error"`)
	assert.Contains(t, lines[0], `"stage":"build"`)
}

func TestEngineRejectsMisconfiguration(t *testing.T) {
	registry := testRegistry(t)

	opts := DefaultEngineOptions()
	opts.Limits.MaxDepth = 0
	_, err := NewEngine(registry, opts)
	assert.ErrorIs(t, err, ErrContractViolation)

	opts = DefaultEngineOptions()
	opts.Builder.ParamPrefix = "bad prefix"
	_, err = NewEngine(registry, opts)
	assert.ErrorIs(t, err, ErrContractViolation)

	_, err = NewEngine(nil, DefaultEngineOptions())
	assert.ErrorIs(t, err, ErrContractViolation)
}

func TestEngineParseErrorsAreInvalidRules(t *testing.T) {
	engine := testEngine(t, nil)

	_, err := engine.ParseAndBuild("people", []byte(`{"condition":"AND","rules":[{"nope":1}]}`))
	requireInvalid(t, err, ReasonMalformed)
}

func TestEngineParseAndValidate(t *testing.T) {
	engine := testEngine(t, nil)

	group, err := engine.ParseAndValidate("people", []byte(`{
		"condition": "OR",
		"rules": [{"field": "age", "operator": "between", "value": ["18", 30]}]
	}`))
	require.NoError(t, err)
	assert.Equal(t, ValidatedRuleGroup{
		Condition: ConditionOr,
		Rules: []ValidatedNode{
			ValidatedRule{Type: TypeNumber, Field: "age", Operator: OpBetween, Value: []any{18.0, 30.0}},
		},
	}, group)

	_, err = engine.ParseAndValidate("people", []byte(`{"condition":"AND","rules":[] } {}`))
	requireInvalid(t, err, ReasonMalformed)
}
