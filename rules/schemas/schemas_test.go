package schemas

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabisonia/go-rulefilter/rules"
)

func newEngine(t *testing.T, dialect rules.Dialect) *rules.Engine {
	t.Helper()
	registry, err := Default()
	require.NoError(t, err)

	opts := rules.DefaultEngineOptions()
	opts.Builder.Dialect = dialect
	opts.Clock = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	engine, err := rules.NewEngine(registry, opts)
	require.NoError(t, err)
	return engine
}

func TestDefaultRegistersEveryEntity(t *testing.T) {
	registry, err := Default()
	require.NoError(t, err)

	assert.Equal(t, []string{
		APIKeys, CalloutResponses, Contacts, Emails, Notices, Payments, Segments, Tags,
	}, registry.Entities())

	for _, name := range registry.Entities() {
		entity, ok := registry.Entity(name)
		require.True(t, ok)
		assert.NotEmpty(t, entity.Table, name)
		assert.NotEmpty(t, entity.Alias, name)
		assert.NotEmpty(t, entity.Filters, name)
	}
}

func TestFieldMeaningDoesNotLeakAcrossEntities(t *testing.T) {
	registry, err := Default()
	require.NoError(t, err)

	_, err = registry.Lookup(Payments, "amount")
	require.NoError(t, err)
	_, err = registry.Lookup(Contacts, "amount")
	assert.ErrorIs(t, err, rules.ErrUnknownField)

	contactTags, err := registry.Lookup(Contacts, "tags")
	require.NoError(t, err)
	assert.Equal(t, rules.TypeArray, contactTags.Type)
	_, err = registry.Lookup(Tags, "tags")
	assert.ErrorIs(t, err, rules.ErrUnknownField)
}

func TestContactTagsHandler(t *testing.T) {
	engine := newEngine(t, rules.Postgres)

	clause, err := engine.ValidateAndBuild(Contacts, rules.And(
		rules.NewRule("tags", rules.OpContains, "vip"),
		rules.NewRule("tags", rules.OpNotIn, "spam", "bounced"),
	))
	require.NoError(t, err)

	assert.Equal(t,
		`((EXISTS (SELECT 1 FROM "contact_tag_assignment" "m" WHERE "m"."contact_id" = "contact"."id" AND "m"."tag_id" = @p1))`+
			` AND (NOT EXISTS (SELECT 1 FROM "contact_tag_assignment" "m" WHERE "m"."contact_id" = "contact"."id" AND "m"."tag_id" IN (@p2, @p3))))`,
		clause.SQL)
	assert.Equal(t, map[string]any{"p1": "vip", "p2": "spam", "p3": "bounced"}, clause.Params)
}

func TestContactTagsIsEmpty(t *testing.T) {
	engine := newEngine(t, rules.MSSQL)

	clause, err := engine.ValidateAndBuild(Contacts, rules.Or(rules.NewRule("tags", rules.OpIsEmpty)))
	require.NoError(t, err)

	assert.Equal(t,
		`((NOT EXISTS (SELECT 1 FROM [contact_tag_assignment] [m] WHERE [m].[contact_id] = [contact].[id])))`,
		clause.SQL)
	assert.Empty(t, clause.Params)
}

func TestActiveMembershipHandler(t *testing.T) {
	engine := newEngine(t, rules.Postgres)

	clause, err := engine.ValidateAndBuild(Contacts, rules.And(
		rules.NewRule("activeMembership", rules.OpEqual, true),
		rules.NewRule("firstname", rules.OpEqual, "Ada"),
	))
	require.NoError(t, err)

	assert.Contains(t, clause.SQL, `FROM "contact_role" "r" WHERE "r"."contact_id" = "contact"."id"`)
	assert.Contains(t, clause.SQL, `THEN 1 ELSE 0 END = @p1)`)
	assert.Contains(t, clause.SQL, `("contact"."firstname" = @p2)`)
	assert.Equal(t, map[string]any{"p1": 1, "p2": "Ada"}, clause.Params)

	clause, err = engine.ValidateAndBuild(Contacts, rules.And(
		rules.NewRule("activeMembership", rules.OpNotEqual, "false"),
	))
	require.NoError(t, err)
	assert.Contains(t, clause.SQL, `END <> @p1`)
	assert.Equal(t, map[string]any{"p1": 0}, clause.Params)
}

func TestReviewerHandlerRewritesToAssigneeEmail(t *testing.T) {
	engine := newEngine(t, rules.Postgres)

	clause, err := engine.ValidateAndBuild(CalloutResponses, rules.And(
		rules.NewRule("reviewer", rules.OpEqual, "ann@example.org"),
	))
	require.NoError(t, err)

	assert.Equal(t,
		`((((SELECT "c"."email" FROM "contact" "c" WHERE "c"."id" = "response"."assignee_id") = @p1)))`,
		clause.SQL)
	assert.Equal(t, map[string]any{"p1": "ann@example.org"}, clause.Params)
}

func TestReviewerHandlerNegativeMatchesUnassigned(t *testing.T) {
	engine := newEngine(t, rules.Postgres)

	clause, err := engine.ValidateAndBuild(CalloutResponses, rules.And(
		rules.NewRule("reviewer", rules.OpNotContains, "example"),
	))
	require.NoError(t, err)

	assert.Contains(t, clause.SQL, `NOT (`)
	assert.Contains(t, clause.SQL, ` IS NULL)`)
	assert.Equal(t, map[string]any{"p1": "%example%"}, clause.Params)
}

func TestNoticeStatusHandler(t *testing.T) {
	engine := newEngine(t, rules.MSSQL)

	clause, err := engine.ValidateAndBuild(Notices, rules.And(
		rules.NewRule("status", rules.OpIn, "open", "scheduled"),
	))
	require.NoError(t, err)

	assert.Contains(t, clause.SQL, `WHEN [notice].[starts] > CURRENT_TIMESTAMP THEN 'scheduled'`)
	assert.Contains(t, clause.SQL, `END) IN (@p1, @p2))`)
	assert.Equal(t, map[string]any{"p1": "open", "p2": "scheduled"}, clause.Params)

	_, err = engine.ValidateAndBuild(Notices, rules.And(rules.NewRule("status", rules.OpEqual, "archived")))
	assert.ErrorIs(t, err, rules.ErrInvalidRule)
}

func TestHandlersShareParameterCounter(t *testing.T) {
	engine := newEngine(t, rules.Postgres)

	clause, err := engine.ValidateAndBuild(CalloutResponses, rules.Or(
		rules.NewRule("tags", rules.OpIn, "a", "b"),
		rules.NewRule("reviewer", rules.OpBeginsWith, "x"),
		rules.And(rules.NewRule("tags", rules.OpContains, "c")),
	))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"p1": "a", "p2": "b", "p3": "x%", "p4": "c"}, clause.Params)
}

func TestColumnOverrides(t *testing.T) {
	engine := newEngine(t, rules.Postgres)

	clause, err := engine.ValidateAndBuild(APIKeys, rules.And(
		rules.NewRule("creator", rules.OpEqual, "u1"),
		rules.NewRule("createdAt", rules.OpGreaterThan, "$now(d:-7)"),
	))
	require.NoError(t, err)

	assert.Equal(t, `(("apikey"."creator_id" = @p1) AND ("apikey"."created_at" > @p2))`, clause.SQL)
	assert.Equal(t, time.Date(2024, 4, 24, 12, 0, 0, 0, time.UTC), clause.Params["p2"])
}
