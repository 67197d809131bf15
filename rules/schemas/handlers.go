package schemas

import (
	"fmt"
	"strings"

	"github.com/gabisonia/go-rulefilter/rules"
)

// membership describes a join table linking records of an entity to values,
// such as tag assignments.
type membership struct {
	Table       string
	ForeignKey  string
	ValueColumn string
}

// existsHandler renders array rules over a join table as correlated EXISTS
// subqueries. Negative operators and is_empty become NOT EXISTS.
func existsHandler(m membership) rules.Handler {
	return func(hc *rules.HandlerContext) (map[string]any, error) {
		r := hc.Rule
		link := fmt.Sprintf("%s.%s = %s", hc.Quote("m"), hc.Quote(m.ForeignKey), hc.KeyColumn())
		value := fmt.Sprintf("%s.%s", hc.Quote("m"), hc.Quote(m.ValueColumn))

		var cond string
		negate := false
		switch r.Operator {
		case rules.OpContains, rules.OpNotContains:
			cond = fmt.Sprintf(" AND %s = %s", value, hc.Bind(r.Value[0]))
			negate = r.Operator == rules.OpNotContains
		case rules.OpIn, rules.OpNotIn:
			placeholders := make([]string, 0, len(r.Value))
			for _, v := range r.Value {
				placeholders = append(placeholders, hc.Bind(v))
			}
			cond = fmt.Sprintf(" AND %s IN (%s)", value, strings.Join(placeholders, ", "))
			negate = r.Operator == rules.OpNotIn
		case rules.OpIsEmpty:
			negate = true
		case rules.OpIsNotEmpty:
		default:
			return nil, fmt.Errorf("operator %q not supported on %s", r.Operator, m.Table)
		}

		exists := fmt.Sprintf("EXISTS (SELECT 1 FROM %s %s WHERE %s%s)", hc.Quote(m.Table), hc.Quote("m"), link, cond)
		if negate {
			exists = "NOT " + exists
		}
		hc.Where(exists)
		return nil, nil
	}
}

// activeMembershipHandler matches contacts holding a member role that has
// started and not yet expired.
func activeMembershipHandler(hc *rules.HandlerContext) (map[string]any, error) {
	r := hc.Rule
	active, ok := r.Value[0].(bool)
	if !ok {
		return nil, fmt.Errorf("activeMembership value is %T, want bool", r.Value[0])
	}
	var op string
	switch r.Operator {
	case rules.OpEqual:
		op = "="
	case rules.OpNotEqual:
		op = "<>"
	default:
		return nil, fmt.Errorf("operator %q not supported on activeMembership", r.Operator)
	}

	role := hc.Quote("r")
	expr := fmt.Sprintf(
		"CASE WHEN EXISTS (SELECT 1 FROM %s %s WHERE %s.%s = %s AND %s.%s = 'member' AND %s.%s <= CURRENT_TIMESTAMP AND (%s.%s IS NULL OR %s.%s > CURRENT_TIMESTAMP)) THEN 1 ELSE 0 END",
		hc.Quote("contact_role"), role,
		role, hc.Quote("contact_id"), hc.KeyColumn(),
		role, hc.Quote("type"),
		role, hc.Quote("date_added"),
		role, hc.Quote("date_expires"), role, hc.Quote("date_expires"),
	)

	name := hc.Param()
	flag := 0
	if active {
		flag = 1
	}
	hc.Where(fmt.Sprintf("%s %s %s", expr, op, hc.Placeholder(name)))
	return map[string]any{name: flag}, nil
}

// reviewerHandler compares text rules against the email of the contact a
// callout response is assigned to.
func reviewerHandler(hc *rules.HandlerContext) (map[string]any, error) {
	c := hc.Quote("c")
	email := fmt.Sprintf("(SELECT %s.%s FROM %s %s WHERE %s.%s = %s)",
		c, hc.Quote("email"), hc.Quote("contact"), c,
		c, hc.Quote("id"), hc.Column("assignee"),
	)
	fragment, err := hc.Compare(email, hc.Rule)
	if err != nil {
		return nil, err
	}
	hc.Where(fragment)
	return nil, nil
}

// noticeStatusHandler derives a notice's status from its schedule.
func noticeStatusHandler(hc *rules.HandlerContext) (map[string]any, error) {
	starts := hc.Column("starts")
	expires := hc.Column("expires")
	status := fmt.Sprintf(
		"(CASE WHEN %s > CURRENT_TIMESTAMP THEN 'scheduled' WHEN %s IS NOT NULL AND %s <= CURRENT_TIMESTAMP THEN 'finished' ELSE 'open' END)",
		starts, expires, expires,
	)
	fragment, err := hc.Compare(status, hc.Rule)
	if err != nil {
		return nil, err
	}
	hc.Where(fragment)
	return nil, nil
}
