package memory

import (
	"fmt"
	"time"

	"github.com/gabisonia/go-rulefilter/rules"
	"github.com/gabisonia/go-rulefilter/rules/schemas"
)

// SchemaMatchers returns matchers evaluating the computed fields of the
// schemas catalog the way its filter handlers render them in SQL. Array
// fields such as tags are stored inline and need no matcher.
func SchemaMatchers() map[string]map[string]Matcher {
	return map[string]map[string]Matcher{
		schemas.Contacts: {
			"activeMembership": activeMembershipMatcher,
		},
		schemas.CalloutResponses: {
			"reviewer": reviewerMatcher,
		},
		schemas.Notices: {
			"status": noticeStatusMatcher,
		},
	}
}

// activeMembershipMatcher reads the contact's "roles": records with a type, a
// dateAdded and an optional dateExpires.
func activeMembershipMatcher(mc *MatchContext, r rules.ValidatedRule) (bool, error) {
	roles, err := nestedRecords(mc.Record["roles"])
	if err != nil {
		return false, err
	}
	active := false
	for _, role := range roles {
		if role["type"] != "member" {
			continue
		}
		added, ok := normalizeValue(rules.TypeDate, role["dateAdded"]).(time.Time)
		if !ok || added.After(mc.Now) {
			continue
		}
		expires, ok := normalizeValue(rules.TypeDate, role["dateExpires"]).(time.Time)
		if ok && !expires.After(mc.Now) {
			continue
		}
		active = true
		break
	}
	return mc.Compare(active, r)
}

// reviewerMatcher compares the email of the assigned contact.
func reviewerMatcher(mc *MatchContext, r rules.ValidatedRule) (bool, error) {
	var email any
	if assignee, ok := mc.Record["assignee"].(string); ok {
		if contact, found := mc.Lookup(schemas.Contacts, assignee); found {
			email = contact["email"]
		}
	}
	return mc.Compare(email, r)
}

func noticeStatusMatcher(mc *MatchContext, r rules.ValidatedRule) (bool, error) {
	status := "open"
	starts, ok := normalizeValue(rules.TypeDate, mc.Record["starts"]).(time.Time)
	switch {
	case ok && starts.After(mc.Now):
		status = "scheduled"
	default:
		expires, ok := normalizeValue(rules.TypeDate, mc.Record["expires"]).(time.Time)
		if ok && !expires.After(mc.Now) {
			status = "finished"
		}
	}
	return mc.Compare(status, r)
}

func nestedRecords(value any) ([]Record, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []Record:
		return v, nil
	case []map[string]any:
		out := make([]Record, len(v))
		for i, item := range v {
			out[i] = item
		}
		return out, nil
	case []any:
		out := make([]Record, 0, len(v))
		for _, item := range v {
			switch m := item.(type) {
			case Record:
				out = append(out, m)
			case map[string]any:
				out = append(out, m)
			default:
				return nil, fmt.Errorf("%w: nested item is %T", ErrInvalidRecord, item)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: nested records field holds %T", ErrInvalidRecord, value)
	}
}
