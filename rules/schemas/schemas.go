// Package schemas declares the filterable fields of each record collection.
package schemas

import "github.com/gabisonia/go-rulefilter/rules"

// Entity names.
const (
	Contacts         = "contacts"
	CalloutResponses = "calloutResponses"
	Payments         = "payments"
	Emails           = "emails"
	Notices          = "notices"
	Segments         = "segments"
	Tags             = "tags"
	APIKeys          = "apiKeys"
)

// All returns the definition of every entity.
func All() []rules.Entity {
	return []rules.Entity{
		contacts(),
		calloutResponses(),
		payments(),
		emails(),
		notices(),
		segments(),
		tags(),
		apiKeys(),
	}
}

// Default builds the registry of every entity.
func Default() (*rules.Registry, error) {
	return rules.NewRegistry(All()...)
}

func text() rules.FieldSchema         { return rules.FieldSchema{Type: rules.TypeText} }
func nullableText() rules.FieldSchema { return rules.FieldSchema{Type: rules.TypeText, Nullable: true} }
func date() rules.FieldSchema         { return rules.FieldSchema{Type: rules.TypeDate} }
func nullableDate() rules.FieldSchema { return rules.FieldSchema{Type: rules.TypeDate, Nullable: true} }
func number() rules.FieldSchema       { return rules.FieldSchema{Type: rules.TypeNumber} }
func nullableNumber() rules.FieldSchema {
	return rules.FieldSchema{Type: rules.TypeNumber, Nullable: true}
}
func boolean() rules.FieldSchema { return rules.FieldSchema{Type: rules.TypeBoolean} }
func array() rules.FieldSchema   { return rules.FieldSchema{Type: rules.TypeArray} }
func enum(options ...string) rules.FieldSchema {
	return rules.FieldSchema{Type: rules.TypeEnum, Options: options}
}

func contacts() rules.Entity {
	contributionPeriod := enum("monthly", "annually")
	contributionPeriod.Nullable = true

	return rules.Entity{
		Name:  Contacts,
		Table: "contact",
		Alias: "contact",
		Filters: rules.Filters{
			"id":                        text(),
			"email":                     text(),
			"firstname":                 text(),
			"lastname":                  text(),
			"joined":                    date(),
			"lastSeen":                  nullableDate(),
			"contributionType":          enum("Automatic", "Manual", "Gift", "None"),
			"contributionMonthlyAmount": nullableNumber(),
			"contributionPeriod":        contributionPeriod,
			"deliveryOptIn":             boolean(),
			"newsletterStatus":          enum("subscribed", "unsubscribed", "cleaned", "pending", "none"),
			"manualPaymentSource":       nullableText(),
			"membershipExpires":         nullableDate(),
			"activeMembership":          boolean(),
			"tags":                      {Type: rules.TypeArray, Nullable: true},
		},
		Handlers: map[string]rules.Handler{
			"activeMembership": activeMembershipHandler,
			"tags": existsHandler(membership{
				Table:       "contact_tag_assignment",
				ForeignKey:  "contact_id",
				ValueColumn: "tag_id",
			}),
		},
	}
}

func calloutResponses() rules.Entity {
	return rules.Entity{
		Name:  CalloutResponses,
		Table: "callout_response",
		Alias: "response",
		Filters: rules.Filters{
			"id":        text(),
			"callout":   {Type: rules.TypeText, Column: "callout_slug"},
			"contact":   {Type: rules.TypeText, Nullable: true, Column: "contact_id"},
			"number":    number(),
			"createdAt": date(),
			"updatedAt": date(),
			"bucket":    nullableText(),
			"assignee":  {Type: rules.TypeText, Nullable: true, Column: "assignee_id"},
			"reviewer":  nullableText(),
			"tags":      {Type: rules.TypeArray, Nullable: true},
		},
		Handlers: map[string]rules.Handler{
			"reviewer": reviewerHandler,
			"tags": existsHandler(membership{
				Table:       "callout_response_tag",
				ForeignKey:  "response_id",
				ValueColumn: "tag_id",
			}),
		},
	}
}

func payments() rules.Entity {
	return rules.Entity{
		Name:  Payments,
		Table: "payment",
		Alias: "payment",
		Filters: rules.Filters{
			"id":             text(),
			"contact":        {Type: rules.TypeText, Nullable: true, Column: "contact_id"},
			"chargeDate":     date(),
			"amount":         number(),
			"amountRefunded": nullableNumber(),
			"status":         enum("pending", "successful", "failed", "cancelled"),
		},
	}
}

func emails() rules.Entity {
	return rules.Entity{
		Name:  Emails,
		Table: "email",
		Alias: "email",
		Filters: rules.Filters{
			"id":      text(),
			"name":    text(),
			"subject": text(),
			"date":    date(),
		},
	}
}

func notices() rules.Entity {
	return rules.Entity{
		Name:  Notices,
		Table: "notice",
		Alias: "notice",
		Filters: rules.Filters{
			"id":        text(),
			"createdAt": date(),
			"updatedAt": date(),
			"name":      text(),
			"text":      text(),
			"starts":    date(),
			"expires":   nullableDate(),
			"enabled":   boolean(),
			"status":    enum("open", "scheduled", "finished"),
		},
		Handlers: map[string]rules.Handler{
			"status": noticeStatusHandler,
		},
	}
}

func segments() rules.Entity {
	return rules.Entity{
		Name:  Segments,
		Table: "segment",
		Alias: "segment",
		Filters: rules.Filters{
			"id":          text(),
			"name":        text(),
			"description": text(),
			"order":       number(),
		},
	}
}

func tags() rules.Entity {
	return rules.Entity{
		Name:  Tags,
		Table: "contact_tag",
		Alias: "tag",
		Filters: rules.Filters{
			"id":          text(),
			"name":        text(),
			"description": nullableText(),
		},
	}
}

func apiKeys() rules.Entity {
	return rules.Entity{
		Name:  APIKeys,
		Table: "api_key",
		Alias: "apikey",
		Filters: rules.Filters{
			"id":          text(),
			"createdAt":   date(),
			"expires":     nullableDate(),
			"description": nullableText(),
			"creator":     {Type: rules.TypeText, Column: "creator_id"},
			"scopes":      array(),
		},
	}
}
