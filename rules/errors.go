package rules

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrInvalidRule       = errors.New("rules: invalid rule")
	ErrContractViolation = errors.New("rules: internal contract violation")
	ErrUnknownEntity     = errors.New("rules: unknown entity")
	ErrUnknownField      = errors.New("rules: unknown field")
	ErrSchemaMismatch    = errors.New("rules: storage schema mismatch")
)

// InvalidRuleCode is the error code reported to API callers for rejected input.
const InvalidRuleCode = "invalid-rule"

// Reasons carried by InvalidRuleError.
const (
	ReasonMalformed        = "malformed rule"
	ReasonInvalidCondition = "invalid condition"
	ReasonUnknownField     = "unknown field"
	ReasonInvalidOperator  = "operator not valid for field type"
	ReasonWrongArity       = "wrong number of values"
	ReasonWrongType        = "value has wrong type"
	ReasonNotInOptions     = "value not in options"
	ReasonBetweenOrder     = "between bounds out of order"
	ReasonRequiresNullable = "operator requires nullable field"
	ReasonMaxDepthExceeded = "rule group nested too deeply"
	ReasonTooManyRules     = "too many rules"
)

// InvalidRuleError reports user input that failed validation. Rule is nil when
// the problem is on a group rather than a leaf.
type InvalidRuleError struct {
	Rule   *Rule
	Reason string
	Detail string
}

func newInvalidRule(rule *Rule, reason string, format string, args ...any) *InvalidRuleError {
	var cp *Rule
	if rule != nil {
		r := *rule
		cp = &r
	}
	detail := ""
	if format != "" {
		detail = fmt.Sprintf(format, args...)
	}
	return &InvalidRuleError{Rule: cp, Reason: reason, Detail: detail}
}

// Message returns the human readable part of the error without the package prefix.
func (e *InvalidRuleError) Message() string {
	if e.Detail == "" {
		return e.Reason
	}
	return e.Reason + ": " + e.Detail
}

func (e *InvalidRuleError) Error() string {
	return ErrInvalidRule.Error() + ": " + e.Message()
}

func (e *InvalidRuleError) Is(target error) bool {
	return target == ErrInvalidRule
}

// MarshalJSON renders the error object handed to API callers.
func (e *InvalidRuleError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Code    string `json:"code"`
		Rule    *Rule  `json:"rule"`
		Message string `json:"message"`
	}{
		Code:    InvalidRuleCode,
		Rule:    e.Rule,
		Message: e.Message(),
	})
}

// ContractViolationError reports a programming error: a misbehaving filter
// handler, a misconfigured bound or an unknown entity. It is never caused by
// user input.
type ContractViolationError struct {
	Entity string
	Field  string
	Err    error
}

func (e *ContractViolationError) Error() string {
	switch {
	case e.Entity != "" && e.Field != "":
		return fmt.Sprintf("%s: %s.%s: %v", ErrContractViolation, e.Entity, e.Field, e.Err)
	case e.Entity != "":
		return fmt.Sprintf("%s: %s: %v", ErrContractViolation, e.Entity, e.Err)
	default:
		return fmt.Sprintf("%s: %v", ErrContractViolation, e.Err)
	}
}

func (e *ContractViolationError) Is(target error) bool {
	return target == ErrContractViolation
}

func (e *ContractViolationError) Unwrap() error {
	return e.Err
}

func contractViolation(entity, field string, format string, args ...any) *ContractViolationError {
	return &ContractViolationError{Entity: entity, Field: field, Err: fmt.Errorf(format, args...)}
}
