package rules

import (
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
)

var (
	shapeValidator *validator.Validate
	shapeTrans     ut.Translator
)

func init() {
	shapeValidator = validator.New()

	uni := ut.New(en.New(), en.New())
	shapeTrans, _ = uni.GetTranslator("en")

	_ = enTranslations.RegisterDefaultTranslations(shapeValidator, shapeTrans)
}

// NormalizeRule trims surrounding whitespace from the field and operator names
// so every caller resolves rules the same way.
func NormalizeRule(rule Rule) Rule {
	out := Rule{
		Field:    strings.TrimSpace(rule.Field),
		Operator: Operator(strings.TrimSpace(string(rule.Operator))),
	}
	if len(rule.Value) > 0 {
		out.Value = make([]any, len(rule.Value))
		copy(out.Value, rule.Value)
	}
	return out
}

// checkShape runs the struct tag validation of a wire node and returns a
// readable message, or "" when the node is well formed.
func checkShape(node any) string {
	err := shapeValidator.Struct(node)
	if err == nil {
		return ""
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	translated := errs.Translate(shapeTrans)
	msgs := make([]string, 0, len(translated))
	for _, fe := range errs {
		msgs = append(msgs, translated[fe.Namespace()])
	}
	return strings.Join(msgs, " ")
}
