package page

import (
	"regexp"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/vitrine/core"
)

var (
	slugTag  = "slug"
	slugText = "{0} may only contain lowercase letters, digits and dashes"
	slugRe   = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
)

// RegisterValidators adds the page validation tags to validate.
func RegisterValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(slugTag, validateSlug)
	core.RegisterCustomTranslation(validate, translator, slugTag, slugText)
}

func validateSlug(fl validator.FieldLevel) bool {
	if str, ok := fl.Field().Interface().(string); ok {
		return slugRe.MatchString(str)
	}
	return false
}
