package block

import (
	"sync"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/vitrine/core"
)

const publishTag = "publish"

var (
	validatorsOnce sync.Once
	translator     ut.Translator
	shapeValidator *validator.Validate // `validate` tags
	fullValidator  *validator.Validate // `publish` tags
)

func initValidators() {
	validatorsOnce.Do(func() {
		translator = core.NewTranslator()
		shapeValidator = core.NewValidator(translator)
		fullValidator = core.NewValidator(translator)
		fullValidator.SetTagName(publishTag)
	})
}

// checkShape rejects configs with malformed values (unknown enum members, out-of-range grid views,
// empty asset references). Incomplete drafts pass.
func checkShape(cfg Config) error {
	initValidators()
	return check(shapeValidator, cfg)
}

// Validate reports whether cfg is well-formed and complete enough to be saved and rendered.
func Validate(cfg Config) error {
	if cfg == nil {
		return &InvalidConfigError{Reason: "missing config"}
	}
	initValidators()
	if err := check(shapeValidator, cfg); err != nil {
		return err
	}
	return check(fullValidator, cfg)
}

func check(v *validator.Validate, cfg Config) error {
	err := v.Struct(cfg)
	if err == nil {
		return nil
	}
	vErr, ok := core.TranslateValidationErrors(err, translator).(*core.ValidationError)
	if !ok {
		return &InvalidConfigError{Type: cfg.Type(), Reason: err.Error()}
	}
	return &InvalidConfigError{Type: cfg.Type(), Fields: vErr.Fields}
}

// ValidateBlocks checks every block of a sequence and returns the first failure, tagged with its block id.
func ValidateBlocks(blocks []Block) error {
	for _, b := range blocks {
		if err := Validate(b.Config); err != nil {
			if icErr, ok := err.(*InvalidConfigError); ok {
				icErr.BlockID = b.ID
			}
			return err
		}
	}
	return nil
}
