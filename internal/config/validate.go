package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/robfig/cron/v3"
)

type validatorSvc struct {
	v     *validator.Validate
	trans ut.Translator
}

var (
	vOnce sync.Once
	vSvc  *validatorSvc
)

func getValidator() *validatorSvc {
	vOnce.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		trans, _ := uni.GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())

		// report json paths ("telegram.token") instead of Go field names
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("json")
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})
		_ = en_translations.RegisterDefaultTranslations(v, trans)

		_ = v.RegisterValidation("duration", validDuration)
		_ = v.RegisterValidation("cronspec", validCronSpec)
		registerMessage(v, trans, "duration", "{0} must be a Go duration like 10s or 2m")
		registerMessage(v, trans, "cronspec", "{0} must be a cron spec like @every 1m, or off")

		vSvc = &validatorSvc{v: v, trans: trans}
	})
	return vSvc
}

func registerMessage(v *validator.Validate, trans ut.Translator, tag, text string) {
	_ = v.RegisterTranslation(tag, trans,
		func(ut ut.Translator) error { return ut.Add(tag, text, true) },
		func(ut ut.Translator, fe validator.FieldError) string {
			msg, _ := ut.T(tag, fe.Namespace())
			return msg
		},
	)
}

func validDuration(fl validator.FieldLevel) bool {
	d, err := time.ParseDuration(strings.TrimSpace(fl.Field().String()))
	return err == nil && d >= 0
}

func validCronSpec(fl validator.FieldLevel) bool {
	spec := strings.TrimSpace(fl.Field().String())
	if strings.EqualFold(spec, SweepOff) {
		return true
	}
	_, err := sweepParser.Parse(spec)
	return spec == "" || err == nil
}

// sweepParser matches the parser the reminder scheduler runs the sweep with.
var sweepParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks a parsed config. Every violation is reported, one per line.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	svc := getValidator()

	var msgs []string
	if err := svc.v.Struct(cfg); err != nil {
		var inv *validator.InvalidValidationError
		if errors.As(err, &inv) {
			return fmt.Errorf("config validation: %w", err)
		}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				msgs = append(msgs, trimRoot(fe.Translate(svc.trans)))
			}
		} else {
			msgs = append(msgs, err.Error())
		}
	}

	if len(msgs) == 0 {
		return nil
	}
	return errors.New("invalid config: " + strings.Join(msgs, "; "))
}

// trimRoot drops the "Config." namespace prefix from validator messages.
func trimRoot(s string) string { return strings.ReplaceAll(s, "Config.", "") }
