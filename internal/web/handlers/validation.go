package handlers

import (
	"errors"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/kozaktomas/rollcall/internal/database"
)

var (
	validate   *validator.Validate
	translator ut.Translator

	// custom validation tags
	notBlankTag         = "notblank"
	attendanceStatusTag = "attendance_status"
)

func init() {
	validate = validator.New()

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Report JSON or form field names instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})

	_ = validate.RegisterValidation(notBlankTag, notBlankValidation)
	_ = validate.RegisterValidation(attendanceStatusTag, attendanceStatusValidation)

	registerFn := func(ut.Translator) error { return nil }
	for _, tag := range []string{notBlankTag, attendanceStatusTag} {
		_ = validate.RegisterTranslation(tag, translator, registerFn, translateCustomErrs)
	}
}

func translateCustomErrs(_ ut.Translator, fe validator.FieldError) string {
	switch fe.Tag() {
	case notBlankTag:
		return fe.Field() + " cannot be blank"
	case attendanceStatusTag:
		return fe.Field() + " must be one of PRESENT, LATE, ABSENT"
	default:
		return fe.Error()
	}
}

func notBlankValidation(fl validator.FieldLevel) bool {
	if str, ok := fl.Field().Interface().(string); ok {
		return strings.TrimSpace(str) != ""
	}
	return false
}

func attendanceStatusValidation(fl validator.FieldLevel) bool {
	return database.AttendanceStatus(fl.Field().String()).Valid()
}

// validateStruct runs struct validation and flattens failures into one
// client-facing message ordered by field name.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Translate(translator))
	}
	sort.Strings(msgs)
	return errors.New(strings.Join(msgs, "; "))
}
