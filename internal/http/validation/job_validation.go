package validation

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"job-scheduler/internal/model"
)

// RegisterJobValidation adds the job specific tags and reports fields by
// their JSON names.
func RegisterJobValidation(validate *validator.Validate) error {
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		fullJson := field.Tag.Get("json")
		if fullJson == "-" {
			return ""
		}
		jsonName := strings.SplitN(fullJson, ",", 2)[0]
		if jsonName != "" {
			return jsonName
		}
		return field.Name
	})

	return validate.RegisterValidation("jobid", func(fl validator.FieldLevel) bool {
		return model.JobId(fl.Field().String()).Valid()
	})
}
