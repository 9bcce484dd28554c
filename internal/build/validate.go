package build

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/bootcforge/bootcforge/pkg/types"
)

var validate = validator.New()

var requiredMessages = map[string]string{
	"ID":       "Bootc image id is required.",
	"Image":    "Bootc image name is required.",
	"Tag":      "Bootc image tag is required.",
	"EngineID": "Bootc image engineId is required.",
	"Type":     "Bootc image type is required.",
	"Folder":   "Bootc image folder is required.",
	"Arch":     "Bootc image architecture is required.",
}

// Validate checks a build request before anything is touched. The returned
// error is a *Error of KindValidation naming the first offending field.
func Validate(req types.BuildRequest) error {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) || len(verrs) == 0 {
			return newError(KindValidation, "Invalid build request.", err)
		}
		return newError(KindValidation, fieldMessage(verrs[0]), nil)
	}

	if !filepath.IsAbs(req.Folder) {
		return newError(KindValidation, "Bootc image folder must be an absolute path.", nil)
	}

	aws := 0
	for _, v := range []string{req.AWSAmiName, req.AWSBucket, req.AWSRegion} {
		if v != "" {
			aws++
		}
	}
	if aws != 0 && aws != 3 {
		return newError(KindValidation, "If you are using AWS, you must provide an AMI name, bucket, and region.", nil)
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.StructField()
	if i := strings.Index(field, "["); i >= 0 {
		field = field[:i]
	}

	switch fe.Tag() {
	case "required", "min":
		if msg, ok := requiredMessages[field]; ok {
			return msg
		}
	case "oneof":
		switch field {
		case "Type":
			return fmt.Sprintf("Unsupported disk image type %q.", fe.Value())
		case "Arch":
			return fmt.Sprintf("Unsupported architecture %q.", fe.Value())
		case "Filesystem":
			return "Filesystem must be ext4 or xfs."
		}
	}
	return fmt.Sprintf("Invalid value for %s.", field)
}
