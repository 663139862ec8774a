package feed

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// postInput is the validated, trimmed text of a post.
type postInput struct {
	Title   string `validate:"required,max=200"`
	Content string `validate:"required,max=10000"`
}

func newPostInput(title, content string) postInput {
	return postInput{
		Title:   strings.TrimSpace(title),
		Content: strings.TrimSpace(content),
	}
}

func (in postInput) validate() error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return unclassified("Validation failed", err)
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{
			Field:   strings.ToLower(fe.Field()),
			Message: fieldMessage(fe),
		})
	}
	return validationError("Validation failed, incorrect data entered.", fields...)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "must not be empty"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return "is invalid"
	}
}
