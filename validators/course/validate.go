package courseValidator

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"coursehub/middleware"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report fields by their json names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// fieldErrors turns validator output into the field -> message map of the 422 response
func fieldErrors(err error) map[string]string {
	out := make(map[string]string)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		out["body"] = err.Error()
		return out
	}
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		out[field] = message(fe)
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required!", fe.Field())
	case "min":
		return fmt.Sprintf("%s must have at least %s item(s)!", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must not exceed %s!", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s!", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s!", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s!", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid!", fe.Field())
	}
}

// parseID reads a positive numeric route parameter
func parseID(c *fiber.Ctx, param string) (uint, bool) {
	raw := strings.TrimSpace(c.Params(param))
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// bind parses the body into req and validates it, writing the error response itself
func bind(c *fiber.Ctx, req interface{}) (bool, error) {
	if err := c.BodyParser(req); err != nil {
		return false, middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
	}
	if err := validate.Struct(req); err != nil {
		return false, middleware.ValidationErrorResponse(c, fieldErrors(err))
	}
	return true, nil
}
