package http

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/YelzhanWeb/restaurant/internal/adapter/logger"
	"github.com/YelzhanWeb/restaurant/internal/domain"
)

type ErrorResponse struct {
	Error  string              `json:"error"`
	Errors []domain.FieldError `json:"errors,omitempty"`
}

func init() {
	// Report validation failures under their JSON names.
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(jsonFieldName)
	}
}

func jsonFieldName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}

// respondError maps the domain error taxonomy onto HTTP status codes.
func respondError(c *gin.Context, log logger.Logger, action string, err error) {
	var (
		ve *domain.ValidationError
		nf *domain.NotFoundError
		pe *domain.PreconditionError
		ce *domain.ConflictError
	)
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: ve.Message, Errors: ve.Fields})
	case errors.As(err, &nf):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: nf.Error()})
	case errors.As(err, &pe):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: pe.Error()})
	case errors.As(err, &ce):
		c.JSON(http.StatusConflict, ErrorResponse{Error: ce.Error()})
	default:
		log.Error(action, "Request failed", logger.RequestIDFrom(c.Request.Context()), map[string]interface{}{
			"path": c.FullPath(),
		}, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

// bindJSON decodes and validates the body. On failure it has already
// written the 400 response.
func bindJSON(c *gin.Context, req any) bool {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]domain.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, domain.FieldError{Field: fieldPath(fe), Message: describeTag(fe)})
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation failed", Errors: fields})
		return false
	}

	c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	return false
}

// fieldPath drops the struct name prefix: "createOrderRequest.items[0].name" -> "items[0].name".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), "'", "")
	}
	return "failed " + fe.Tag() + " validation"
}

func requireHeader(c *gin.Context, header, field string) (string, bool) {
	v := strings.TrimSpace(c.GetHeader(header))
	if v == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:  "validation failed",
			Errors: []domain.FieldError{{Field: field, Message: header + " header is required"}},
		})
		return "", false
	}
	return v, true
}
