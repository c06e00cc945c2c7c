package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/bygga/bygga/project"
	"github.com/bygga/bygga/repository"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// maxBodySize caps request bodies read by the JSON handlers
const maxBodySize = 1 << 20

// Response is the envelope every API endpoint except the payment webhook answers with.
// Code 0 means success, anything else mirrors an HTTP status.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
	Error   string `json:"error,omitempty"`
}

// PaginatedData is the data of a paginated list response
type PaginatedData[T any] struct {
	List     []T   `json:"list"`
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

var validate = newValidator()

// newValidator reports fields by their JSON names
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		LogOperationError("write_response", "handlers", err)
	}
}

// WriteSuccess writes data in a success envelope
func WriteSuccess(w http.ResponseWriter, data any, message string) {
	if message == "" {
		message = "success"
	}
	writeJSON(w, http.StatusOK, Response{Code: 0, Message: message, Data: data})
}

// WriteError writes an error envelope. The HTTP status stays 200; clients read code.
func WriteError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, http.StatusOK, Response{Code: code, Message: message, Error: message})
}

// WriteServiceError maps a service error onto an error envelope
func WriteServiceError(w http.ResponseWriter, err error) {
	WriteError(w, project.ErrorCode(err), project.FormatErrorForUser(err))
}

// WritePage writes one page of results, converting every item with view
func WritePage[T, V any](w http.ResponseWriter, page *repository.Page[T], view func(T) V) {
	list := make([]V, 0, len(page.List))
	for _, item := range page.List {
		list = append(list, view(item))
	}
	WriteSuccess(w, PaginatedData[V]{
		List:     list,
		Page:     page.Page,
		PageSize: page.PageSize,
		Total:    page.Total,
	}, "")
}

// LogOperationError logs errors with consistent structure
func LogOperationError(operation, layer string, err error, fields ...any) {
	args := []any{"layer", layer, "operation", operation, "error", err}
	args = append(args, fields...)
	slog.Error("Operation failed", args...)
}

// DecodeJSON reads the request body into dst and runs struct validation on it
func DecodeJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("failed to read request body: %w", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return errors.New("request body is required")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return ValidateStruct(dst)
}

// ValidateStruct runs the validate tags of v and flattens failures into one readable error
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	messages := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		messages = append(messages, fieldMessage(fe))
	}
	return errors.New(strings.Join(messages, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "gt", "gte", "min":
		return fmt.Sprintf("%s must be at least %s", field, minimum(fe))
	case "lte", "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func minimum(fe validator.FieldError) string {
	if fe.Tag() != "gt" {
		return fe.Param()
	}
	n, err := strconv.Atoi(fe.Param())
	if err != nil {
		return fe.Param()
	}
	return strconv.Itoa(n + 1)
}

// ParseID extracts and validates a positive integer id from the URL path
func ParseID(r *http.Request) (int64, error) {
	idStr := chi.URLParam(r, "id")
	if idStr == "" {
		return 0, errors.New("missing id")
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id: %s", idStr)
	}
	return id, nil
}

// ParseListOptions reads page and size query parameters. Without either of them the full
// list is returned. Page defaults to 1 and size is clamped to 1..MaxPageSize.
func ParseListOptions(r *http.Request) repository.ListOptions {
	query := r.URL.Query()
	pageStr, sizeStr := query.Get("page"), query.Get("size")
	if pageStr == "" && sizeStr == "" {
		return repository.ListOptions{}
	}

	page, err := strconv.Atoi(pageStr)
	if err != nil || page < 1 {
		page = 1
	}
	size, err := strconv.Atoi(sizeStr)
	switch {
	case err != nil:
		size = 10
	case size < 1:
		size = 1
	case size > repository.MaxPageSize:
		size = repository.MaxPageSize
	}
	return repository.ListOptions{Page: page, Size: size}
}

// queryInt64 parses an optional positive integer query parameter
func queryInt64(r *http.Request, key string) (*int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return nil, fmt.Errorf("invalid %s: %s", key, raw)
	}
	return &v, nil
}
