package project

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bygga/bygga/domain"
	"github.com/bygga/bygga/git"
	"gorm.io/gorm"
)

// FormatErrorForUser converts technical errors to user-friendly messages
// This should only be called at the handler level
func FormatErrorForUser(err error) string {
	if err == nil {
		return ""
	}

	if domain.KindOf(err) != domain.KindInternal {
		return domain.MessageOf(err)
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return "record not found"
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return "this entry already exists"
	case errors.Is(err, git.ErrBranchNotFound):
		return "branch not found in repository"
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "unique constraint") && strings.Contains(errStr, "value"):
		return "a secret with this value already exists"
	case strings.Contains(errStr, "unique constraint"):
		return "this entry already exists"
	case strings.Contains(errStr, "foreign key constraint"):
		return "referenced entry does not exist"
	case strings.Contains(errStr, "record not found"):
		return "record not found"
	case strings.Contains(errStr, "connection"):
		return "database connection failed"
	case strings.Contains(errStr, "timeout"):
		return "operation timed out"
	// Git authentication failures (more specific matches first)
	case strings.Contains(errStr, "authentication required"):
		return "git authentication required - please configure a GitHub token"
	case strings.Contains(errStr, "authorization failed") || strings.Contains(errStr, "authentication failed"):
		return "git authentication failed - please check the GitHub token"
	case strings.Contains(errStr, "repository not found"):
		return "git repository not found - please check the owner, name and token permissions"
	case strings.Contains(errStr, "permission denied"):
		return "permission denied"
	default:
		return "an unexpected error occurred"
	}
}

// ErrorCode returns the envelope code for err
func ErrorCode(err error) int {
	if kind := domain.KindOf(err); kind != domain.KindInternal {
		return kind.Code()
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), errors.Is(err, gorm.ErrForeignKeyViolated):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
