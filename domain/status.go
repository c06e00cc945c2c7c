package domain

import "fmt"

// TaskStatus is the status of a remote CI run as last observed
type TaskStatus int

const (
	TaskStatusUnknown TaskStatus = iota
	TaskStatusPending
	TaskStatusQueued
	TaskStatusInProgress
	TaskStatusCompleted
)

func (s TaskStatus) String() string {
	switch s {
	case TaskStatusPending:
		return "pending"
	case TaskStatusQueued:
		return "queued"
	case TaskStatusInProgress:
		return "in_progress"
	case TaskStatusCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// ParseTaskStatus maps a stored or remote run status onto TaskStatus.
// GitHub's waiting and requested states are reported as queued.
func ParseTaskStatus(s string) (TaskStatus, error) {
	switch s {
	case "pending":
		return TaskStatusPending, nil
	case "queued", "waiting", "requested":
		return TaskStatusQueued, nil
	case "in_progress":
		return TaskStatusInProgress, nil
	case "completed":
		return TaskStatusCompleted, nil
	case "unknown":
		return TaskStatusUnknown, nil
	default:
		return TaskStatusUnknown, fmt.Errorf("invalid task status: %q", s)
	}
}

// PaymentStatus is the status reported by the payment gateway for an invoice
type PaymentStatus string

const (
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusPaidOver PaymentStatus = "paid_over"
	PaymentStatusPending  PaymentStatus = "pending"
)

// Settled reports whether the payment entitles the buyer to a secret
func (s PaymentStatus) Settled() bool {
	return s == PaymentStatusPaid || s == PaymentStatusPaidOver
}
