package util

import (
	"errors"
	"fmt"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	// 作答序号已被并发请求占用
	ErrConcurrencyConflict = errors.New("attempt number already allocated")
)

// ValidationError 请求参数错误，单题答案非法时设置 QuestionIndex
type ValidationError struct {
	Message       string
	QuestionIndex *int
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NewInvalidAnswerError 第 i 题答案非法
func NewInvalidAnswerError(i int, format string, args ...interface{}) error {
	idx := i
	return &ValidationError{Message: fmt.Sprintf(format, args...), QuestionIndex: &idx}
}

type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

func NewNotFoundError(resource string) error {
	return &NotFoundError{Resource: resource}
}

type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string {
	if e.Reason == "" {
		return ErrPermissionDenied.Error()
	}
	return e.Reason
}

func (e *ForbiddenError) Unwrap() error {
	return ErrPermissionDenied
}

func NewForbiddenError(reason string) error {
	return &ForbiddenError{Reason: reason}
}

type PolicyReason string

const (
	MaxAttemptsReached PolicyReason = "MaxAttemptsReached"
	RetakeNotAllowed   PolicyReason = "RetakeNotAllowed"
	CooldownActive     PolicyReason = "CooldownActive"
	AlreadyPassed      PolicyReason = "AlreadyPassed"
)

// PolicyDeniedError 重做策略拒绝新的作答
type PolicyDeniedError struct {
	Reason  PolicyReason
	Message string
}

func (e *PolicyDeniedError) Error() string {
	return e.Message
}

// WindowClosedError 不在可提交时间窗口内
type WindowClosedError struct {
	NotYetOpen bool
	Message    string
}

func (e *WindowClosedError) Error() string {
	return e.Message
}

// IsPolicyDenied 判断 err 是否为指定原因的策略拒绝
func IsPolicyDenied(err error, reason PolicyReason) bool {
	var pe *PolicyDeniedError
	return errors.As(err, &pe) && pe.Reason == reason
}
