package main

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMissingTransactionID = errors.New("missing transaction identifier")
	ErrAlreadyStarted       = errors.New("wait session already started")
	ErrSessionNotFound      = errors.New("wait session not found")
	ErrUnexpectedEvent      = errors.New("unexpected channel message")
	ErrChannelClosed        = errors.New("transaction channel closed")
	ErrConnectTimeout       = errors.New("transaction channel connect timeout")
	ErrConnectionLost       = errors.New("transaction channel connection lost")
	ErrTokensUnavailable    = errors.New("access tokens not supported by transport")
)

const (
	CodeNotFound    = "NOT_FOUND"
	CodeValidation  = "VALIDATION_ERROR"
	CodeBadRequest  = "BAD_REQUEST"
	CodeUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternal    = "INTERNAL_ERROR"
)

// AppError is the error shape returned by HTTP handlers.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(code, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

func WrapAppError(err error, code, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

func NotFound(message string) *AppError {
	return NewAppError(CodeNotFound, message, http.StatusNotFound)
}

func Validation(err error) *AppError {
	return WrapAppError(err, CodeValidation, err.Error(), http.StatusUnprocessableEntity)
}

func Internal(err error) *AppError {
	return WrapAppError(err, CodeInternal, "internal error", http.StatusInternalServerError)
}
