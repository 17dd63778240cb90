package main

import (
	"errors"
	"fmt"
)

var (
	ErrFunctionNotFound  = errors.New("function is not registered")
	ErrPollLimitExceeded = errors.New("run did not reach a terminal status within the poll limit")
	ErrRunNotStopped     = errors.New("run is still active after cancellation")
)

type InvalidDescriptorFileError struct {
	Path string
}

func (e InvalidDescriptorFileError) Error() string {
	return fmt.Sprintf("error loading assistant descriptor at provided path %s", e.Path)
}

type DescriptorFileNotFoundError struct {
	Path string
}

func (e DescriptorFileNotFoundError) Error() string {
	return fmt.Sprintf("cannot find assistant descriptor at provided path %s", e.Path)
}

type ChatGPTErrorType string

const (
	ChatGPTErrorTypeAuth      ChatGPTErrorType = "authentication"
	ChatGPTErrorTypeAPI       ChatGPTErrorType = "api"
	ChatGPTErrorTypeTransport ChatGPTErrorType = "transport"
)

// ChatGPTError wraps any failure of a remote call. Op names the call.
type ChatGPTError struct {
	Op   string
	Code int
	Type ChatGPTErrorType
	Err  error
}

func (e ChatGPTError) Error() string {
	if e.Type == ChatGPTErrorTypeTransport {
		return fmt.Sprintf("%s: ChatGPT request failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: received ChatGPT error type %s: status code %d", e.Op, e.Type, e.Code)
}

func (e ChatGPTError) Unwrap() error {
	return e.Err
}

// RunTerminalError reports a run that stopped without completing.
type RunTerminalError struct {
	RunId  string
	Status RunStatus
	Reason string
}

func (e RunTerminalError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("run %s ended with status '%s': %s", e.RunId, e.Status, e.Reason)
	}
	return fmt.Sprintf("run %s ended with status '%s'", e.RunId, e.Status)
}

type DispatchErrorKind string

const (
	DispatchUnknownFunction  DispatchErrorKind = "unknown_function"
	DispatchInvalidArguments DispatchErrorKind = "invalid_arguments"
)

// DispatchError is a tool call that could not be dispatched. It is sent
// back to the assistant as the call's output instead of failing the batch.
type DispatchError struct {
	CallId string
	Name   string
	Kind   DispatchErrorKind
	Err    error
}

func (e DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s (call %s): %s: %v", e.Name, e.CallId, e.Kind, e.Err)
}

func (e DispatchError) Unwrap() error {
	return e.Err
}

// ToolInvocationError is a registered capability that returned an error.
type ToolInvocationError struct {
	CallId string
	Name   string
	Err    error
}

func (e ToolInvocationError) Error() string {
	return fmt.Sprintf("tool %s (call %s) failed: %v", e.Name, e.CallId, e.Err)
}

func (e ToolInvocationError) Unwrap() error {
	return e.Err
}

type UnsupportedFileError struct {
	Path string
}

func (e UnsupportedFileError) Error() string {
	return fmt.Sprintf("file %s does not have a supported extension", e.Path)
}
