package service

import (
	"fmt"
)

type ErrResourceNotFound struct {
	error
}

func NewErrResourceNotFound(id string, resourceType string) *ErrResourceNotFound {
	return &ErrResourceNotFound{fmt.Errorf("%s %s not found", resourceType, id)}
}

func NewErrBatchNotFound(id string) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "batch")
}

func NewErrFileNotFound(id string) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "file")
}

func NewErrRunSummaryNotFound(id string) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "run summary")
}

type ErrBatchAlreadyExists struct {
	error
}

func NewErrBatchAlreadyExists(id string) *ErrBatchAlreadyExists {
	return &ErrBatchAlreadyExists{fmt.Errorf("batch %s already exists", id)}
}

type ErrInvalidRequest struct {
	error
}

func NewErrInvalidRequest(message string) *ErrInvalidRequest {
	return &ErrInvalidRequest{fmt.Errorf("bad request: %s", message)}
}
