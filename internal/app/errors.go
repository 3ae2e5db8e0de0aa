package service

import (
	"errors"

	eventqueue "github.com/okian/posemon/internal/adapters/mq/queue"
	repository "github.com/okian/posemon/internal/adapters/repository"
	"github.com/okian/posemon/internal/domain/dedupe"
)

// Errors returned by Service. Callers match them with errors.Is.
var (
	ErrNotStarted      = errors.New("service not started")
	ErrDuplicate       = dedupe.ErrDuplicate
	ErrBackpressure    = eventqueue.ErrFull
	ErrSessionNotFound = repository.ErrNotFound
	ErrInvalidSession  = repository.ErrInvalidSession
)
