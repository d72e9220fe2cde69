package service

import (
	"errors"

	"github.com/okian/signpost/internal/domain/scoring"
)

// Sentinel kinds for service errors.
var (
	ErrBackpressure  = errors.New("ingestion queue is full")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnknownPreset = scoring.ErrUnknownPreset
)
