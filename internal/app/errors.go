package service

import "errors"

// Sentinel errors returned by the service.
var (
	ErrUnknownCohort = errors.New("unknown cohort")
	ErrTeamNotFound  = errors.New("team not found in cohort")
	ErrNotStarted    = errors.New("service not started")
)
