package engine

import "errors"

var (
	ErrDuplicateAgent = errors.New("agent already registered")
	ErrAgentNotFound  = errors.New("agent not found")
	ErrInvalidAgentID = errors.New("agent id must not be empty")
	ErrAgentRunning   = errors.New("agent is already running")
)
