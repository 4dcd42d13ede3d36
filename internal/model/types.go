package model

import "time"

const EnvelopeVersion = "v1"

// Envelope wraps every CLI result that is not a chat reply.
type Envelope struct {
	Version string       `json:"version"`
	Success bool         `json:"success"`
	Data    any          `json:"data,omitempty"`
	Error   *ErrorBody   `json:"error"`
	Meta    EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command"`
}

// ExecResult is the data of a one-shot `exec` run.
type ExecResult struct {
	Command string `json:"command"`
	Kind    string `json:"kind"`
	Reply   string `json:"reply,omitempty"`
}
