// Package record defines the rows the agent writes to its journal and
// index: connection lifecycle and dispatched commands.
package record

import (
	"errors"
	"time"
)

// Session kinds.
const (
	KindAttempt    = "attempt"
	KindDialFailed = "dial_failed"
	KindSpawn      = "spawn"
	KindKick       = "kick"
	KindError      = "error"
	KindEnd        = "end"
)

type Session struct {
	At      time.Time `json:"at"`
	ConnID  string    `json:"conn_id"`
	Attempt int       `json:"attempt"`
	Kind    string    `json:"kind"`
	Reason  string    `json:"reason,omitempty"`
	RetryMS int64     `json:"retry_ms,omitempty"`
}

type Command struct {
	At      time.Time `json:"at"`
	ConnID  string    `json:"conn_id"`
	Sender  string    `json:"sender"`
	Command string    `json:"command"`
	Args    []string  `json:"args,omitempty"`
	Outcome string    `json:"outcome"`
	Detail  string    `json:"detail,omitempty"`
}

type Recorder interface {
	RecordSession(Session) error
	RecordCommand(Command) error
	Close() error
}

// Multi fans every record out to each recorder and joins their errors.
type Multi []Recorder

func (m Multi) RecordSession(s Session) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RecordSession(s))
	}
	return errors.Join(errs...)
}

func (m Multi) RecordCommand(c Command) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RecordCommand(c))
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.Close())
	}
	return errors.Join(errs...)
}
