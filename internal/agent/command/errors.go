package command

import "fmt"

// UsageError makes the dispatcher announce a usage hint.
type UsageError struct {
	Usage string
}

func (e *UsageError) Error() string { return "usage: " + e.Usage }

// Failure is announced verbatim; Err, when set, is only logged.
type Failure struct {
	Msg string
	Err error
}

func (e *Failure) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *Failure) Unwrap() error { return e.Err }

func fail(msg string, err error) error { return &Failure{Msg: msg, Err: err} }
