package dispatch

import "fmt"

// FetchError reports that a court's listing could not be fetched. Nothing
// was persisted; the court is retried on the next pass.
type FetchError struct {
	Court string
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch court %s: %v", e.Court, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ConsistencyError reports that the commit of a pass failed. The commit is
// a single transaction, so nothing of the pass was persisted.
type ConsistencyError struct {
	Court string
	Err   error
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("commit court %s: %v", e.Court, e.Err)
}

func (e *ConsistencyError) Unwrap() error {
	return e.Err
}
