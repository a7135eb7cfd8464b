package decisionlog

import "errors"

// ErrDegraded marks a store append that failed. The run continues and the
// failure is reported with its result.
var ErrDegraded = errors.New("decision log degraded")
