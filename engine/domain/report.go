package domain

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Report accumulates validation errors for a batch. A zero Report is ready to use.
type Report struct {
	Errors []ValidationError `json:"errors"`
}

// Add appends one error.
func (r *Report) Add(e ValidationError) { r.Errors = append(r.Errors, e) }

// Addf appends an error built from its parts.
func (r *Report) Addf(index int, subject string, kind ErrorKind, pred ResourceURI, value string, format string, args ...any) {
	r.Add(ValidationError{
		Index:     index,
		Subject:   subject,
		Predicate: pred,
		Value:     value,
		Kind:      kind,
		Message:   fmt.Sprintf(format, args...),
	})
}

// Merge appends every error of other.
func (r *Report) Merge(other Report) { r.Errors = append(r.Errors, other.Errors...) }

// OK reports whether no error was collected.
func (r Report) OK() bool { return len(r.Errors) == 0 }

// Len returns the number of collected errors.
func (r Report) Len() int { return len(r.Errors) }

// ForIndex returns the errors raised for candidate i.
func (r Report) ForIndex(i int) []ValidationError {
	var out []ValidationError
	for _, e := range r.Errors {
		if e.Index == i {
			out = append(out, e)
		}
	}
	return out
}

// Err folds the report into a single error, or nil when OK.
func (r Report) Err() error {
	if r.OK() {
		return nil
	}
	var merr *multierror.Error
	for _, e := range r.Errors {
		merr = multierror.Append(merr, e)
	}
	merr.ErrorFormat = func(es []error) string {
		return fmt.Sprintf("%d validation error(s): %v", len(es), es[0])
	}
	return merr
}
