// Package sqlguard decides whether free-form SQL may run and rewrites it
// into the shape the executor and explain tool expect.
package sqlguard

import (
	"fmt"
	"strings"
)

// Guard inspects a statement before any connection is opened.
// A non-nil error means the statement must not run.
type Guard interface {
	Check(sql string) error
}

// DefaultKeywords are the mutating and privilege keywords the denylist rejects.
var DefaultKeywords = []string{"DROP", "DELETE", "ALTER", "TRUNCATE", "GRANT", "REVOKE"}

// RejectedError reports the keyword that caused a statement to be refused.
type RejectedError struct {
	Keyword string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("This action is not allowed %s", e.Keyword)
}

// Denylist is a textual guard: any case-insensitive substring match of a
// keyword rejects the statement. It is not a parser, so identifiers such as
// "deleted_at" are refused and INSERT or UPDATE pass.
type Denylist struct {
	Keywords []string
}

// NewDenylist returns a guard over DefaultKeywords.
func NewDenylist() *Denylist {
	return &Denylist{Keywords: DefaultKeywords}
}

// Check returns a *RejectedError naming the first matching keyword, in list order.
func (d *Denylist) Check(sql string) error {
	upper := strings.ToUpper(sql)
	for _, kw := range d.Keywords {
		if strings.Contains(upper, strings.ToUpper(kw)) {
			return &RejectedError{Keyword: strings.ToUpper(kw)}
		}
	}
	return nil
}

var _ Guard = (*Denylist)(nil)
