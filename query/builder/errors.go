package builder

import (
	"errors"
	"fmt"

	"github.com/satishbabariya/relq/mapping"
)

// ErrNotImplemented is returned for query shapes the builder cannot inline.
var ErrNotImplemented = errors.New("not implemented")

// AssociationError reports a failure resolving one association.
type AssociationError struct {
	ObjectType string
	Member     mapping.MemberInfo
	Cause      error
}

func (e *AssociationError) Error() string {
	return fmt.Sprintf("association %s on %s: %v", e.Member, e.ObjectType, e.Cause)
}

// Unwrap returns the underlying error.
func (e *AssociationError) Unwrap() error {
	return e.Cause
}
