package lists

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrDataCorruption marks a stored record or index entry that cannot be
	// decoded or points at nothing. It is always propagated to the caller.
	ErrDataCorruption = errors.New("lists: data corruption")
	// ErrStructuralCorruption marks a stored etag that cannot be parsed.
	// Nothing read past it can be trusted.
	ErrStructuralCorruption = errors.New("lists: structural corruption")
)

func dataCorruption(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrDataCorruption)
}

func structuralCorruption(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrStructuralCorruption)
}
