package resp

import (
	"errors"
	"fmt"
)

// ErrNeedMore is returned by Parse when buf is a valid prefix of a frame
// but does not yet contain the whole thing. Callers must retain every
// byte of buf and retry once more data has arrived.
var ErrNeedMore = errors.New("resp: need more data")

// FormatError reports that buf can never be extended into a valid frame.
// It carries the byte offset the decoder had reached, mirroring the
// offset-tagged wire errors used elsewhere in this codebase's lineage.
type FormatError struct {
	Offset  int
	Message string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("resp: malformed frame at offset %d: %s", e.Offset, e.Message)
}
