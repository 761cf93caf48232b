package logs

import (
	"context"
	"errors"
	"fmt"
)

// WrapSpan attaches the span in ctx to err so a failed run printed on stderr
// can be matched with its log records. A nil err stays nil.
func WrapSpan(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	v := ctx.Value(SpanKey)
	if v == nil {
		return err
	}
	return errors.Join(err, fmt.Errorf("span: %s", v.(Span)))
}
