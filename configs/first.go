package configs

import (
	"errors"
	"fmt"
)

// First returns the zero T when no file defines path. Any other failure is a
// broken configuration and panics.
func First[T any](loader Loader, path string) T {
	var value T
	if err := loader.AssignFirst(path, &value); err != nil {
		if errors.Is(err, ErrValueNotFound) {
			return value
		}
		panic(fmt.Errorf("config %s: %w", path, err))
	}
	return value
}
