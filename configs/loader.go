package configs

import (
	"fmt"
	"iter"
	"os"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Loader reads cue files lazily, once. Each file is validated on its own
// against the closed schema, so a misspelled field such as machine.heapsize
// fails the load instead of being ignored. Lookups go through the files in
// the order given; the first file defining a path wins.
type Loader struct {
	files func() ([]file, error)
}

type file struct {
	value cue.Value
	path  string
}

func NewLoader(filePaths []string, schemaSrc string) Loader {
	return Loader{
		files: sync.OnceValues(func() (ret []file, err error) {

			var schema cue.Value
			if schemaSrc != "" {
				schema = cuecontext.New().CompileString("close({" + schemaSrc + "})")
				if err := schema.Err(); err != nil {
					return nil, fmt.Errorf("config schema: %w", err)
				}
			}

			for _, filePath := range filePaths {
				content, err := os.ReadFile(filePath)
				if err != nil {
					return nil, err
				}
				value := cuecontext.New().CompileBytes(
					content,
					cue.Filename(filePath),
				)
				if err := value.Err(); err != nil {
					return nil, fmt.Errorf("%s: %w", filePath, err)
				}
				if schema.Exists() {
					if err := schema.Unify(value).Validate(); err != nil {
						return nil, fmt.Errorf("%s: %w", filePath, err)
					}
				}
				ret = append(ret, file{
					value: value,
					path:  filePath,
				})
			}

			return
		}),
	}
}

// IterCueValues yields path from every file that defines it.
func (l Loader) IterCueValues(path string) iter.Seq2[*cue.Value, error] {
	return func(yield func(*cue.Value, error) bool) {
		files, err := l.files()
		if err != nil {
			yield(nil, err)
			return
		}
		cuePath := cue.ParsePath(path)
		for _, f := range files {
			value := f.value.LookupPath(cuePath)
			if value.Err() != nil {
				continue
			}
			if !yield(&value, nil) {
				break
			}
		}
	}
}

// AssignFirst decodes path from the first file defining it into target.
func (l Loader) AssignFirst(path string, target any) error {
	files, err := l.files()
	if err != nil {
		return err
	}
	cuePath := cue.ParsePath(path)
	for _, f := range files {
		value := f.value.LookupPath(cuePath)
		if value.Err() != nil {
			continue
		}
		if err := value.Decode(target); err != nil {
			return fmt.Errorf("%s: %s: %w", f.path, path, err)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrValueNotFound, path)
}
