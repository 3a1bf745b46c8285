package question

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned by Dir for unknown question ids.
var ErrNotFound = errors.New("question not found")

// Dir serves questions from <dir>/<id>.toml.
type Dir string

func (d Dir) Question(ctx context.Context, id string) (Question, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return Question{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	q, err := Load(filepath.Join(string(d), id+".toml"))
	if errors.Is(err, fs.ErrNotExist) {
		return Question{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return q, err
}
