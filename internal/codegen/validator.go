package codegen

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
)

// ErrInvalidSource is returned when emitted source fails to parse or
// type-check.
var ErrInvalidSource = errors.New("codegen: invalid source")

// Validate parses and type-checks a generated file. Emitted files import
// nothing, so no importer is configured.
func Validate(source string) error {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "leaves.go", source, parser.AllErrors)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}

	var errs []error
	conf := types.Config{
		Error: func(err error) { errs = append(errs, err) },
	}
	conf.Check(file.Name.Name, fset, []*ast.File{file}, nil)
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidSource, errors.Join(errs...))
	}
	return nil
}
