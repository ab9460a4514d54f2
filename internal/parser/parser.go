// Package parser turns raw source bytes into tables.
package parser

import (
	"fmt"
	"io"

	"github.com/advanced-computing/sleepy-narwhal/internal/config"
	pcsv "github.com/advanced-computing/sleepy-narwhal/internal/parser/csv"
	pjson "github.com/advanced-computing/sleepy-narwhal/internal/parser/json"
	"github.com/advanced-computing/sleepy-narwhal/pkg/table"
)

// Parser reads a whole input into a table. The int result counts rows that
// were skipped as malformed.
type Parser interface {
	Parse(r io.Reader) (table.Table, int, error)
}

// New builds the parser selected by cfg.Kind.
func New(cfg config.Parser) (Parser, error) {
	switch cfg.Kind {
	case "csv":
		return pcsv.NewParser(pcsv.FromConfigOptions(cfg.Options)), nil
	case "json":
		return pjson.NewParser(pjson.FromConfigOptions(cfg.Options)), nil
	default:
		return nil, fmt.Errorf("parser: unsupported kind %q", cfg.Kind)
	}
}
