// Package diff renders readable differences for test failures.
package diff

import (
	"strings"

	"github.com/k0kubun/pp/v3"
	"github.com/kylelemons/godebug/diff"

	"github.com/walteh/go-elixir/pkg/token"
)

func decorate(d string) string {
	if d == "" {
		return ""
	}
	str := "\n\n"
	str += "to convert ACTUAL ⏩️ EXPECTED:\n\n"
	str += "add:    ➕\n"
	str += "remove: ➖\n"
	str += "\n"
	str += strings.ReplaceAll(strings.ReplaceAll(d, "\n-", "\n➖"), "\n+", "\n➕")
	return str
}

// ExportedOnly diffs the pretty printed exported fields of want and got.
func ExportedOnly[T any](want T, got T) string {
	printer := pp.New()
	printer.SetExportedOnly(true)
	printer.SetColoringEnabled(false)
	return decorate(diff.Diff(printer.Sprint(got), printer.Sprint(want)))
}

// Streams diffs two token streams line by line in read order, expression
// content included.
func Streams(want, got *token.Stream) string {
	return decorate(diff.Diff(token.Dump(got), token.Dump(want)))
}
