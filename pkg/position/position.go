package position

import (
	"fmt"
	"sort"

	"github.com/apparentlymart/go-textseg/v13/textseg"
)

// Place is a 1-based line and character in a source text. Characters count
// grapheme clusters, not bytes.
type Place struct {
	Line      int
	Character int
}

type Range struct {
	Start Place
	End   Place
}

func (p Place) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Character)
}

// RawPosition represents a position in the source text
type RawPosition struct {
	// Offset is the byte offset in the source text
	Offset int
	// Text is the actual text at this position
	Text string
}

func NewBasicPosition(text string, offset int) RawPosition {
	return RawPosition{Text: text, Offset: offset}
}

// ID returns a unique identifier for this position based on offset and text
func (p RawPosition) ID() string {
	return fmt.Sprintf("%s@%d", p.Text, p.Offset)
}

func (p RawPosition) Length() int {
	return len(p.Text)
}

func (p RawPosition) GetEndPosition() RawPosition {
	return RawPosition{
		Text:   "",
		Offset: p.Offset + p.Length(),
	}
}

func (p RawPosition) String() string {
	return fmt.Sprintf("%s@%d", p.Text, p.Offset)
}

// Index maps byte offsets of one source text to lines and columns. It is
// built once per document and is read-only afterwards.
type Index struct {
	src    []byte
	starts []int // byte offset of the first byte of every line
}

func NewIndex(src []byte) *Index {
	starts := []int{0}
	for i, b := range src {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &Index{src: src, starts: starts}
}

// LineCount returns the number of lines in the source, counting a trailing
// partial line.
func (x *Index) LineCount() int {
	return len(x.starts)
}

// Line returns the 1-based line containing offset. Offsets past the end of
// the source resolve to the last line.
func (x *Index) Line(offset int) int {
	if offset <= 0 {
		return 1
	}
	// first line start strictly greater than offset, minus one
	return sort.SearchInts(x.starts, offset+1)
}

// Place returns the 1-based line and grapheme column of offset.
func (x *Index) Place(offset int) Place {
	if offset > len(x.src) {
		offset = len(x.src)
	}
	if offset < 0 {
		offset = 0
	}

	line := x.Line(offset)
	start := x.starts[line-1]

	col, err := textseg.TokenCount(x.src[start:offset], textseg.ScanGraphemeClusters)
	if err != nil {
		// invalid utf-8 never fails the scan, fall back to bytes anyway
		col = offset - start
	}

	return Place{Line: line, Character: col + 1}
}

// Range resolves the start and end of a raw position.
func (x *Index) Range(p RawPosition) Range {
	return Range{
		Start: x.Place(p.Offset),
		End:   x.Place(p.GetEndPosition().Offset),
	}
}

// PlaceInText returns the 1-based line and grapheme column reached after
// consuming text, starting from the given place. It is used for positions
// inside attribute values and text runs that are not addressable by offset.
func PlaceInText(from Place, text string) Place {
	line := from.Line
	lastBreak := -1
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			line++
			lastBreak = i
		}
	}

	if lastBreak == -1 {
		n, _ := textseg.TokenCount([]byte(text), textseg.ScanGraphemeClusters)
		return Place{Line: line, Character: from.Character + n}
	}

	n, _ := textseg.TokenCount([]byte(text[lastBreak+1:]), textseg.ScanGraphemeClusters)
	return Place{Line: line, Character: n + 1}
}
