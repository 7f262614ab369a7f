package mapfile

import (
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
)

// Problem identifies what was wrong with a map file
type Problem int

const (
	EmptyMap Problem = iota + 1
	ConvertCurrentPosition
	NoCurrentStatus
	UnknownCurrentStatus
	InvalidCurrentPass
	NoPosition
	NoSize
	NoStatus
	ConvertPosition
	ConvertSize
	UnknownMapStatus
	PositionSector
	SizeSector
	StartNonzero
	Contiguous
)

var problemMessages = map[Problem]string{
	EmptyMap:               "Map file has no header line",
	ConvertCurrentPosition: "Could not convert current position to a number",
	NoCurrentStatus:        "Missing current status",
	UnknownCurrentStatus:   "Unknown current status, expected one of ? * / - F G +",
	InvalidCurrentPass:     "Current pass must be a positive integer",
	NoPosition:             "Missing position",
	NoSize:                 "Missing size",
	NoStatus:               "Missing status",
	ConvertPosition:        "Could not convert position to a number",
	ConvertSize:            "Could not convert size to a number",
	UnknownMapStatus:       "Unknown map status, expected one of + ? * / -",
	PositionSector:         "Position is not a multiple of 512",
	SizeSector:             "Size is not a multiple of 512",
	StartNonzero:           "Map file does not start at position 0",
	Contiguous:             "Map file is not contiguous",
}

func (p Problem) String() string {
	if msg, ok := problemMessages[p]; ok {
		return msg
	}
	return "problem(" + strconv.Itoa(int(p)) + ")"
}

// ParseError points at the offending token of a map file line.
//
// LineNum counts the lines that survive blank and comment filtering,
// starting at 0 for the header. Column is the byte offset of Token in Line.
type ParseError struct {
	Problem  Problem
	Filename string
	LineNum  int
	Line     string
	Column   int
	Token    string

	// Set for StartNonzero and Contiguous.
	Expected *big.Int
	Found    *big.Int
}

// Message is the human readable description shown under the pointer
func (e *ParseError) Message() string {
	if e.Problem == Contiguous && e.Expected != nil && e.Found != nil {
		return fmt.Sprintf("%s: expected position %s, found %s", e.Problem, e.Expected, e.Found)
	}
	return e.Problem.String()
}

func (e *ParseError) Error() string {
	if e.Line == "" {
		return fmt.Sprintf("%s: %s", e.Filename, e.Message())
	}
	return fmt.Sprintf("%s:%d:%d: %s", e.Filename, e.LineNum, e.Column, e.Message())
}

// Report renders the error cargo-style: file location, the source line and
// a caret run under the token, then the message.
func (e *ParseError) Report(w io.Writer, colored bool) {
	gutter := paint(colored, color.FgBlue, color.Bold)
	caret := paint(colored, color.FgRed, color.Bold)
	message := paint(colored, color.FgRed)

	if e.Line == "" {
		fmt.Fprintf(w, "%s %s\n", gutter.Sprint("-->"), e.Filename)
		fmt.Fprintln(w, message.Sprint(e.Message()))
		return
	}

	num := strconv.Itoa(e.LineNum)
	padding := strings.Repeat(" ", len(num))
	separator := gutter.Sprint("|")

	width := runewidth.StringWidth(e.Token)
	if width == 0 {
		width = 1
	}
	column := e.Column
	if column > len(e.Line) {
		column = len(e.Line)
	}

	fmt.Fprintf(w, "%s%s %s\n", padding, gutter.Sprint("-->"), e.Filename)
	fmt.Fprintf(w, " %s %s\n", padding, separator)
	fmt.Fprintf(w, " %s %s %s\n", gutter.Sprint(num), separator, e.Line)
	fmt.Fprintf(w, " %s %s %s%s\n",
		padding,
		separator,
		strings.Repeat(" ", runewidth.StringWidth(e.Line[:column])),
		caret.Sprint(strings.Repeat("^", width)),
	)
	fmt.Fprintln(w, message.Sprint(e.Message()))
}

func paint(colored bool, attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if colored {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}
