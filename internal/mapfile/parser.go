// Package mapfile converts GNU ddrescue mapfiles into device-mapper tables.
//
// Structure of the mapfile is described in the ddrescue manual:
// https://www.gnu.org/software/ddrescue/manual/ddrescue_manual.html#Mapfile-structure
package mapfile

import (
	"errors"
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/nace/ddrmount/internal/fault"
)

// SectorSize is the unit of every device-mapper table value
const SectorSize = 512

var sectorSize = big.NewInt(SectorSize)

// Header is the current_pos / current_status / current_pass line
type Header struct {
	Position *big.Int
	Status   rune
	Pass     uint8 // 0 when the mapfile predates pass numbers
}

// Record is one data line of the mapfile, in bytes
type Record struct {
	Position *big.Int
	Size     *big.Int
	Status   rune
}

// Map is a fully validated mapfile
type Map struct {
	Header  Header
	Records []Record
}

type line struct {
	num  int
	text string
}

// cursor locates consecutive fields of a line. Every lookup resumes after
// the previous match so identical fields resolve to their own columns.
type cursor struct {
	text   string
	offset int
}

func (c *cursor) locate(field string) int {
	i := strings.Index(c.text[c.offset:], field)
	if i < 0 {
		return 0
	}
	col := c.offset + i
	c.offset = col + len(field)
	return col
}

// ReadFile reads and parses the mapfile at path
func ReadFile(path string) (*Map, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fault.New(fault.FileNotFound, "Unable to find map file %s", path)
		}
		return nil, fault.New(fault.Unknown, "Unknown error while reading %s: %w", path, err)
	}
	return Parse(path, string(contents))
}

// ParseTable parses contents and renders the device-mapper table for device
func ParseTable(filename, contents, device string) (string, error) {
	m, err := Parse(filename, contents)
	if err != nil {
		return "", err
	}
	return m.Table(device), nil
}

// Parse validates the whole mapfile. The first problem found aborts parsing
// and is returned as a fault.Parse wrapping a *ParseError.
func Parse(filename, contents string) (*Map, error) {
	lines := significantLines(contents)
	if len(lines) == 0 {
		return nil, fault.Wrap(fault.Parse, &ParseError{Problem: EmptyMap, Filename: filename})
	}

	p := parser{filename: filename}
	header, perr := p.header(lines[0])
	if perr != nil {
		return nil, fault.Wrap(fault.Parse, perr)
	}

	m := &Map{Header: header, Records: make([]Record, 0, len(lines)-1)}
	next := new(big.Int)
	for i, l := range lines[1:] {
		rec, perr := p.record(l)
		if perr != nil {
			return nil, fault.Wrap(fault.Parse, perr)
		}

		if rec.Position.Cmp(next) != 0 {
			gap := p.fail(l, p.posColumn, p.posToken, Contiguous)
			if i == 0 {
				gap.Problem = StartNonzero
			}
			gap.Expected = new(big.Int).Set(next)
			gap.Found = new(big.Int).Set(rec.Position)
			return nil, fault.Wrap(fault.Parse, gap)
		}
		next.Add(rec.Position, rec.Size)

		m.Records = append(m.Records, rec)
	}

	return m, nil
}

// significantLines trims every line and drops blank ones and any line
// containing a '#', wherever it appears.
func significantLines(contents string) []line {
	var res []line
	for _, text := range strings.Split(contents, "\n") {
		text = strings.TrimSpace(text)
		if text == "" || strings.Contains(text, "#") {
			continue
		}
		res = append(res, line{num: len(res), text: text})
	}
	return res
}

type parser struct {
	filename string

	// Location of the position field of the last record, reused by the
	// contiguity check.
	posColumn int
	posToken  string
}

func (p *parser) fail(l line, column int, token string, problem Problem) *ParseError {
	return &ParseError{
		Problem:  problem,
		Filename: p.filename,
		LineNum:  l.num,
		Line:     l.text,
		Column:   column,
		Token:    token,
	}
}

func (p *parser) header(l line) (Header, *ParseError) {
	fields := splitFields(l.text)
	cur := cursor{text: l.text}

	var h Header
	if len(fields) == 0 {
		return h, p.fail(l, 0, l.text, ConvertCurrentPosition)
	}
	posColumn := cur.locate(fields[0])
	pos, err := ParseNumber(fields[0])
	if err != nil {
		return h, p.fail(l, posColumn, fields[0], ConvertCurrentPosition)
	}
	h.Position = pos

	if len(fields) < 2 {
		return h, p.fail(l, 0, l.text, NoCurrentStatus)
	}
	statusColumn := cur.locate(fields[1])
	if !isCurrentStatus(fields[1]) {
		return h, p.fail(l, statusColumn, fields[1], UnknownCurrentStatus)
	}
	h.Status = rune(fields[1][0])

	if len(fields) > 2 {
		passColumn := cur.locate(fields[2])
		pass, err := strconv.ParseUint(fields[2], 10, 8)
		if err != nil || pass == 0 {
			return h, p.fail(l, passColumn, fields[2], InvalidCurrentPass)
		}
		h.Pass = uint8(pass)
	}

	return h, nil
}

func (p *parser) record(l line) (Record, *ParseError) {
	fields := splitFields(l.text)
	switch {
	case len(fields) < 1:
		return Record{}, p.fail(l, 0, l.text, NoPosition)
	case len(fields) < 2:
		return Record{}, p.fail(l, 0, l.text, NoSize)
	case len(fields) < 3:
		return Record{}, p.fail(l, 0, l.text, NoStatus)
	}

	cur := cursor{text: l.text}
	posColumn := cur.locate(fields[0])
	sizeColumn := cur.locate(fields[1])
	statusColumn := cur.locate(fields[2])
	p.posColumn, p.posToken = posColumn, fields[0]

	pos, err := ParseNumber(fields[0])
	if err != nil {
		return Record{}, p.fail(l, posColumn, fields[0], ConvertPosition)
	}
	size, err := ParseNumber(fields[1])
	if err != nil {
		return Record{}, p.fail(l, sizeColumn, fields[1], ConvertSize)
	}

	status := []rune(fields[2])[0]
	if _, ok := Classify(status); !ok {
		return Record{}, p.fail(l, statusColumn, string(status), UnknownMapStatus)
	}

	if !aligned(pos) {
		return Record{}, p.fail(l, posColumn, fields[0], PositionSector)
	}
	if !aligned(size) {
		return Record{}, p.fail(l, sizeColumn, fields[1], SizeSector)
	}

	return Record{Position: pos, Size: size, Status: status}, nil
}

// splitFields splits on ASCII whitespace only.
func splitFields(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', '\f', '\r':
			return true
		}
		return false
	})
}

func isCurrentStatus(token string) bool {
	return len(token) == 1 && strings.ContainsRune("?*/-FG+", rune(token[0]))
}

func aligned(n *big.Int) bool {
	return new(big.Int).Mod(n, sectorSize).Sign() == 0
}
