package mapfile

import (
	"fmt"
	"math/big"
	"strings"
)

// Target is the device-mapper target a sector range is mapped to
type Target int

const (
	// Linear passes reads through to the backing device
	Linear Target = iota
	// Failing returns an I/O error for every access
	Failing
)

func (t Target) String() string {
	if t == Linear {
		return "linear"
	}
	return "error"
}

// Classify maps a mapfile status character onto a target. Only finished
// blocks ('+') are passed through; non-tried ('?'), non-trimmed ('*'),
// non-scraped ('/') and bad-sector ('-') blocks become I/O errors.
func Classify(status rune) (Target, bool) {
	switch status {
	case '+':
		return Linear, true
	case '?', '*', '/', '-':
		return Failing, true
	}
	return 0, false
}

// Line renders the device-mapper table line of a record backed by device.
// Position and size must be sector aligned, which Parse guarantees.
func (r Record) Line(device string) string {
	start := new(big.Int).Quo(r.Position, sectorSize)
	length := new(big.Int).Quo(r.Size, sectorSize)

	target, _ := Classify(r.Status)
	if target == Linear {
		return fmt.Sprintf("%s %s linear %s %s", start, length, device, start)
	}
	return fmt.Sprintf("%s %s error", start, length)
}

// Table renders one table line per record, in mapfile order.
func (m *Map) Table(device string) string {
	var b strings.Builder
	for _, r := range m.Records {
		b.WriteString(r.Line(device))
		b.WriteByte('\n')
	}
	return b.String()
}
