package registry

import (
	"fmt"
	"io"
	"iter"
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

// UnknownImage stands in for image paths that are not valid text
const UnknownImage = "Unknown Image"

// DisplayImage returns the image path as shown in listings
func (d Device) DisplayImage() string {
	if !utf8.ValidString(d.ImageFile) {
		return UnknownImage
	}
	return d.ImageFile
}

// WriteList prints one "<image> => /dev/mapper/<name>" line per device,
// padding image paths to a common column.
func WriteList(w io.Writer, devices iter.Seq[Device]) error {
	width := 0
	for d := range devices {
		width = max(width, runewidth.StringWidth(d.DisplayImage()))
	}
	width++

	for d := range devices {
		image := d.DisplayImage()
		padding := strings.Repeat(" ", width-runewidth.StringWidth(image))
		if _, err := fmt.Fprintf(w, "%s%s => %s\n", image, padding, d.MapperPath()); err != nil {
			return err
		}
	}
	return nil
}
