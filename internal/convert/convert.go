// Package convert turns raw video buffers into interleaved RGB images.
//
// Supported layouts are YUY2 (packed 4:2:2), YV12 and I420 (planar 4:2:0)
// and packed BGR/RGB. 4:2:0 chroma is upsampled horizontally by linear
// interpolation and vertically by row duplication.
package convert

import (
	"errors"
	"fmt"
	"strings"
)

// Format is a raw video format name as it appears in caps.
type Format string

const (
	FormatYUY2 Format = "YUY2"
	FormatYV12 Format = "YV12"
	FormatI420 Format = "I420"
	FormatBGR  Format = "BGR"
	FormatRGB  Format = "RGB"
)

// ErrShortBuffer is returned when a buffer holds fewer bytes than the
// format and dimensions require.
var ErrShortBuffer = errors.New("buffer too short for frame")

// ErrBadDimensions is returned for non-positive sizes and for odd sizes
// in subsampled formats.
var ErrBadDimensions = errors.New("invalid frame dimensions")

// UnsupportedFormatError reports a format tag with no converter.
type UnsupportedFormatError struct {
	Format Format
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported pixel format %q", string(e.Format))
}

// ParseFormat normalizes a caps format string.
func ParseFormat(s string) Format {
	return Format(strings.ToUpper(strings.TrimSpace(s)))
}

// Supported reports whether f has a converter.
func Supported(f Format) bool {
	switch f {
	case FormatYUY2, FormatYV12, FormatI420, FormatBGR, FormatRGB:
		return true
	}
	return false
}

// FrameSize returns the number of bytes a width x height frame occupies.
func FrameSize(f Format, width, height int) (int, error) {
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("%w: %dx%d", ErrBadDimensions, width, height)
	}
	switch f {
	case FormatYUY2:
		if width%2 != 0 {
			return 0, fmt.Errorf("%w: YUY2 width %d is odd", ErrBadDimensions, width)
		}
		return width * height * 2, nil
	case FormatYV12, FormatI420:
		if width%2 != 0 || height%2 != 0 {
			return 0, fmt.Errorf("%w: %s needs even dimensions, got %dx%d", ErrBadDimensions, f, width, height)
		}
		return width*height + 2*(width/2)*(height/2), nil
	case FormatBGR, FormatRGB:
		return width * height * 3, nil
	}
	return 0, &UnsupportedFormatError{Format: f}
}

// ToRGB converts data to an RGB image of the same size. Extra trailing
// bytes (row padding at the end of a buffer) are ignored.
func ToRGB(data []byte, width, height int, f Format) (*RGBImage, error) {
	need, err := FrameSize(f, width, height)
	if err != nil {
		return nil, err
	}
	if len(data) < need {
		return nil, fmt.Errorf("%w: %s %dx%d needs %d bytes, got %d",
			ErrShortBuffer, f, width, height, need, len(data))
	}

	img := NewRGBImage(width, height)
	switch f {
	case FormatYUY2:
		yuy2ToRGB(img, data)
	case FormatI420:
		ySize, cSize := width*height, (width/2)*(height/2)
		planarToRGB(img, data[:ySize], data[ySize:ySize+cSize], data[ySize+cSize:ySize+2*cSize])
	case FormatYV12:
		ySize, cSize := width*height, (width/2)*(height/2)
		planarToRGB(img, data[:ySize], data[ySize+cSize:ySize+2*cSize], data[ySize:ySize+cSize])
	case FormatBGR:
		for i := 0; i < need; i += 3 {
			img.Pix[i], img.Pix[i+1], img.Pix[i+2] = data[i+2], data[i+1], data[i]
		}
	case FormatRGB:
		copy(img.Pix, data[:need])
	}
	return img, nil
}

func clamp8(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
