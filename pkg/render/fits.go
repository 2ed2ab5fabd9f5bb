package render

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// FITS layout constants. Headers and data are padded to 2880-byte
// blocks; header cards are fixed 80-byte records.
const (
	fitsBlockSize = 2880
	fitsCardSize  = 80
)

// ErrInvalidFITS indicates a file that is not a readable FITS image.
var ErrInvalidFITS = errors.New("render: invalid FITS file")

// Image is a decoded two-dimensional FITS image plane. Pixels are
// row-major, BZERO/BSCALE applied, blank values mapped to NaN.
type Image struct {
	Width  int
	Height int
	Pixels []float32
}

// fitsHeader holds the subset of primary-HDU keywords the reader needs.
type fitsHeader struct {
	bitpix   int
	naxis    int
	naxis1   int
	naxis2   int
	bzero    float64
	bscale   float64
	blank    int64
	hasBlank bool
}

// ReadImage decodes the primary HDU of the FITS file at path into a
// float32 plane. Supported BITPIX values: 8, 16, 32, -32, -64. Files
// with more than two axes use the first 2D slice.
func ReadImage(filePath string) (*Image, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open FITS file: %w", err)
	}
	defer func() { _ = f.Close() }()

	hdr, err := readHeader(f)
	if err != nil {
		return nil, err
	}
	if hdr.naxis < 2 || hdr.naxis1 <= 0 || hdr.naxis2 <= 0 {
		return nil, fmt.Errorf("%w: not a 2D image (NAXIS=%d)", ErrInvalidFITS, hdr.naxis)
	}

	return readData(f, hdr)
}

// readHeader consumes 2880-byte header blocks up to and including the
// one containing the END card.
func readHeader(r io.Reader) (*fitsHeader, error) {
	hdr := &fitsHeader{bscale: 1}
	block := make([]byte, fitsBlockSize)
	first := true

	for {
		if _, err := io.ReadFull(r, block); err != nil {
			return nil, fmt.Errorf("%w: truncated header", ErrInvalidFITS)
		}

		for off := 0; off < fitsBlockSize; off += fitsCardSize {
			card := string(block[off : off+fitsCardSize])
			keyword := strings.TrimSpace(card[:8])

			if first && off == 0 && keyword != "SIMPLE" {
				return nil, fmt.Errorf("%w: missing SIMPLE card", ErrInvalidFITS)
			}

			switch keyword {
			case "END":
				return hdr, nil
			case "BITPIX":
				hdr.bitpix = int(cardInt(card))
			case "NAXIS":
				hdr.naxis = int(cardInt(card))
			case "NAXIS1":
				hdr.naxis1 = int(cardInt(card))
			case "NAXIS2":
				hdr.naxis2 = int(cardInt(card))
			case "BZERO":
				hdr.bzero = cardFloat(card)
			case "BSCALE":
				hdr.bscale = cardFloat(card)
			case "BLANK":
				hdr.blank = cardInt(card)
				hdr.hasBlank = true
			}
		}
		first = false
	}
}

// cardValue extracts the raw value field of a header card.
func cardValue(card string) string {
	if len(card) < 10 || card[8] != '=' {
		return ""
	}
	value := card[10:]
	if idx := strings.Index(value, "/"); idx >= 0 {
		value = value[:idx]
	}
	return strings.TrimSpace(value)
}

func cardInt(card string) int64 {
	v, _ := strconv.ParseInt(cardValue(card), 10, 64)
	return v
}

func cardFloat(card string) float64 {
	v, _ := strconv.ParseFloat(cardValue(card), 64)
	return v
}

// readData decodes the first width*height pixels of the data unit.
// FITS data is big-endian.
func readData(r io.Reader, hdr *fitsHeader) (*Image, error) {
	n := hdr.naxis1 * hdr.naxis2
	bytesPerPixel := abs(hdr.bitpix) / 8
	raw := make([]byte, n*bytesPerPixel)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("%w: truncated data unit", ErrInvalidFITS)
	}

	pixels := make([]float32, n)
	for i := 0; i < n; i++ {
		var v float64
		var blank bool

		switch hdr.bitpix {
		case 8:
			raw8 := int64(raw[i])
			blank = hdr.hasBlank && raw8 == hdr.blank
			v = float64(raw8)
		case 16:
			raw16 := int64(int16(binary.BigEndian.Uint16(raw[i*2:])))
			blank = hdr.hasBlank && raw16 == hdr.blank
			v = float64(raw16)
		case 32:
			raw32 := int64(int32(binary.BigEndian.Uint32(raw[i*4:])))
			blank = hdr.hasBlank && raw32 == hdr.blank
			v = float64(raw32)
		case -32:
			v = float64(math.Float32frombits(binary.BigEndian.Uint32(raw[i*4:])))
		case -64:
			v = math.Float64frombits(binary.BigEndian.Uint64(raw[i*8:]))
		default:
			return nil, fmt.Errorf("%w: unsupported BITPIX %d", ErrInvalidFITS, hdr.bitpix)
		}

		if blank {
			pixels[i] = float32(math.NaN())
			continue
		}
		pixels[i] = float32(hdr.bzero + hdr.bscale*v)
	}

	return &Image{Width: hdr.naxis1, Height: hdr.naxis2, Pixels: pixels}, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
