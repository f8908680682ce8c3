package mosaic

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/golang/snappy"
	"github.com/paulmach/orb"
)

// Raster is a georeferenced single-band grid: a row-major float32
// pixel buffer, the affine transform tying pixel indices to geographic
// coordinates, and a nodata sentinel. Row 0 is the north edge.
type Raster struct {
	Width     int
	Height    int
	Transform Affine
	NoData    float32
	Pix       []float32
}

// NewRaster allocates a raster with every pixel set to nodata.
func NewRaster(width, height int, transform Affine, nodata float32) *Raster {
	pix := make([]float32, width*height)
	for i := range pix {
		pix[i] = nodata
	}
	return &Raster{
		Width:     width,
		Height:    height,
		Transform: transform,
		NoData:    nodata,
		Pix:       pix,
	}
}

// Bounds returns the geographic extent covered by the pixel grid.
func (r *Raster) Bounds() orb.Bound {
	x0, y0 := r.Transform.Geo(0, 0)
	x1, y1 := r.Transform.Geo(float64(r.Width), float64(r.Height))
	return orb.Bound{
		Min: orb.Point{math.Min(x0, x1), math.Min(y0, y1)},
		Max: orb.Point{math.Max(x0, x1), math.Max(y0, y1)},
	}
}

// At returns the pixel value at (col, row). The caller is responsible
// for bounds.
func (r *Raster) At(col, row int) float32 {
	return r.Pix[row*r.Width+col]
}

// Set writes the pixel value at (col, row).
func (r *Raster) Set(col, row int, v float32) {
	r.Pix[row*r.Width+col] = v
}

// isNoData compares against the nodata sentinel, treating NaN as
// matching NaN (a plain == would never match a NaN nodata).
func isNoData(v, nodata float32) bool {
	if v == nodata {
		return true
	}
	return math.IsNaN(float64(v)) && math.IsNaN(float64(nodata))
}

func (r *Raster) valid() bool {
	return r != nil &&
		r.Width > 0 && r.Height > 0 &&
		len(r.Pix) == r.Width*r.Height &&
		r.Transform.valid()
}

// Wire and persistence codec. Artifacts are stored as a fixed header
// followed by the snappy-compressed little-endian float32 pixel
// buffer.

const rasterMagic = "FSM1"

type rasterHeader struct {
	Width       uint32
	Height      uint32
	OriginX     float64
	OriginY     float64
	PixelWidth  float64
	PixelHeight float64
	NoData      float32
}

// EncodeRaster serializes a raster to its single-file artifact form.
func EncodeRaster(r *Raster) ([]byte, error) {
	if !r.valid() {
		return nil, &SamplingError{Reason: "cannot encode an inconsistent raster"}
	}

	buf := bytes.NewBuffer(nil)
	buf.WriteString(rasterMagic)

	hdr := rasterHeader{
		Width:       uint32(r.Width),
		Height:      uint32(r.Height),
		OriginX:     r.Transform.OriginX,
		OriginY:     r.Transform.OriginY,
		PixelWidth:  r.Transform.PixelWidth,
		PixelHeight: r.Transform.PixelHeight,
		NoData:      r.NoData,
	}
	if err := binary.Write(buf, binary.LittleEndian, &hdr); err != nil {
		return nil, err
	}

	raw := make([]byte, len(r.Pix)*4)
	for i, v := range r.Pix {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}
	buf.Write(snappy.Encode(nil, raw))

	return buf.Bytes(), nil
}

// DecodeRaster parses a single-file raster artifact.
func DecodeRaster(data []byte) (*Raster, error) {
	if len(data) < len(rasterMagic) || string(data[:len(rasterMagic)]) != rasterMagic {
		return nil, errors.New("not a raster artifact: bad magic")
	}

	rd := bytes.NewReader(data[len(rasterMagic):])
	var hdr rasterHeader
	if err := binary.Read(rd, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("truncated raster header: %w", err)
	}

	compressed := make([]byte, rd.Len())
	if _, err := io.ReadFull(rd, compressed); err != nil {
		return nil, fmt.Errorf("truncated raster body: %w", err)
	}
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("decompressing raster body: %w", err)
	}

	want := int(hdr.Width) * int(hdr.Height) * 4
	if len(raw) != want {
		return nil, fmt.Errorf("raster body is %d bytes, header implies %d", len(raw), want)
	}

	pix := make([]float32, int(hdr.Width)*int(hdr.Height))
	for i := range pix {
		pix[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}

	r := &Raster{
		Width:  int(hdr.Width),
		Height: int(hdr.Height),
		Transform: Affine{
			OriginX:     hdr.OriginX,
			OriginY:     hdr.OriginY,
			PixelWidth:  hdr.PixelWidth,
			PixelHeight: hdr.PixelHeight,
		},
		NoData: hdr.NoData,
		Pix:    pix,
	}
	if !r.valid() {
		return nil, errors.New("decoded raster is inconsistent")
	}
	return r, nil
}

var zipMagic = []byte{'P', 'K', 0x03, 0x04}

// UnwrapPayload normalizes a fetched payload to raw raster bytes. The
// image service answers some requests with the raster directly and
// others with a zip archive holding exactly one raster; both forms are
// accepted, anything else is an error.
func UnwrapPayload(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, zipMagic) {
		return data, nil
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening payload archive: %w", err)
	}
	if len(zr.File) != 1 {
		return nil, fmt.Errorf("payload archive holds %d files, want exactly 1", len(zr.File))
	}

	f, err := zr.File[0].Open()
	if err != nil {
		return nil, fmt.Errorf("opening archived raster: %w", err)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading archived raster: %w", err)
	}
	return raw, nil
}
