package syscalls

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	_ "image/jpeg" // RawImage items may be JPEG-encoded

	"github.com/sporeprotocol/dob-decoder-go/internal/dobtype"
	"github.com/sporeprotocol/dob-decoder-go/internal/molecule"
	"github.com/sporeprotocol/dob-decoder-go/internal/riscv"
)

// ImageSource fetches off-chain images by URI, satisfied by
// *imagefetch.Fetcher. Kept as a narrow interface here so this package
// never imports imagefetch's HTTP/cache internals.
type ImageSource interface {
	Fetch(ctx context.Context, uris []string) ([][]byte, error)
}

// itemTag discriminates the molecule-encoded ItemVec's tagged union
// (spec §4.F.2 "Item variants").
type itemTag uint32

const (
	itemTagColor itemTag = iota
	itemTagRawImage
	itemTagURI
)

// CombineImages implements the DOB/1 image-compositing syscall.
// MaxCombination bounds the number of items per call; Source resolves
// URI items. A CombineImages is created per decode execution; the image
// source it wraps is the pipeline's shared fetcher, so its cache is shared
// across executions.
type CombineImages struct {
	Source         ImageSource
	MaxCombination int
}

func (CombineImages) Number() int64 { return CombineImagesSyscallNumber }

func (c CombineImages) Handle(m *riscv.Machine) (bool, error) {
	mem := m.Memory()

	bufferAddr := m.Reg(riscv.RegA0)
	bufferSizeAddr := m.Reg(riscv.RegA1)
	itemVecAddr := m.Reg(riscv.RegA2)
	itemVecLen := m.Reg(riscv.RegA3)

	bufferSize, err := mem.Load64(bufferSizeAddr)
	if err != nil {
		return false, err
	}

	itemVecBytes, err := mem.LoadBytes(itemVecAddr, itemVecLen)
	if err != nil {
		return false, err
	}

	items, err := decodeItemVec(itemVecBytes)
	if err != nil {
		return false, err
	}
	if len(items) > c.MaxCombination {
		return false, dobtype.New(dobtype.KindDecoderExecutionError,
			fmt.Sprintf("combine_images: %d items exceeds dob1_max_combination %d", len(items), c.MaxCombination))
	}

	canvas := image.NewRGBA(image.Rect(0, 0, 1, 1))
	draw.Draw(canvas, canvas.Bounds(), image.Transparent, image.Point{}, draw.Src)

	for _, item := range items {
		img, err := c.decodeItem(context.Background(), item)
		if err != nil {
			return false, err
		}
		canvas = overlayResized(canvas, img)
	}

	var encoded bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&encoded, canvas); err != nil {
		return false, dobtype.Wrap(dobtype.KindDecoderExecutionError, "encode combined image as PNG", err)
	}

	if bufferSize == 0 {
		if err := mem.Store64(bufferSizeAddr, uint64(encoded.Len())); err != nil {
			return false, err
		}
		return true, nil
	}

	writeLen := bufferSize
	if uint64(encoded.Len()) < writeLen {
		writeLen = uint64(encoded.Len())
	}
	if err := mem.StoreBytes(bufferAddr, encoded.Bytes()[:writeLen]); err != nil {
		return false, err
	}
	if err := mem.Store64(bufferSizeAddr, writeLen); err != nil {
		return false, err
	}
	return true, nil
}

type vecItem struct {
	tag  itemTag
	body []byte
}

// decodeItemVec decodes the molecule dynvec of tagged Items. Each item
// is itself a 4-byte LE tag followed by the variant's body bytes.
func decodeItemVec(data []byte) ([]vecItem, error) {
	raw, err := molecule.DecodeTable(data)
	if err != nil {
		return nil, dobtype.Wrap(dobtype.KindDecoderExecutionError, "decode ItemVec molecule table", err)
	}
	items := make([]vecItem, 0, len(raw))
	for _, field := range raw {
		if len(field) < 4 {
			return nil, dobtype.New(dobtype.KindDecoderExecutionError, "ItemVec item truncated before tag")
		}
		items = append(items, vecItem{
			tag:  itemTag(binary.LittleEndian.Uint32(field[:4])),
			body: field[4:],
		})
	}
	return items, nil
}

func (c CombineImages) decodeItem(ctx context.Context, item vecItem) (image.Image, error) {
	switch item.tag {
	case itemTagColor:
		return decodeColorItem(item.body)
	case itemTagRawImage:
		img, _, err := image.Decode(bytes.NewReader(item.body))
		if err != nil {
			return nil, dobtype.Wrap(dobtype.KindDecoderExecutionError, "decode RawImage item", err)
		}
		return img, nil
	case itemTagURI:
		if c.Source == nil {
			return nil, dobtype.New(dobtype.KindDecoderExecutionError, "combine_images: URI item but no ImageSource configured")
		}
		blobs, err := c.Source.Fetch(ctx, []string{string(item.body)})
		if err != nil {
			return nil, err
		}
		img, _, err := image.Decode(bytes.NewReader(blobs[0]))
		if err != nil {
			return nil, dobtype.Wrap(dobtype.KindDecoderExecutionError, "decode URI item image", err)
		}
		return img, nil
	default:
		return nil, dobtype.New(dobtype.KindDecoderExecutionError, fmt.Sprintf("unknown ItemVec tag %d", item.tag))
	}
}

// decodeColorItem parses a 6-hex-digit RGB string into an opaque 1x1 image.
func decodeColorItem(body []byte) (image.Image, error) {
	raw, err := hex.DecodeString(string(body))
	if err != nil || len(raw) != 3 {
		return nil, dobtype.New(dobtype.KindDecoderExecutionError, fmt.Sprintf("invalid Color item %q", body))
	}
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: raw[0], G: raw[1], B: raw[2], A: 0xff})
	return img, nil
}

// overlayResized resizes the smaller of {canvas, next} with
// nearest-neighbour to max(width, height) per dimension, then alpha-
// composites next atop canvas (spec §4.F.2 step 4).
func overlayResized(canvas *image.RGBA, next image.Image) *image.RGBA {
	cb, nb := canvas.Bounds(), next.Bounds()
	width := maxInt(cb.Dx(), nb.Dx())
	height := maxInt(cb.Dy(), nb.Dy())

	resizedCanvas := resizeNearest(canvas, width, height)
	resizedNext := resizeNearest(next, width, height)

	out := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(out, out.Bounds(), resizedCanvas, image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), resizedNext, image.Point{}, draw.Over)
	return out
}

// resizeNearest scales src to exactly width x height using
// nearest-neighbour sampling.
func resizeNearest(src image.Image, width, height int) *image.RGBA {
	sb := src.Bounds()
	if sb.Dx() == width && sb.Dy() == height {
		out := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.Draw(out, out.Bounds(), src, sb.Min, draw.Src)
		return out
	}
	out := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		sy := sb.Min.Y + y*sb.Dy()/height
		for x := 0; x < width; x++ {
			sx := sb.Min.X + x*sb.Dx()/width
			out.Set(x, y, src.At(sx, sy))
		}
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
