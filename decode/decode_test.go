package decode

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math/rand"
	"testing"

	"github.com/abihf/flowimg/pixel"
	"github.com/pkg/errors"
	"golang.org/x/image/bmp"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

// knownRGB is a 2x2 opaque image with distinct samples per channel.
func knownRGB() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{1, 2, 3, 255})
	img.Set(1, 0, color.RGBA{10, 20, 30, 255})
	img.Set(0, 1, color.RGBA{100, 110, 120, 255})
	img.Set(1, 1, color.RGBA{253, 254, 255, 255})
	return img
}

func TestDecodeRGB8(t *testing.T) {
	got, err := Decode(encodePNG(t, knownRGB()))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Layout != pixel.Rgb8 {
		t.Fatalf("layout: got %v, want Rgb8", got.Layout)
	}
	if got.Width != 2 || got.Height != 2 {
		t.Fatalf("size: got %dx%d, want 2x2", got.Width, got.Height)
	}
	want := []uint8{1, 2, 3, 10, 20, 30, 100, 110, 120, 253, 254, 255}
	for i := range want {
		if got.U8[i] != want[i] {
			t.Fatalf("sample %d: got %d, want %d (all %v)", i, got.U8[i], want[i], got.U8)
		}
	}
}

func TestDecodeIsIdempotent(t *testing.T) {
	data := encodePNG(t, knownRGB())
	orig := append([]byte(nil), data...)

	a, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if !pixel.Equal(a, b) {
		t.Error("two decodes of the same buffer differ")
	}
	if !bytes.Equal(data, orig) {
		t.Error("input buffer was modified")
	}
}

func TestDecodeLayouts(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 2, 1))
	gray.Pix = []uint8{10, 200}

	gray16 := image.NewGray16(image.Rect(0, 0, 1, 1))
	gray16.SetGray16(0, 0, color.Gray16{Y: 0xBEEF})

	nrgba := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	nrgba.SetNRGBA(0, 0, color.NRGBA{R: 200, G: 100, B: 50, A: 128})

	rgb16 := image.NewRGBA64(image.Rect(0, 0, 1, 1))
	rgb16.SetRGBA64(0, 0, color.RGBA64{R: 1000, G: 2000, B: 60000, A: 0xffff})

	nrgba64 := image.NewNRGBA64(image.Rect(0, 0, 1, 1))
	nrgba64.SetNRGBA64(0, 0, color.NRGBA64{R: 1, G: 2, B: 3, A: 0x8000})

	tests := []struct {
		name   string
		img    image.Image
		layout pixel.Layout
		check  func(t *testing.T, m *pixel.Image)
	}{
		{"gray8", gray, pixel.Gray8, func(t *testing.T, m *pixel.Image) {
			if m.U8[0] != 10 || m.U8[1] != 200 {
				t.Errorf("samples: %v", m.U8)
			}
		}},
		{"gray16", gray16, pixel.Gray16, func(t *testing.T, m *pixel.Image) {
			if m.U16[0] != 0xBEEF {
				t.Errorf("sample: %#x", m.U16[0])
			}
		}},
		{"rgba8", nrgba, pixel.Rgba8, func(t *testing.T, m *pixel.Image) {
			want := []uint8{200, 100, 50, 128}
			for i := range want {
				if m.U8[i] != want[i] {
					t.Errorf("samples: got %v, want %v", m.U8, want)
					return
				}
			}
		}},
		{"rgb16", rgb16, pixel.Rgb16, func(t *testing.T, m *pixel.Image) {
			want := []uint16{1000, 2000, 60000}
			for i := range want {
				if m.U16[i] != want[i] {
					t.Errorf("samples: got %v, want %v", m.U16, want)
					return
				}
			}
		}},
		{"rgba16", nrgba64, pixel.Rgba16, func(t *testing.T, m *pixel.Image) {
			if m.U16[3] != 0x8000 {
				t.Errorf("alpha: got %#x", m.U16[3])
			}
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decode(encodePNG(t, tc.img))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got.Layout != tc.layout {
				t.Fatalf("layout: got %v, want %v", got.Layout, tc.layout)
			}
			if err := got.Validate(); err != nil {
				t.Fatal(err)
			}
			tc.check(t, got)
		})
	}
}

func TestDecodeJPEGAndBMP(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := range src.Pix {
		src.Pix[i] = 255
	}

	var jpg bytes.Buffer
	if err := jpeg.Encode(&jpg, src, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatal(err)
	}
	var bm bytes.Buffer
	if err := bmp.Encode(&bm, src); err != nil {
		t.Fatal(err)
	}

	for name, data := range map[string][]byte{"jpeg": jpg.Bytes(), "bmp": bm.Bytes()} {
		t.Run(name, func(t *testing.T) {
			format, err := Sniff(data)
			if err != nil {
				t.Fatalf("Sniff: %v", err)
			}
			if format != name {
				t.Errorf("format: got %q, want %q", format, name)
			}
			got, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got.Layout != pixel.Rgb8 || got.Width != 8 || got.Height != 8 {
				t.Errorf("got %v %dx%d", got.Layout, got.Width, got.Height)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	noise := make([]byte, 512)
	rand.New(rand.NewSource(1)).Read(noise)
	noise[0] = 0x00 // no registered signature starts with a zero byte

	valid := encodePNG(t, knownRGB())
	truncated := valid[:40]

	pal := image.NewPaletted(image.Rect(0, 0, 2, 2), color.Palette{color.Black, color.White})
	var gifBuf bytes.Buffer
	if err := gif.Encode(&gifBuf, pal, nil); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrUnrecognizedFormat},
		{"noise", noise, ErrUnrecognizedFormat},
		{"truncated png", truncated, ErrCorruptData},
		{"paletted png", encodePNG(t, pal), ErrUnsupportedLayout},
		{"gif", gifBuf.Bytes(), ErrUnsupportedLayout},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			img, err := Decode(tc.data)
			if err == nil {
				t.Fatalf("expected error, got image %v", img.Layout)
			}
			if img != nil {
				t.Error("image returned alongside error")
			}
			if !errors.Is(err, tc.want) {
				t.Errorf("error %v is not %v", err, tc.want)
			}
		})
	}
}

func TestDecodeRandomNeverPanics(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	valid := encodePNG(t, knownRGB())
	for i := 0; i < 200; i++ {
		data := append([]byte(nil), valid...)
		// flip a few bytes past the signature
		for j := 0; j < 4; j++ {
			data[8+r.Intn(len(data)-8)] ^= byte(r.Intn(256))
		}
		if img, err := Decode(data); err == nil {
			if verr := img.Validate(); verr != nil {
				t.Fatalf("decoded image is invalid: %v", verr)
			}
		}
	}
}

func TestFromImageSubImage(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range src.Pix {
		src.Pix[i] = uint8(i)
	}
	sub := src.SubImage(image.Rect(1, 1, 3, 3))

	got, err := FromImage(sub)
	if err != nil {
		t.Fatal(err)
	}
	want := []uint8{5, 6, 9, 10}
	for i := range want {
		if got.U8[i] != want[i] {
			t.Fatalf("samples: got %v, want %v", got.U8, want)
		}
	}
}

// rawPNG writes a PNG with the given IHDR depth and colour type. Each row
// is stored with filter type None.
func rawPNG(t *testing.T, w, h int, depth, colorType byte, rows [][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	chunk := func(typ string, data []byte) {
		binary.Write(&buf, binary.BigEndian, uint32(len(data)))
		body := append([]byte(typ), data...)
		buf.Write(body)
		binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(body))
	}

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], uint32(w))
	binary.BigEndian.PutUint32(ihdr[4:], uint32(h))
	ihdr[8] = depth
	ihdr[9] = colorType
	chunk("IHDR", ihdr)

	var raw bytes.Buffer
	zw := zlib.NewWriter(&raw)
	for _, row := range rows {
		zw.Write(append([]byte{0}, row...))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	chunk("IDAT", raw.Bytes())
	chunk("IEND", nil)
	return buf.Bytes()
}

func TestDecodeGrayAlphaPNG(t *testing.T) {
	t.Run("depth 8", func(t *testing.T) {
		data := rawPNG(t, 2, 1, 8, 4, [][]byte{{10, 128, 200, 255}})
		img, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if img.Layout != pixel.GrayAlpha8 {
			t.Fatalf("Expected GrayAlpha8, got %v", img.Layout)
		}
		want := []uint8{10, 128, 200, 255}
		for i := range want {
			if img.U8[i] != want[i] {
				t.Fatalf("samples: got %v, want %v", img.U8, want)
			}
		}
		if err := img.Validate(); err != nil {
			t.Error(err)
		}
	})

	t.Run("depth 16", func(t *testing.T) {
		data := rawPNG(t, 1, 1, 16, 4, [][]byte{{0xBE, 0xEF, 0x80, 0x00}})
		img, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if img.Layout != pixel.GrayAlpha16 {
			t.Fatalf("Expected GrayAlpha16, got %v", img.Layout)
		}
		if img.U16[0] != 0xBEEF || img.U16[1] != 0x8000 {
			t.Errorf("samples: got %#x", img.U16)
		}
	})

	t.Run("rgba png keeps rgba", func(t *testing.T) {
		data := rawPNG(t, 1, 1, 8, 6, [][]byte{{1, 2, 3, 4}})
		img, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if img.Layout != pixel.Rgba8 {
			t.Errorf("Expected Rgba8, got %v", img.Layout)
		}
	})
}
