//go:build linux

package v4l

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/jpeg"
	"sync"
)

const (
	markerSOI = 0xD8
	markerDHT = 0xC4
	markerSOS = 0xDA
)

var (
	dhtOnce    sync.Once
	defaultDHT []byte
)

// standardDHT returns the DHT segment image/jpeg writes for a colour
// image. It holds the four Huffman tables of ITU T.81 Annex K.
func standardDHT() []byte {
	dhtOnce.Do(func() {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8)), nil); err != nil {
			return
		}
		data := buf.Bytes()
		segments(data, func(marker byte, start, end int) bool {
			if marker == markerDHT {
				defaultDHT = append([]byte(nil), data[start:end]...)
				return false
			}
			return true
		})
	})
	return defaultDHT
}

// segments calls fn for every marker segment after SOI up to and including
// the first SOS. start is the offset of the 0xFF byte and end is one past
// the segment. Scanning stops when fn returns false or the data is
// malformed.
func segments(data []byte, fn func(marker byte, start, end int) bool) {
	if len(data) < 4 || data[0] != 0xFF || data[1] != markerSOI {
		return
	}
	i := 2
	for i+4 <= len(data) {
		if data[i] != 0xFF {
			return
		}
		marker := data[i+1]
		if marker == 0xFF {
			i++
			continue
		}
		end := i + 2 + int(binary.BigEndian.Uint16(data[i+2:]))
		if end > len(data) {
			return
		}
		if !fn(marker, i, end) || marker == markerSOS {
			return
		}
		i = end
	}
}

// withHuffman inserts the standard Huffman tables in front of the scan of
// a frame that carries none, as many UVC cameras send MJPEG. Any other
// input is returned unchanged.
func withHuffman(frame []byte) []byte {
	sos, hasDHT := -1, false
	segments(frame, func(marker byte, start, end int) bool {
		switch marker {
		case markerDHT:
			hasDHT = true
			return false
		case markerSOS:
			sos = start
		}
		return true
	})
	if hasDHT || sos < 0 {
		return frame
	}
	dht := standardDHT()
	if dht == nil {
		return frame
	}

	out := make([]byte, 0, len(frame)+len(dht))
	out = append(out, frame[:sos]...)
	out = append(out, dht...)
	return append(out, frame[sos:]...)
}
