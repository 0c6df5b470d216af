// Package imaging re-encodes generated images as JPEG.
package imaging

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// DefaultQuality is the JPEG quality used for uploads
const DefaultQuality = 90

// ContentType is the MIME type of ToJPEG output
const ContentType = "image/jpeg"

const (
	markerPrefix = 0xFF
	markerSOI    = 0xD8
	markerEOI    = 0xD9
	markerSOS    = 0xDA
	markerAPP1   = 0xE1 // EXIF, XMP
	markerAPP2   = 0xE2 // ICC profile

	maxSegmentPayload = 0xFFFF - 2
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// ToJPEG decodes a PNG, JPEG, GIF or WebP image and re-encodes it as JPEG.
// EXIF and ICC segments of JPEG sources, and the eXIf chunk of PNG
// sources, are carried into the output.
func ToJPEG(src []byte, quality int) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode %s as jpeg: %w", format, err)
	}

	var segments [][]byte
	switch format {
	case "jpeg":
		segments = jpegMetadata(src)
	case "png":
		segments = pngMetadata(src)
	}

	return insertSegments(buf.Bytes(), segments), nil
}

// jpegMetadata returns the raw APP1 and APP2 segments, markers included
func jpegMetadata(src []byte) [][]byte {
	var segments [][]byte
	for i := 2; i+4 <= len(src); {
		if src[i] != markerPrefix {
			break
		}
		marker := src[i+1]
		if marker == markerSOS || marker == markerEOI {
			break
		}
		if marker == markerPrefix {
			i++ // fill byte
			continue
		}
		if marker == 0x01 || (marker >= 0xD0 && marker <= 0xD7) {
			i += 2
			continue
		}

		length := int(binary.BigEndian.Uint16(src[i+2 : i+4]))
		end := i + 2 + length
		if length < 2 || end > len(src) {
			break
		}
		if marker == markerAPP1 || marker == markerAPP2 {
			segments = append(segments, src[i:end])
		}
		i = end
	}
	return segments
}

// pngMetadata converts a PNG eXIf chunk into a JPEG APP1 segment
func pngMetadata(src []byte) [][]byte {
	if !bytes.HasPrefix(src, pngSignature) {
		return nil
	}
	for i := len(pngSignature); i+8 <= len(src); {
		length := int(binary.BigEndian.Uint32(src[i : i+4]))
		chunkType := string(src[i+4 : i+8])
		start := i + 8
		end := start + length
		if length < 0 || end+4 > len(src) {
			return nil
		}
		switch chunkType {
		case "eXIf":
			payload := append([]byte("Exif\x00\x00"), src[start:end]...)
			if len(payload) > maxSegmentPayload {
				return nil
			}
			return [][]byte{segment(markerAPP1, payload)}
		case "IDAT", "IEND":
			return nil
		}
		i = end + 4
	}
	return nil
}

func segment(marker byte, payload []byte) []byte {
	seg := make([]byte, 4, 4+len(payload))
	seg[0] = markerPrefix
	seg[1] = marker
	binary.BigEndian.PutUint16(seg[2:4], uint16(len(payload)+2))
	return append(seg, payload...)
}

// insertSegments places segments directly after the SOI marker
func insertSegments(encoded []byte, segments [][]byte) []byte {
	if len(segments) == 0 || len(encoded) < 2 || encoded[0] != markerPrefix || encoded[1] != markerSOI {
		return encoded
	}

	size := len(encoded)
	for _, s := range segments {
		size += len(s)
	}

	out := make([]byte, 0, size)
	out = append(out, encoded[:2]...)
	for _, s := range segments {
		out = append(out, s...)
	}
	return append(out, encoded[2:]...)
}
