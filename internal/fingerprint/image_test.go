package fingerprint

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func TestDecodeImage(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, createTestImage(40, 30, color.White)); err != nil {
		t.Fatal(err)
	}

	img, err := DecodeImage(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeImage() error: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 40 || b.Dy() != 30 {
		t.Errorf("unexpected bounds %v", b)
	}

	if _, err := DecodeImage([]byte("not an image")); err == nil {
		t.Error("expected error for invalid data")
	}
}

func TestCropFace(t *testing.T) {
	frame := createTestImage(100, 80, color.White)

	crop := CropFace(frame, image.Rect(10, 20, 50, 60))
	if crop == nil {
		t.Fatal("expected crop")
	}
	if b := crop.Bounds(); b.Dx() != 40 || b.Dy() != 40 {
		t.Errorf("expected 40x40 crop, got %v", b)
	}

	if CropFace(frame, image.Rect(200, 200, 300, 300)) != nil {
		t.Error("expected nil for a region outside the frame")
	}
}

func TestEncodeJPEG(t *testing.T) {
	data, err := EncodeJPEG(createTestImage(16, 16, color.Black))
	if err != nil {
		t.Fatalf("EncodeJPEG() error: %v", err)
	}
	if detectMIMEType(data) != "image/jpeg" {
		t.Errorf("expected JPEG output, got %s", detectMIMEType(data))
	}
}

func TestDetectMIMEType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0}, "image/jpeg"},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "image/png"},
		{"bmp", []byte{0x42, 0x4D, 0, 0, 0, 0, 0, 0}, "image/bmp"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBP"), "image/webp"},
		{"short", []byte{0xFF}, "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectMIMEType(tt.data); got != tt.want {
				t.Errorf("detectMIMEType() = %s, want %s", got, tt.want)
			}
		})
	}
}
