package qoient

import (
	"image"
	"image/color"
	"image/draw"
	"io"
)

func init() {
	image.RegisterFormat("qoient", magic, decodeReader, decodeConfigReader)
}

// EncodeImage compresses m and writes the frame to w. Alpha is taken
// unpremultiplied, so any premultiplied source is converted first.
func EncodeImage(w io.Writer, m image.Image, opts EncodeOptions) error {
	nrgba := imageToNRGBA(m)
	img := &Image{
		Pixels:     nrgba.Pix,
		Width:      uint32(nrgba.Rect.Dx()),
		Height:     uint32(nrgba.Rect.Dy()),
		Channels:   RGBA,
		ColorSpace: SRGB,
	}
	data, err := Encode(img, opts)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// ToImage wraps the decoded pixels in an image.Image. 4-channel buffers
// are wrapped in place; 3-channel ones are expanded with opaque alpha.
// The layout is taken from the buffer length, since Decode may have been
// asked for a different channel count than the header carries.
func (img *Image) ToImage() image.Image {
	w, h := int(img.Width), int(img.Height)
	if len(img.Pixels) == w*h*4 {
		return &image.NRGBA{Pix: img.Pixels, Stride: w * 4, Rect: image.Rect(0, 0, w, h)}
	}
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i, j := 0, 0; i < len(img.Pixels); i, j = i+3, j+4 {
		out.Pix[j] = img.Pixels[i]
		out.Pix[j+1] = img.Pixels[i+1]
		out.Pix[j+2] = img.Pixels[i+2]
		out.Pix[j+3] = 255
	}
	return out
}

// imageToNRGBA copies any image.Image into a tightly packed *image.NRGBA
// with bounds starting at (0,0).
func imageToNRGBA(src image.Image) *image.NRGBA {
	if n, ok := src.(*image.NRGBA); ok {
		b := n.Bounds()
		if b.Min == (image.Point{}) && n.Stride == b.Dx()*4 && len(n.Pix) == b.Dx()*b.Dy()*4 {
			return n
		}
	}
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

func decodeReader(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	img, err := Decode(data, ChannelsAuto)
	if err != nil {
		return nil, err
	}
	return img.ToImage(), nil
}

func decodeConfigReader(r io.Reader) (image.Config, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return image.Config{}, ErrInvalidHeader
	}
	if string(header[:4]) != magic {
		return image.Config{}, ErrInvalidHeader
	}
	width := uint32(header[4])<<24 | uint32(header[5])<<16 | uint32(header[6])<<8 | uint32(header[7])
	height := uint32(header[8])<<24 | uint32(header[9])<<16 | uint32(header[10])<<8 | uint32(header[11])
	if width == 0 || height == 0 || height >= pixelsMax/width {
		return image.Config{}, ErrInvalidHeader
	}
	return image.Config{
		ColorModel: color.NRGBAModel,
		Width:      int(width),
		Height:     int(height),
	}, nil
}
