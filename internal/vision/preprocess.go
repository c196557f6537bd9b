package vision

import (
	"image"

	"golang.org/x/image/draw"
)

// channelNorm maps an 8-bit channel value v to (v - mean) / std.
type channelNorm struct {
	mean, std float32
}

var (
	detectionNorm = channelNorm{mean: 127.5, std: 128}
	embeddingNorm = channelNorm{mean: 127.5, std: 127.5}
)

// toCHW resizes img to w x h and lays it out as normalized planar RGB.
func toCHW(img image.Image, w, h int, n channelNorm) []float32 {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	plane := w * h
	data := make([]float32, 3*plane)
	for i := 0; i < plane; i++ {
		p := dst.Pix[i*4 : i*4+3]
		data[i] = (float32(p[0]) - n.mean) / n.std
		data[plane+i] = (float32(p[1]) - n.mean) / n.std
		data[2*plane+i] = (float32(p[2]) - n.mean) / n.std
	}
	return data
}

// cropFace cuts box out of img with 10% padding on each side.
func cropFace(img image.Image, box image.Rectangle) image.Image {
	bounds := img.Bounds()
	box = box.Intersect(bounds)
	if box.Empty() {
		return nil
	}

	padW, padH := box.Dx()/10, box.Dy()/10
	box = image.Rect(box.Min.X-padW, box.Min.Y-padH, box.Max.X+padW, box.Max.Y+padH).Intersect(bounds)

	crop := image.NewRGBA(image.Rect(0, 0, box.Dx(), box.Dy()))
	draw.Draw(crop, crop.Bounds(), img, box.Min, draw.Src)
	return crop
}
