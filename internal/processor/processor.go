package processor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"path"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/nfnt/resize"
	"golang.org/x/image/font/basicfont"

	// Decoders beyond the stdlib ones registered by imaging.
	_ "golang.org/x/image/webp"
)

// ErrMalformedImage is returned when the source bytes cannot be decoded as an image.
var ErrMalformedImage = errors.New("malformed image")

const (
	ModeFill = "fill" // exact size, centre crop
	ModeFit  = "fit"  // fits inside the box, keeps aspect ratio

	EngineImaging = "imaging"
	EngineNfnt    = "nfnt"

	// DefaultMaxPixels matches the decompression bomb limit of common imaging libraries.
	DefaultMaxPixels = 50_000_000
)

// Options configures the thumbnail transform.
type Options struct {
	Width       int
	Height      int
	Mode        string
	Engine      string
	JPEGQuality int
	Watermark   string
	// MaxPixels rejects sources whose declared canvas is larger, before decoding.
	MaxPixels int64

	UploadPrefix string // prefix stripped from the original key, e.g. "uploads/"
	ThumbPrefix  string // prefix of derived keys, e.g. "thumb/"
}

// Thumbnail is the encoded result of a transform.
type Thumbnail struct {
	Data        []byte
	ContentType string
	Ext         string
}

// Processor turns original images into fixed-size thumbnails.
// The same input and options always produce the same bytes.
type Processor struct {
	opts Options
}

// New creates a new Processor, filling unset options with defaults.
func New(opts Options) *Processor {
	if opts.Width <= 0 {
		opts.Width = 512
	}
	if opts.Height <= 0 {
		opts.Height = 512
	}
	if opts.Mode == "" {
		opts.Mode = ModeFill
	}
	if opts.Engine == "" {
		opts.Engine = EngineImaging
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = 85
	}
	if opts.ThumbPrefix == "" {
		opts.ThumbPrefix = "thumb/"
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = DefaultMaxPixels
	}

	return &Processor{opts: opts}
}

// Thumbnail decodes src, resizes it and re-encodes it.
// PNG sources stay PNG, everything else becomes JPEG.
func (p *Processor) Thumbnail(src []byte) (Thumbnail, error) {
	// Detect the format first: imaging.Decode does not report it.
	cfg, format, err := image.DecodeConfig(bytes.NewReader(src))
	if err != nil {
		return Thumbnail{}, fmt.Errorf("%w: %v", ErrMalformedImage, err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > p.opts.MaxPixels {
		return Thumbnail{}, fmt.Errorf("%w: %dx%d exceeds the %d pixel limit",
			ErrMalformedImage, cfg.Width, cfg.Height, p.opts.MaxPixels)
	}

	img, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		return Thumbnail{}, fmt.Errorf("%w: failed to decode image: %v", ErrMalformedImage, err)
	}

	thumb := p.resize(img)

	if p.opts.Watermark != "" {
		thumb = watermark(thumb, p.opts.Watermark)
	}

	buf := bytes.NewBuffer(nil)
	if format == "png" {
		if err := imaging.Encode(buf, thumb, imaging.PNG); err != nil {
			return Thumbnail{}, fmt.Errorf("failed to encode thumbnail: %w", err)
		}

		return Thumbnail{Data: buf.Bytes(), ContentType: "image/png", Ext: ".png"}, nil
	}

	if err := imaging.Encode(buf, thumb, imaging.JPEG, imaging.JPEGQuality(p.opts.JPEGQuality)); err != nil {
		return Thumbnail{}, fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	return Thumbnail{Data: buf.Bytes(), ContentType: "image/jpeg", Ext: ".jpg"}, nil
}

// ThumbKey derives the thumbnail key from the original key: the upload prefix is
// replaced by the thumbnail prefix, the rest of the path is kept and the
// extension is replaced by ext.
func (p *Processor) ThumbKey(originalKey, ext string) string {
	rel := strings.TrimPrefix(originalKey, p.opts.UploadPrefix)
	if p.opts.UploadPrefix == "" || rel == originalKey {
		rel = strings.TrimPrefix(originalKey, "/")
	}

	rel = strings.TrimSuffix(rel, path.Ext(rel))

	return p.opts.ThumbPrefix + rel + ext
}

func (p *Processor) resize(img image.Image) image.Image {
	w, h := p.opts.Width, p.opts.Height

	if p.opts.Engine == EngineNfnt {
		if p.opts.Mode == ModeFit {
			return resize.Thumbnail(uint(w), uint(h), img, resize.Lanczos3)
		}

		// Scale so that the box is covered, then crop the centre.
		b := img.Bounds()
		if b.Dx()*h > b.Dy()*w {
			img = resize.Resize(0, uint(h), img, resize.Lanczos3)
		} else {
			img = resize.Resize(uint(w), 0, img, resize.Lanczos3)
		}

		return imaging.CropCenter(img, w, h)
	}

	if p.opts.Mode == ModeFit {
		return imaging.Fit(img, w, h, imaging.Lanczos)
	}

	return imaging.Thumbnail(img, w, h, imaging.Lanczos)
}

// watermark draws text in the bottom-right corner.
func watermark(img image.Image, text string) image.Image {
	dc := gg.NewContextForImage(img)
	dc.SetFontFace(basicfont.Face7x13)
	dc.SetColor(color.White)

	margin := 4.0
	x := float64(dc.Width()) - margin
	y := float64(dc.Height()) - margin

	dc.DrawStringAnchored(text, x, y, 1, 0) // bottom-right corner

	return dc.Image()
}
