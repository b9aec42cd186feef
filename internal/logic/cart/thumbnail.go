package cart

import (
	"bytes"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"github.com/cjeanneret/pickcam/internal/logic/capture"
)

// Thumbnail renders a square JPEG preview of a, size pixels wide, cropped
// around the center the way the stack view shows it.
func Thumbnail(a *capture.Asset, size, quality int) ([]byte, error) {
	if a == nil || len(a.Data) == 0 {
		return nil, errors.New("thumbnail: empty asset")
	}
	if size <= 0 {
		return nil, errors.Errorf("thumbnail: invalid size %d", size)
	}
	img, err := imaging.Decode(bytes.NewReader(a.Data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "thumbnail: decode %s", a.ID)
	}
	thumb := imaging.Fill(img, size, size, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, errors.Wrapf(err, "thumbnail: encode %s", a.ID)
	}
	return buf.Bytes(), nil
}
