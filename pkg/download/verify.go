package download

import (
	"fmt"
	"image"
	"os"
	"strings"

	// Raster formats accepted by the verifier
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"

	"kitscraper/pkg/config"
	errs "kitscraper/pkg/errors"
)

// allowedMIMEPrefixes are the content types a verified download may carry
var allowedMIMEPrefixes = []string{
	"image/jpeg", "image/png", "image/gif", "image/webp",
}

// VerifyFile checks a downloaded file: its size must sit inside the
// configured bounds, its sniffed content type must be an allowed raster
// format, and the decoded dimensions must meet the pixel floor. The
// declared Content-Type is not trusted past the initial gate; the bytes
// decide.
func VerifyFile(path string, cfg config.DownloadConfig) error {
	info, err := os.Stat(path)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeValidation, "downloaded file missing", err)
	}
	if info.Size() < cfg.MinFileSize {
		return errs.New(errs.ErrorTypeValidation,
			fmt.Sprintf("file too small: %d bytes, minimum %d", info.Size(), cfg.MinFileSize))
	}
	if cfg.MaxFileSize > 0 && info.Size() > cfg.MaxFileSize {
		return errs.New(errs.ErrorTypeValidation,
			fmt.Sprintf("file too large: %d bytes, maximum %d", info.Size(), cfg.MaxFileSize))
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeValidation, "content sniff failed", err)
	}
	if !isAllowedMIME(mtype.String()) {
		return errs.New(errs.ErrorTypeValidation,
			fmt.Sprintf("not an accepted image format: %s", mtype.String()))
	}

	f, err := os.Open(path)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeValidation, "cannot reopen file for decode", err)
	}
	defer f.Close()

	imgCfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeValidation, "image decode failed", err)
	}
	if imgCfg.Width < cfg.MinDimension || imgCfg.Height < cfg.MinDimension {
		return errs.New(errs.ErrorTypeValidation,
			fmt.Sprintf("image too small: %dx%d %s, minimum %dpx", imgCfg.Width, imgCfg.Height, format, cfg.MinDimension))
	}
	return nil
}

func isAllowedMIME(mime string) bool {
	for _, allowed := range allowedMIMEPrefixes {
		if strings.HasPrefix(mime, allowed) {
			return true
		}
	}
	return false
}
