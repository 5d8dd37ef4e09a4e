package card

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
)

// Bundled font files, looked up under the assets directory.
const (
	BoldFontFile    = "Inter-Bold.ttf"
	RegularFontFile = "Inter-Regular.ttf"
)

type faces struct {
	name  font.Face
	level font.Face
	body  font.Face
	small font.Face
}

var (
	facesMu   sync.Mutex
	loaded    *faces
	assetsDir = "assets"
)

// SetAssetsDir changes where the bundled fonts are looked up. Faces already
// loaded are dropped.
func SetAssetsDir(dir string) {
	facesMu.Lock()
	defer facesMu.Unlock()
	assetsDir = dir
	loaded = nil
}

func currentFaces(logger *zap.Logger) *faces {
	facesMu.Lock()
	defer facesMu.Unlock()
	if loaded == nil {
		loaded = loadFaces(assetsDir, logger)
	}
	return loaded
}

func loadFaces(dir string, logger *zap.Logger) *faces {
	bold := filepath.Join(dir, BoldFontFile)
	regular := filepath.Join(dir, RegularFontFile)
	if !exists(bold) || !exists(regular) {
		sys := systemFont()
		if sys == "" {
			logger.Warn("no font found, using basic font")
			return basicFaces()
		}
		bold, regular = sys, sys
	}

	boldFont, err := parseFont(bold)
	if err != nil {
		logger.Warn("error loading font, using basic font", zap.String("path", bold), zap.Error(err))
		return basicFaces()
	}
	regularFont, err := parseFont(regular)
	if err != nil {
		logger.Warn("error loading font, using basic font", zap.String("path", regular), zap.Error(err))
		return basicFaces()
	}

	f := &faces{}
	for _, spec := range []struct {
		dst  *font.Face
		src  *opentype.Font
		size float64
	}{
		{&f.name, boldFont, 40},
		{&f.level, boldFont, 48},
		{&f.body, regularFont, 24},
		{&f.small, regularFont, 20},
	} {
		face, err := opentype.NewFace(spec.src, &opentype.FaceOptions{Size: spec.size, DPI: 72, Hinting: font.HintingFull})
		if err != nil {
			logger.Warn("error creating font face, using basic font", zap.Error(err))
			return basicFaces()
		}
		*spec.dst = face
	}
	return f
}

func parseFont(path string) (*opentype.Font, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return opentype.Parse(data)
}

func basicFaces() *faces {
	return &faces{
		name:  basicfont.Face7x13,
		level: basicfont.Face7x13,
		body:  basicfont.Face7x13,
		small: basicfont.Face7x13,
	}
}

func systemFont() string {
	var paths []string
	switch runtime.GOOS {
	case "windows":
		paths = []string{
			"C:/Windows/Fonts/arialbd.ttf",
			"C:/Windows/Fonts/Arial.ttf",
			"C:/Windows/Fonts/segoeui.ttf",
		}
	case "darwin":
		paths = []string{
			"/Library/Fonts/Arial.ttf",
			"/System/Library/Fonts/Supplemental/Arial.ttf",
		}
	default:
		paths = []string{
			"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
			"/usr/share/fonts/TTF/DejaVuSans.ttf",
			"/usr/share/fonts/truetype/freefont/FreeSans.ttf",
		}
	}
	for _, p := range paths {
		if exists(p) {
			return p
		}
	}
	return ""
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
