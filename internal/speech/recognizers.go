package speech

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/hammamikhairi/kinectdrone/internal/domain"
)

// DefaultCulture is the language the command grammar is written in.
const DefaultCulture = "en-US"

// UnavailableMessage is shown to the operator when no usable engine is
// installed.
const UnavailableMessage = "There was a problem initializing Speech Recognition. Ensure that you have the speech model installed."

// StartupMessage is the operator line for a speech startup error. Only a
// missing or unloadable model gets UnavailableMessage.
func StartupMessage(err error) string {
	if errors.Is(err, domain.ErrRecognizerUnavailable) {
		return UnavailableMessage
	}
	return err.Error()
}

// anyCulture marks a multilingual model.
const anyCulture = "*"

// RecognizerInfo describes an installed recognition engine.
type RecognizerInfo struct {
	ID        string
	Name      string
	Culture   string
	ModelPath string
}

// Supports reports whether the engine handles culture.
func (i RecognizerInfo) Supports(culture string) bool {
	return i.Culture == anyCulture || strings.EqualFold(i.Culture, culture)
}

// InstalledRecognizers lists the whisper models at path, which may be a
// single model file or a directory of ggml-*.bin files. English-only
// models come first.
func InstalledRecognizers(fs afero.Fs, path string) ([]RecognizerInfo, error) {
	fi, err := fs.Stat(path)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return []RecognizerInfo{describeModel(path)}, nil
	}

	matches, err := afero.Glob(fs, filepath.Join(path, "ggml-*.bin"))
	if err != nil {
		return nil, err
	}
	infos := make([]RecognizerInfo, 0, len(matches))
	for _, m := range matches {
		infos = append(infos, describeModel(m))
	}
	sort.SliceStable(infos, func(a, b int) bool {
		ea, eb := infos[a].Culture != anyCulture, infos[b].Culture != anyCulture
		if ea != eb {
			return ea
		}
		return infos[a].ID < infos[b].ID
	})
	return infos, nil
}

// describeModel derives engine info from a whisper.cpp model file name:
// "ggml-base.en.bin" is English-only, "ggml-base.bin" multilingual.
func describeModel(path string) RecognizerInfo {
	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	name := strings.TrimPrefix(id, "ggml-")
	culture := anyCulture
	if strings.HasSuffix(name, ".en") {
		culture = DefaultCulture
	}
	return RecognizerInfo{
		ID:        id,
		Name:      "Whisper " + name,
		Culture:   culture,
		ModelPath: path,
	}
}

// FindRecognizer returns the first installed engine for culture.
func FindRecognizer(fs afero.Fs, path, culture string) (RecognizerInfo, error) {
	if path == "" {
		return RecognizerInfo{}, fmt.Errorf("%w: no speech model configured", domain.ErrRecognizerUnavailable)
	}
	infos, err := InstalledRecognizers(fs, path)
	if err != nil {
		return RecognizerInfo{}, fmt.Errorf("%w: %v", domain.ErrRecognizerUnavailable, err)
	}
	for _, info := range infos {
		if info.Supports(culture) {
			return info, nil
		}
	}
	return RecognizerInfo{}, fmt.Errorf("%w: no %s model in %s", domain.ErrRecognizerUnavailable, culture, path)
}
