// Package validation checks that a station is ready to run an experiment
// document: stimulus media present, output directory writable, every
// roster condition covered.
package validation

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	apperrors "github.com/dialstudy/dialstudy/pkg/errors"
	"github.com/dialstudy/dialstudy/pkg/experiment"
	"github.com/dialstudy/dialstudy/pkg/sequencer"
)

// MaxPathLength is the maximum allowed path length.
const MaxPathLength = 4096

// Options locate the station's files.
type Options struct {
	// MediaRoot is joined to relative image and video paths.
	MediaRoot string
	// OutputDir receives the participant datasets.
	OutputDir string
	// RequireMedia turns missing media from warnings into errors.
	RequireMedia bool
}

// Result holds the outcome of a preflight check.
type Result struct {
	Valid    bool
	Errors   []error
	Warnings []string
}

func (r *Result) fail(err error) {
	r.Valid = false
	r.Errors = append(r.Errors, err)
}

func (r *Result) warn(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Err joins the errors of r, or returns nil when r is valid.
func (r *Result) Err() error {
	if r.Valid {
		return nil
	}
	msgs := make([]string, len(r.Errors))
	for i, err := range r.Errors {
		msgs[i] = err.Error()
	}
	return apperrors.New(apperrors.CodeInvalidConfig, "preflight failed").
		WithContext("problems", strings.Join(msgs, "; "))
}

// Check runs every preflight check against doc.
func Check(doc *experiment.Document, opts Options) *Result {
	r := &Result{Valid: true}

	if err := ValidateOutputDir(opts.OutputDir); err != nil {
		r.fail(err)
	}

	media := func(kind, path string) {
		if err := ValidateMediaFile(opts.MediaRoot, path); err != nil {
			if opts.RequireMedia {
				r.fail(err)
			} else {
				r.warn("%s %s: %v", kind, path, err)
			}
		}
	}

	for _, path := range doc.Consent {
		media("consent image", path)
	}

	conditions := make(map[string]bool)
	for _, p := range doc.Participants {
		conditions[p.Condition] = true
	}
	for _, c := range sortedKeys(conditions) {
		images := doc.Instructions[c]
		if len(images) == 0 {
			r.warn("no instruction images for condition %s, built-in text is shown", c)
		}
		for _, path := range images {
			media("instruction image", path)
		}
	}
	for c := range doc.Instructions {
		if !conditions[c] {
			r.warn("instructions for %s are never shown, no participant has that condition", c)
		}
	}

	for _, id := range doc.Videos.IDs {
		for bucket := 0; bucket < 2; bucket++ {
			path := sequencer.VideoPath(id, bucket)
			media("video", path)
			if _, ok := doc.Videos.DurationsMS[path]; !ok && len(doc.Videos.DurationsMS) > 0 {
				r.warn("video %s has no duration, the default is used", path)
			}
		}
	}

	return r
}

// CleanPath validates and cleans a file path.
func CleanPath(path string) (string, error) {
	if path == "" {
		return "", apperrors.New(apperrors.CodeInvalidInput, "empty file path")
	}
	if len(path) > MaxPathLength {
		return "", apperrors.New(apperrors.CodeInvalidInput, "path too long").
			WithContext("maxLength", MaxPathLength)
	}
	return filepath.Clean(path), nil
}

// ValidateMediaFile checks that path, relative to root unless absolute,
// names a readable regular file.
func ValidateMediaFile(root, path string) error {
	cleaned, err := CleanPath(path)
	if err != nil {
		return err
	}
	if !filepath.IsAbs(cleaned) && root != "" {
		cleaned = filepath.Join(root, cleaned)
	}

	info, err := os.Stat(cleaned)
	if os.IsNotExist(err) {
		return apperrors.New(apperrors.CodeFileNotFound, "media file not found").
			WithContext("path", cleaned)
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeFileNotFound, "cannot access media file")
	}
	if info.IsDir() {
		return apperrors.New(apperrors.CodeInvalidInput, "path is a directory, expected file").
			WithContext("path", cleaned)
	}
	return nil
}

// ValidateOutputDir checks that dir exists, or can be created, and is
// writable.
func ValidateOutputDir(dir string) error {
	cleaned, err := CleanPath(dir)
	if err != nil {
		return apperrors.MissingField("", "output.dir")
	}

	info, err := os.Stat(cleaned)
	switch {
	case os.IsNotExist(err):
		// The sink creates it on first persist; its parent must exist.
		parent := filepath.Dir(cleaned)
		if pinfo, perr := os.Stat(parent); perr != nil || !pinfo.IsDir() {
			return apperrors.New(apperrors.CodeFileNotFound, "output directory cannot be created").
				WithContext("directory", cleaned)
		}
		return nil
	case err != nil:
		return apperrors.Wrap(err, apperrors.CodeFileNotFound, "cannot access output directory")
	case !info.IsDir():
		return apperrors.New(apperrors.CodeInvalidConfig, "output path is not a directory").
			WithContext("directory", cleaned)
	}

	f, err := os.CreateTemp(cleaned, ".preflight-*")
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInvalidConfig, "output directory is not writable").
			WithContext("directory", cleaned)
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return nil
}

// TruncateString truncates a string to maxLen, adding "..." if truncated.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
