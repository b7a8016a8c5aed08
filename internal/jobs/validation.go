package jobs

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/voicenote/internal/models"
)

// SourceRequest is a submit request as received from the presentation layer
type SourceRequest struct {
	Owner      string
	Descriptor string            // Remote URL or path of the stored upload
	Kind       models.SourceKind // Inferred from Descriptor when empty
	Name       string            // Original upload file name, used as the placeholder title
}

type remoteSource struct {
	URL string `validate:"required,url"`
}

type localSource struct {
	Path string `validate:"required"`
	Name string `validate:"required"`
}

// SourceValidator checks submit requests before a record is created
type SourceValidator struct {
	validate   *validator.Validate
	extensions map[string]struct{}
}

// NewSourceValidator creates a validator accepting the given file extensions
// (with or without the leading dot, case-insensitive)
func NewSourceValidator(allowedExtensions []string) *SourceValidator {
	extensions := make(map[string]struct{}, len(allowedExtensions))
	for _, ext := range allowedExtensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			extensions[ext] = struct{}{}
		}
	}
	return &SourceValidator{
		validate:   validator.New(),
		extensions: extensions,
	}
}

// Validate normalizes req in place and returns ErrInvalidSource or
// ErrUnsupportedFileType when it cannot be submitted
func (v *SourceValidator) Validate(req *SourceRequest) error {
	req.Descriptor = strings.TrimSpace(req.Descriptor)
	if req.Descriptor == "" {
		return ErrInvalidSource
	}

	if req.Kind == "" {
		req.Kind = models.SourceLocal
		if isRemoteLocator(req.Descriptor) {
			req.Kind = models.SourceRemote
		}
	}

	switch req.Kind {
	case models.SourceRemote:
		if err := v.validate.Struct(remoteSource{URL: req.Descriptor}); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidSource, req.Descriptor)
		}
		if !isRemoteLocator(req.Descriptor) {
			return fmt.Errorf("%w: only http and https locators are accepted", ErrInvalidSource)
		}
		return nil

	case models.SourceLocal:
		if req.Name == "" {
			req.Name = filepath.Base(req.Descriptor)
		}
		if err := v.validate.Struct(localSource{Path: req.Descriptor, Name: req.Name}); err != nil {
			return ErrInvalidSource
		}
		if !v.AllowedFile(req.Name) {
			return fmt.Errorf("%w: %s", ErrUnsupportedFileType, filepath.Ext(req.Name))
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown source kind %q", ErrInvalidSource, req.Kind)
	}
}

// AllowedFile reports whether name carries an accepted extension
func (v *SourceValidator) AllowedFile(name string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "" {
		return false
	}
	_, ok := v.extensions[ext]
	return ok
}

func isRemoteLocator(descriptor string) bool {
	u, err := url.Parse(descriptor)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
