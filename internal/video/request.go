// Package video drives one video generation request through the gateway's
// long-running-operation API: it normalizes the request, starts the
// operation, polls it under a fixed attempt budget and downloads the result.
package video

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
)

// AspectRatio is the frame shape of the generated video.
type AspectRatio string

// Supported aspect ratios.
const (
	AspectLandscape AspectRatio = "16:9"
	AspectPortrait  AspectRatio = "9:16"
	AspectSquare    AspectRatio = "1:1"
)

// Resolution is the output resolution of the generated video.
type Resolution string

// Supported resolutions. 1080p is only accepted at MaxDurationSeconds.
const (
	Resolution720p  Resolution = "720p"
	Resolution1080p Resolution = "1080p"
)

// PersonGeneration controls whether people may appear in the output.
type PersonGeneration string

// Supported person generation policies.
const (
	PersonAllowAll   PersonGeneration = "allow_all"
	PersonAllowAdult PersonGeneration = "allow_adult"
	PersonDenyAll    PersonGeneration = "deny_all"
)

// Provider duration bounds and the fixed reference-image combination.
const (
	MinDurationSeconds = 4
	MaxDurationSeconds = 8
	MaxReferenceImages = 3

	referenceDurationSeconds = 8
	referenceAspectRatio     = AspectLandscape
)

// Image is a binary image input.
type Image struct {
	Data []byte
	// MIMEType is detected from Data when empty.
	MIMEType string
}

// Request describes one video generation attempt.
type Request struct {
	Prompt           string           `validate:"max=8000"`
	NegativePrompt   string           `validate:"max=8000"`
	AspectRatio      AspectRatio      `validate:"omitempty,oneof=16:9 9:16 1:1"`
	DurationSeconds  int              `validate:"gte=0"`
	Resolution       Resolution       `validate:"omitempty,oneof=720p 1080p"`
	PersonGeneration PersonGeneration `validate:"omitempty,oneof=allow_all allow_adult deny_all"`
	FirstFrame       *Image
	LastFrame        *Image
	ReferenceImages  []Image `validate:"max=3"`
}

// HasImages reports whether any image input is present.
func (r Request) HasImages() bool {
	return r.FirstFrame != nil || r.LastFrame != nil || len(r.ReferenceImages) > 0
}

// ErrNoInput is wrapped by the ValidationError returned when a request has
// neither a prompt nor an image.
var ErrNoInput = errors.New("video: a prompt or at least one image is required")

// ValidationError is returned when a request violates an invariant that can
// be checked without a network call.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "video: invalid request: " + e.Reason
	}
	return fmt.Sprintf("video: invalid request: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Normalize validates r and returns the request that will actually be sent.
// It is deterministic and makes no network calls.
//
// Rules applied, in order:
//   - a prompt or an image must be present; enum values must be known.
//   - empty fields take defaults (16:9, 720p, 8s).
//   - duration is clamped to [MinDurationSeconds, MaxDurationSeconds].
//   - reference images force 8s at 16:9.
//   - 1080p below the maximum duration falls back to 720p.
//   - image-conditioned requests never use allow_all.
func Normalize(r Request) (Request, error) {
	r.Prompt = strings.TrimSpace(r.Prompt)
	r.NegativePrompt = strings.TrimSpace(r.NegativePrompt)

	if r.Prompt == "" && !r.HasImages() {
		return Request{}, &ValidationError{Reason: ErrNoInput.Error(), Err: ErrNoInput}
	}

	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			rule := fe.Tag()
			if fe.Param() != "" {
				rule += "=" + fe.Param()
			}
			return Request{}, &ValidationError{
				Field:  fe.Field(),
				Reason: "must satisfy " + rule,
				Err:    err,
			}
		}
		return Request{}, &ValidationError{Reason: err.Error(), Err: err}
	}

	if err := checkImage("FirstFrame", r.FirstFrame); err != nil {
		return Request{}, err
	}
	if err := checkImage("LastFrame", r.LastFrame); err != nil {
		return Request{}, err
	}

	refs := make([]Image, len(r.ReferenceImages))
	for i := range r.ReferenceImages {
		img := r.ReferenceImages[i]
		if err := checkImage(fmt.Sprintf("ReferenceImages[%d]", i), &img); err != nil {
			return Request{}, err
		}
		refs[i] = withMIME(img)
	}
	if len(refs) == 0 {
		refs = nil
	}
	r.ReferenceImages = refs

	if r.FirstFrame != nil {
		img := withMIME(*r.FirstFrame)
		r.FirstFrame = &img
	}
	if r.LastFrame != nil {
		img := withMIME(*r.LastFrame)
		r.LastFrame = &img
	}

	if r.AspectRatio == "" {
		r.AspectRatio = AspectLandscape
	}
	if r.Resolution == "" {
		r.Resolution = Resolution720p
	}

	switch {
	case r.DurationSeconds == 0:
		r.DurationSeconds = MaxDurationSeconds
	case r.DurationSeconds < MinDurationSeconds:
		r.DurationSeconds = MinDurationSeconds
	case r.DurationSeconds > MaxDurationSeconds:
		r.DurationSeconds = MaxDurationSeconds
	}

	if len(r.ReferenceImages) > 0 {
		r.DurationSeconds = referenceDurationSeconds
		r.AspectRatio = referenceAspectRatio
	}

	if r.Resolution == Resolution1080p && r.DurationSeconds != MaxDurationSeconds {
		r.Resolution = Resolution720p
	}

	if r.HasImages() {
		if r.PersonGeneration == "" || r.PersonGeneration == PersonAllowAll {
			r.PersonGeneration = PersonAllowAdult
		}
	} else if r.PersonGeneration == "" {
		r.PersonGeneration = PersonAllowAll
	}

	return r, nil
}

func checkImage(field string, img *Image) error {
	if img == nil {
		return nil
	}
	if len(img.Data) == 0 {
		return &ValidationError{Field: field, Reason: "image data is empty"}
	}
	return nil
}

// withMIME returns a copy of img with MIMEType filled in from its content.
func withMIME(img Image) Image {
	if img.MIMEType == "" {
		img.MIMEType = mimetype.Detect(img.Data).String()
		// Detect may append parameters such as "; charset=utf-8".
		if i := strings.IndexByte(img.MIMEType, ';'); i >= 0 {
			img.MIMEType = strings.TrimSpace(img.MIMEType[:i])
		}
	}
	return img
}
