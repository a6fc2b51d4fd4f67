package video

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/gateway"
)

// startPayload is the body of the predictLongRunning call.
type startPayload struct {
	Instances  []instance `json:"instances"`
	Parameters parameters `json:"parameters"`
}

type instance struct {
	Prompt string       `json:"prompt,omitempty"`
	Image  *inlineImage `json:"image,omitempty"`
}

type inlineImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MimeType           string `json:"mimeType"`
}

type referenceImage struct {
	Image         inlineImage `json:"image"`
	ReferenceType string      `json:"referenceType"`
}

type parameters struct {
	AspectRatio      string           `json:"aspectRatio"`
	Resolution       string           `json:"resolution"`
	DurationSeconds  int              `json:"durationSeconds"`
	NegativePrompt   string           `json:"negativePrompt,omitempty"`
	PersonGeneration string           `json:"personGeneration"`
	LastFrame        *inlineImage     `json:"lastFrame,omitempty"`
	ReferenceImages  []referenceImage `json:"referenceImages,omitempty"`
}

func encodeImage(img *Image) *inlineImage {
	if img == nil {
		return nil
	}
	return &inlineImage{
		BytesBase64Encoded: base64.StdEncoding.EncodeToString(img.Data),
		MimeType:           img.MIMEType,
	}
}

// buildPayload expects a normalized request.
func buildPayload(r Request) startPayload {
	p := startPayload{
		Instances: []instance{{
			Prompt: r.Prompt,
			Image:  encodeImage(r.FirstFrame),
		}},
		Parameters: parameters{
			AspectRatio:      string(r.AspectRatio),
			Resolution:       string(r.Resolution),
			DurationSeconds:  r.DurationSeconds,
			NegativePrompt:   r.NegativePrompt,
			PersonGeneration: string(r.PersonGeneration),
			LastFrame:        encodeImage(r.LastFrame),
		},
	}
	for i := range r.ReferenceImages {
		p.Parameters.ReferenceImages = append(p.Parameters.ReferenceImages, referenceImage{
			Image:         *encodeImage(&r.ReferenceImages[i]),
			ReferenceType: "asset",
		})
	}
	return p
}

// completion is the "response" object of a finished operation. Exactly one
// of the two provider shapes is expected.
type completion struct {
	// Gemini API shape.
	GenerateVideoResponse *struct {
		GeneratedSamples        []sample `json:"generatedSamples"`
		RaiMediaFilteredCount   int      `json:"raiMediaFilteredCount"`
		RaiMediaFilteredReasons []string `json:"raiMediaFilteredReasons"`
	} `json:"generateVideoResponse"`

	// Vertex AI shape.
	Videos                  []videoRef `json:"videos"`
	RaiMediaFilteredCount   int        `json:"raiMediaFilteredCount"`
	RaiMediaFilteredReasons []string   `json:"raiMediaFilteredReasons"`
}

type sample struct {
	Video *videoRef `json:"video"`
}

type videoRef struct {
	URI                string `json:"uri"`
	GCSURI             string `json:"gcsUri"`
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MimeType           string `json:"mimeType"`
}

// result is what a completion resolved to: either a downloadable artifact
// or inline bytes.
type result struct {
	Ref        string
	ArtifactID string
	Inline     []byte
	MIMEType   string
}

const parseOp = "parse operation result"

func parseCompletion(raw json.RawMessage) (result, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return result{}, gateway.NewContractError(parseOp, "done operation has no response", nil)
	}

	var c completion
	if err := json.Unmarshal(raw, &c); err != nil {
		return result{}, gateway.NewContractError(parseOp, "decode response", err)
	}

	switch {
	case c.GenerateVideoResponse != nil:
		gr := c.GenerateVideoResponse
		if len(gr.GeneratedSamples) == 0 {
			if gr.RaiMediaFilteredCount > 0 || len(gr.RaiMediaFilteredReasons) > 0 {
				return result{}, filtered(gr.RaiMediaFilteredReasons)
			}
			return result{}, gateway.NewContractError(parseOp, "no generated samples", nil)
		}
		if gr.GeneratedSamples[0].Video == nil {
			return result{}, gateway.NewContractError(parseOp, "sample has no video", nil)
		}
		return resolveRef(*gr.GeneratedSamples[0].Video)

	case len(c.Videos) > 0:
		return resolveRef(c.Videos[0])

	case c.RaiMediaFilteredCount > 0 || len(c.RaiMediaFilteredReasons) > 0:
		return result{}, filtered(c.RaiMediaFilteredReasons)

	default:
		return result{}, gateway.NewContractError(parseOp, "unrecognized response shape", nil)
	}
}

func resolveRef(v videoRef) (result, error) {
	uri := v.URI
	if uri == "" {
		uri = v.GCSURI
	}

	if uri != "" {
		id, err := ArtifactIDFromURI(uri)
		if err != nil {
			return result{}, err
		}
		return result{Ref: uri, ArtifactID: id, MIMEType: v.MimeType}, nil
	}

	if v.BytesBase64Encoded != "" {
		data, err := base64.StdEncoding.DecodeString(v.BytesBase64Encoded)
		if err != nil {
			return result{}, gateway.NewContractError(parseOp, "decode inline video", err)
		}
		return result{Inline: data, MIMEType: v.MimeType}, nil
	}

	return result{}, gateway.NewContractError(parseOp, "video has no uri", nil)
}

func filtered(reasons []string) error {
	msg := "output blocked by content filter"
	if len(reasons) > 0 {
		msg += ": " + strings.Join(reasons, "; ")
	}
	return &OperationError{Message: msg}
}

// ArtifactIDFromURI extracts the file id from a gateway URI such as
// ".../v1beta/files/abc123:download?alt=media".
func ArtifactIDFromURI(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", gateway.NewContractError(parseOp, "parse video uri", err)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i < len(segments)-1; i++ {
		if segments[i] != "files" {
			continue
		}
		id := segments[i+1]
		if j := strings.IndexByte(id, ':'); j >= 0 {
			id = id[:j]
		}
		if id != "" {
			return id, nil
		}
	}

	return "", gateway.NewContractError(parseOp, "no file id in video uri "+uri, nil)
}
