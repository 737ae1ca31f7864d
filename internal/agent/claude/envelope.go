package claude

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/HyphaGroup/portcullis/internal/agent"
	"github.com/HyphaGroup/portcullis/internal/logger"
	"github.com/HyphaGroup/portcullis/internal/validation"
)

// Attachment ceilings. Oversized or path-escaping attachments are
// dropped silently, never fatal to the request.
const (
	DefaultMaxAttachments      = 5
	DefaultMaxAttachmentBytes  = 4 * 1024 * 1024
	DefaultMaxTotalImageBytes  = 16 * 1024 * 1024
	defaultAttachmentMediaType = "image/png"
)

// buildEnvelope serializes the request into one compact JSON envelope
// terminated by a newline, ready to be written to the agent's stdin.
func (r *Runner) buildEnvelope(req *agent.ExecuteRequest) ([]byte, error) {
	content := []ContentBlock{
		{Type: "text", Text: req.Prompt},
	}

	maxCount := r.opts.MaxAttachments
	if maxCount <= 0 {
		maxCount = DefaultMaxAttachments
	}
	maxBytes := r.opts.MaxAttachmentBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxAttachmentBytes
	}
	maxTotal := r.opts.MaxTotalAttachmentBytes
	if maxTotal <= 0 {
		maxTotal = DefaultMaxTotalImageBytes
	}

	var total int64
	var attached int
	for _, att := range req.Attachments {
		if attached >= maxCount {
			logger.Info("Dropping attachment %s: image limit reached (%d)", att.Path, maxCount)
			continue
		}

		block, size, ok := r.loadAttachment(att, maxBytes)
		if !ok {
			continue
		}
		if total+size > maxTotal {
			logger.Info("Dropping attachment %s: aggregate image budget exceeded", att.Path)
			continue
		}

		total += size
		attached++
		content = append(content, block)
	}

	env := Envelope{
		Type: "user",
		Message: EnvelopeMessage{
			Role:    "user",
			Content: content,
		},
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request envelope: %w", err)
	}
	return append(data, '\n'), nil
}

// loadAttachment reads and base64-encodes one image, enforcing the path
// and per-file size constraints. Failures drop the attachment silently.
func (r *Runner) loadAttachment(att agent.Attachment, maxBytes int64) (ContentBlock, int64, bool) {
	if err := validation.ValidateAttachmentPath(att.Path, r.opts.BaseDir); err != nil {
		logger.Info("Dropping attachment: %v", err)
		return ContentBlock{}, 0, false
	}

	path := att.Path
	if !filepath.IsAbs(path) && r.opts.BaseDir != "" {
		path = filepath.Join(r.opts.BaseDir, path)
	}

	info, err := os.Stat(path)
	if err != nil {
		logger.Info("Dropping attachment %s: %v", att.Path, err)
		return ContentBlock{}, 0, false
	}
	if info.Size() > maxBytes {
		logger.Info("Dropping attachment %s: %d bytes exceeds per-file limit %d", att.Path, info.Size(), maxBytes)
		return ContentBlock{}, 0, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Info("Dropping attachment %s: %v", att.Path, err)
		return ContentBlock{}, 0, false
	}

	mediaType := att.MediaType
	if mediaType == "" {
		mediaType = mediaTypeForPath(path)
	}

	return ContentBlock{
		Type: "image",
		Source: &ImageSource{
			Type:      "base64",
			MediaType: mediaType,
			Data:      base64.StdEncoding.EncodeToString(data),
		},
	}, info.Size(), true
}

func mediaTypeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return defaultAttachmentMediaType
	}
}
