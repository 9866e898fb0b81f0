package google

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/spetersoncode/tally"
	"github.com/spetersoncode/tally/internal/provider/media"
	"google.golang.org/genai"
)

// convertMessages maps the conversation onto genai contents. System messages
// are joined into a single system instruction.
func convertMessages(ctx context.Context, hc *http.Client, messages []tally.Message) ([]*genai.Content, *genai.Content, error) {
	var contents []*genai.Content
	var system []string

	for _, msg := range messages {
		if msg.Role == tally.RoleSystem {
			if msg.Content != "" {
				system = append(system, msg.Content)
			}
			continue
		}

		role := "user"
		if msg.Role == tally.RoleAssistant {
			role = "model"
		}

		var parts []*genai.Part
		if msg.HasParts() {
			converted, err := convertParts(ctx, hc, msg.Parts)
			if err != nil {
				return nil, nil, err
			}
			parts = converted
		} else if msg.Content != "" {
			parts = append(parts, &genai.Part{Text: msg.Content})
		}

		if len(parts) > 0 {
			contents = append(contents, &genai.Content{Role: role, Parts: parts})
		}
	}

	var instruction *genai.Content
	if len(system) > 0 {
		instruction = &genai.Content{Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}}}
	}
	return contents, instruction, nil
}

func convertParts(ctx context.Context, hc *http.Client, parts []tally.ContentPart) ([]*genai.Part, error) {
	var result []*genai.Part
	for _, part := range parts {
		switch part.Type {
		case tally.ContentPartTypeText:
			if part.Text != "" {
				result = append(result, &genai.Part{Text: part.Text})
			}
		case tally.ContentPartTypeImage:
			p, err := imagePart(ctx, hc, part)
			if err != nil {
				return nil, err
			}
			if p != nil {
				result = append(result, p)
			}
		}
	}
	return result, nil
}

func imagePart(ctx context.Context, hc *http.Client, part tally.ContentPart) (*genai.Part, error) {
	switch {
	case part.Base64 != "":
		data, err := base64.StdEncoding.DecodeString(part.Base64)
		if err != nil {
			return nil, fmt.Errorf("google: decode image: %w", err)
		}
		mimeType := part.MimeType
		if mimeType == "" {
			mimeType = "image/jpeg"
		}
		return &genai.Part{InlineData: &genai.Blob{Data: data, MIMEType: mimeType}}, nil
	case strings.HasPrefix(part.ImageURL, "gs://"):
		mimeType := part.MimeType
		if mimeType == "" {
			mimeType = media.MimeFromURL(part.ImageURL)
		}
		return &genai.Part{FileData: &genai.FileData{FileURI: part.ImageURL, MIMEType: mimeType}}, nil
	case part.ImageURL != "":
		data, mimeType, err := media.Fetch(ctx, hc, part.ImageURL)
		if err != nil {
			return nil, err
		}
		if part.MimeType != "" {
			mimeType = part.MimeType
		}
		return &genai.Part{InlineData: &genai.Blob{Data: data, MIMEType: mimeType}}, nil
	}
	return nil, nil
}
