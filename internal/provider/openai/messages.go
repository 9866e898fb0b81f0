package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/spetersoncode/tally"
	"github.com/spetersoncode/tally/internal/provider/media"
)

func convertMessages(ctx context.Context, hc *http.Client, messages []tally.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	var result []openai.ChatCompletionMessageParamUnion
	for _, msg := range messages {
		switch msg.Role {
		case tally.RoleSystem:
			if msg.Content != "" {
				result = append(result, openai.SystemMessage(msg.Content))
			}
		case tally.RoleAssistant:
			if msg.Content != "" {
				result = append(result, openai.AssistantMessage(msg.Content))
			}
		default:
			if !msg.HasParts() {
				if msg.Content != "" {
					result = append(result, openai.UserMessage(msg.Content))
				}
				continue
			}
			parts, err := convertParts(ctx, hc, msg.Parts)
			if err != nil {
				return nil, err
			}
			if len(parts) > 0 {
				result = append(result, openai.ChatCompletionMessageParamUnion{
					OfUser: &openai.ChatCompletionUserMessageParam{
						Content: openai.ChatCompletionUserMessageParamContentUnion{
							OfArrayOfContentParts: parts,
						},
					},
				})
			}
		}
	}
	return result, nil
}

// convertParts inlines remote images as data URIs; OpenAI cannot fetch every
// chat platform's media URL.
func convertParts(ctx context.Context, hc *http.Client, parts []tally.ContentPart) ([]openai.ChatCompletionContentPartUnionParam, error) {
	var result []openai.ChatCompletionContentPartUnionParam
	for _, part := range parts {
		switch part.Type {
		case tally.ContentPartTypeText:
			if part.Text != "" {
				result = append(result, openai.TextContentPart(part.Text))
			}
		case tally.ContentPartTypeImage:
			url, err := imageURL(ctx, hc, part)
			if err != nil {
				return nil, err
			}
			if url != "" {
				result = append(result, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: url}))
			}
		}
	}
	return result, nil
}

func imageURL(ctx context.Context, hc *http.Client, part tally.ContentPart) (string, error) {
	switch {
	case part.Base64 != "":
		mimeType := part.MimeType
		if mimeType == "" {
			mimeType = "image/jpeg"
		}
		return fmt.Sprintf("data:%s;base64,%s", mimeType, part.Base64), nil
	case media.IsHTTP(part.ImageURL):
		data, mimeType, err := media.Fetch(ctx, hc, part.ImageURL)
		if err != nil {
			return "", err
		}
		if part.MimeType != "" {
			mimeType = part.MimeType
		}
		return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data)), nil
	default:
		return part.ImageURL, nil
	}
}
