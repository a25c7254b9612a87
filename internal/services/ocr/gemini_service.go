package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/common"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/interfaces"
)

const captchaPrompt = "Read the distorted text in this CAPTCHA image. " +
	"Respond with only the characters you see, no spaces, no explanation."

// GeminiService recognises CAPTCHA text with a Gemini vision model. Calls are
// paced by a rate limiter so repeated login retries stay inside the API quota.
type GeminiService struct {
	config  *common.OCRConfig
	logger  arbor.ILogger
	client  *genai.Client
	limiter *rate.Limiter
}

// NewGeminiService creates the OCR service. The API key comes from config or
// the GEMINI_API_KEY environment override applied during config load.
func NewGeminiService(config *common.OCRConfig, logger arbor.ILogger) (*GeminiService, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required for CAPTCHA OCR (set GEMINI_API_KEY or ocr.api_key in config)")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	logger.Info().Str("model", config.Model).Msg("CAPTCHA OCR service initialized")

	return &GeminiService{
		config:  config,
		logger:  logger,
		client:  client,
		limiter: rate.NewLimiter(rate.Every(config.RateLimitDuration()), 1),
	}, nil
}

// Recognize extracts the text from a CAPTCHA image
func (s *GeminiService) Recognize(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("empty CAPTCHA image")
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}

	contents := []*genai.Content{
		{
			Role: genai.RoleUser,
			Parts: []*genai.Part{
				genai.NewPartFromBytes(image, "image/png"),
				genai.NewPartFromText(captchaPrompt),
			},
		},
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(0.0)),
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.config.Model, contents, config)
	if err != nil {
		return "", fmt.Errorf("CAPTCHA recognition failed: %w", err)
	}

	var text strings.Builder
	if resp != nil && len(resp.Candidates) > 0 {
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					text.WriteString(part.Text)
				}
			}
			if text.Len() > 0 {
				break
			}
		}
	}

	result := strings.TrimSpace(text.String())
	if result == "" {
		return "", fmt.Errorf("vision model returned no text for CAPTCHA")
	}

	s.logger.Debug().Int("length", len(result)).Msg("CAPTCHA recognized")
	return result, nil
}

var _ interfaces.OCRService = (*GeminiService)(nil)
