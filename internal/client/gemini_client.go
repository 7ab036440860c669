package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/imgtranslate/api/internal/config"
)

// Transformer rewrites the text of one image and returns the new image.
type Transformer interface {
	Transform(ctx context.Context, image []byte, mimeType string) ([]byte, error)
	IsConfigured() bool
}

// GeminiClient handles communication with the Gemini image model
type GeminiClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	prompt     string
	timeout    time.Duration
	maxRetries uint64
	retryBase  time.Duration
}

const translationPrompt = `You are a professional image text translator. Your task is to translate all text in this image to %[1]s.

INSTRUCTIONS:
1. Identify ALL text in the image (speech bubbles, captions, sound effects, signs, etc.)
2. Translate the text to natural %[1]s
3. Generate a NEW image that is identical to the original, but with %[1]s text replacing the original text
4. Maintain the exact same:
   - Image composition and layout
   - Font style, size, and color (as close as possible)
   - Text positions within speech bubbles/panels
   - All visual elements except the text language

IMPORTANT: This is a TEXT TRANSLATION task. You are replacing text, not creating new imagery.
The visual content must remain EXACTLY as provided - only the text language changes.

Please output the translated image now.`

// generateRequest represents the request body for generateContent
type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
	SafetySettings   []safetySetting  `json:"safetySettings"`
}

type content struct {
	Role  string        `json:"role,omitempty"`
	Parts []requestPart `json:"parts"`
}

type requestPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineBlob `json:"inlineData,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

// inlineBlob is the canonical inline payload after normalisation.
type inlineBlob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// generateResponse represents the response from generateContent
type generateResponse struct {
	Candidates []struct {
		Content *struct {
			Parts []responsePart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
		Status  string `json:"status"`
	} `json:"error"`
}

// responsePart accepts both field casings the API has been seen to use.
type responsePart struct {
	Text       string `json:"text,omitempty"`
	InlineData *struct {
		MimeType string `json:"mimeType"`
		Data     string `json:"data"`
	} `json:"inlineData,omitempty"`
	InlineDataSnake *struct {
		MimeType string `json:"mime_type"`
		Data     string `json:"data"`
	} `json:"inline_data,omitempty"`
}

// blob returns the part's inline payload in canonical form, or nil.
func (p responsePart) blob() *inlineBlob {
	switch {
	case p.InlineData != nil && p.InlineData.Data != "":
		return &inlineBlob{MimeType: p.InlineData.MimeType, Data: p.InlineData.Data}
	case p.InlineDataSnake != nil && p.InlineDataSnake.Data != "":
		return &inlineBlob{MimeType: p.InlineDataSnake.MimeType, Data: p.InlineDataSnake.Data}
	}
	return nil
}

// NewGeminiClient creates a new Gemini API client
func NewGeminiClient(cfg *config.GeminiConfig) *GeminiClient {
	language := cfg.TargetLanguage
	if language == "" {
		language = "Korean"
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	retryBase := time.Duration(cfg.RetryBaseMS) * time.Millisecond
	if retryBase <= 0 {
		retryBase = time.Second
	}
	var maxRetries uint64
	if cfg.MaxRetries > 0 {
		maxRetries = uint64(cfg.MaxRetries)
	}

	return &GeminiClient{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		prompt:     fmt.Sprintf(translationPrompt, language),
		timeout:    timeout,
		maxRetries: maxRetries,
		retryBase:  retryBase,
	}
}

// IsConfigured returns true if the client has valid configuration
func (c *GeminiClient) IsConfigured() bool {
	return c.apiKey != ""
}

// MaxItemDuration is the longest a single Transform call can take:
// every attempt timing out plus the jittered backoff between them.
func (c *GeminiClient) MaxItemDuration() time.Duration {
	total := c.timeout * time.Duration(c.maxRetries+1)
	wait := c.retryBase
	for i := uint64(0); i < c.maxRetries; i++ {
		total += wait + wait/10
		wait *= 2
	}
	return total
}

// Transform sends one image to the model and returns the translated image.
// Transport failures are retried with exponential backoff; every other
// failure is returned immediately as a *ProviderError.
func (c *GeminiClient) Transform(ctx context.Context, image []byte, mimeType string) ([]byte, error) {
	if !c.IsConfigured() {
		return nil, configurationError("GEMINI_API_KEY is not configured")
	}
	if mimeType == "" {
		mimeType = "image/png"
	}

	body, err := json.Marshal(c.buildRequest(image, mimeType))
	if err != nil {
		return nil, malformedError("failed to marshal request", err)
	}

	backoff := retry.WithMaxRetries(c.maxRetries, retry.WithJitterPercent(10, retry.NewExponential(c.retryBase)))

	var (
		result  []byte
		attempt int
	)
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		out, err := c.generate(ctx, body)
		if err != nil {
			if IsKind(err, KindTransport) && ctx.Err() == nil {
				slog.Warn("gemini request failed, retrying", "attempt", attempt, "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		result = out
		return nil
	})
	if err != nil {
		if _, ok := AsProviderError(err); !ok {
			// retry.Do returns ctx.Err() when cancelled between attempts
			return nil, transportError(err.Error(), 0, err)
		}
		return nil, err
	}

	return result, nil
}

func (c *GeminiClient) buildRequest(image []byte, mimeType string) *generateRequest {
	return &generateRequest{
		Contents: []content{{
			Role: "user",
			Parts: []requestPart{
				{Text: c.prompt},
				{InlineData: &inlineBlob{
					MimeType: mimeType,
					Data:     base64.StdEncoding.EncodeToString(image),
				}},
			},
		}},
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
		},
		SafetySettings: []safetySetting{
			{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_NONE"},
			{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_ONLY_HIGH"},
			{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_ONLY_HIGH"},
			{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_ONLY_HIGH"},
		},
	}
}

// generate performs a single attempt bounded by the per-call timeout.
func (c *GeminiClient) generate(ctx context.Context, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, transportError("failed to create request", 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(fmt.Sprintf("failed to send request: %v", err), 0, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(fmt.Sprintf("failed to read response: %v", err), resp.StatusCode, err)
	}

	slog.Debug("gemini response", "status", resp.StatusCode, "bytes", len(respBody))

	var parsed generateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		if retryableStatus(resp.StatusCode) {
			return nil, transportError(fmt.Sprintf("gemini API error (status %d)", resp.StatusCode), resp.StatusCode, err)
		}
		return nil, malformedError("failed to unmarshal response", err)
	}

	if parsed.Error != nil {
		code := parsed.Error.Code
		if code == 0 {
			code = resp.StatusCode
		}
		if retryableStatus(resp.StatusCode) {
			return nil, transportError(parsed.Error.Message, code, nil)
		}
		return nil, rejectedError(parsed.Error.Message, code)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if retryableStatus(resp.StatusCode) {
			return nil, transportError(fmt.Sprintf("gemini API error (status %d)", resp.StatusCode), resp.StatusCode, nil)
		}
		return nil, rejectedError(fmt.Sprintf("gemini API error (status %d)", resp.StatusCode), resp.StatusCode)
	}

	return extractImage(&parsed)
}

// extractImage finds the first inline image among the first candidate's parts.
func extractImage(resp *generateResponse) ([]byte, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, malformedError("No response from Gemini API", nil)
	}
	parts := resp.Candidates[0].Content.Parts

	for _, part := range parts {
		blob := part.blob()
		if blob == nil {
			continue
		}
		image, err := base64.StdEncoding.DecodeString(blob.Data)
		if err != nil {
			return nil, malformedError("translated image is not valid base64", err)
		}
		return image, nil
	}

	// No image usually means the model found nothing to translate
	for _, part := range parts {
		if text := strings.TrimSpace(part.Text); text != "" {
			return nil, rejectedError(text, 0)
		}
	}
	return nil, rejectedError("No translated image returned", 0)
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}
