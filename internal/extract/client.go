package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"voucherpipe/internal/config"
)

// ErrQuotaExhausted signals the daily/minute request quota is spent. The
// batch stops extracting at this point; already written JSON stays on disk
// so the operator can resume later with --skip-extract.
var ErrQuotaExhausted = errors.New("genai quota exhausted")

const extractionPrompt = `Extract all content from this PDF document and convert it into structured JSON format.
Include all text, tables, and important information.
Organize the data logically with appropriate keys and nested structures.
Return ONLY valid JSON, no markdown formatting or additional text.`

type Client struct {
	cfg        config.Config
	httpClient *http.Client
	limiter    *RateLimiter
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.GenAITimeoutMs) * time.Millisecond},
		limiter:    NewRateLimiter(cfg.GenAIRateLimitRPM),
	}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// ExtractPDF sends one PDF through generateContent and returns the raw
// payload text with any markdown code fences stripped. The result is not
// guaranteed to be valid JSON; callers gate it before use.
func (c *Client) ExtractPDF(ctx context.Context, pdfBlob []byte) ([]byte, error) {
	if strings.TrimSpace(c.cfg.GenAIAPIKey) == "" {
		return nil, errors.New("missing GENAI_API_KEY")
	}

	reqBody := generateRequest{
		Contents: []content{{
			Parts: []part{
				{Text: extractionPrompt},
				{InlineData: &inlineData{
					MimeType: "application/pdf",
					Data:     base64.StdEncoding.EncodeToString(pdfBlob),
				}},
			},
		}},
	}
	blob, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	endpoint := strings.TrimRight(c.cfg.GenAIBaseURL, "/") + "/models/" + c.cfg.GenAIModel + ":generateContent"

	var lastErr error
	for attempt := 1; attempt <= 5; attempt++ {
		c.limiter.WaitTurn()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(blob))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", c.cfg.GenAIAPIKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			sleepBackoff(attempt)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			sleepBackoff(attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: status=429 body=%s", ErrQuotaExhausted, truncateBody(body))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < 5 {
				lastErr = fmt.Errorf("genai status %d", resp.StatusCode)
				sleepBackoff(attempt)
				continue
			}
			return nil, fmt.Errorf("genai api error: status=%d body=%s", resp.StatusCode, truncateBody(body))
		}

		var apiResp generateResponse
		if err := json.Unmarshal(body, &apiResp); err != nil {
			return nil, err
		}
		if apiResp.Error != nil {
			if apiResp.Error.Status == "RESOURCE_EXHAUSTED" {
				return nil, fmt.Errorf("%w: %s", ErrQuotaExhausted, apiResp.Error.Message)
			}
			return nil, fmt.Errorf("genai api unsuccessful: %s", apiResp.Error.Message)
		}

		text := responseText(apiResp)
		if strings.TrimSpace(text) == "" {
			return nil, errors.New("genai response carried no text")
		}
		return []byte(stripCodeFences(text)), nil
	}

	if lastErr == nil {
		lastErr = errors.New("genai request failed")
	}
	return nil, lastErr
}

func responseText(resp generateResponse) string {
	out := strings.Builder{}
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			out.WriteString(p.Text)
		}
		break
	}
	return out.String()
}

func stripCodeFences(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.ReplaceAll(t, "```json", "")
	t = strings.ReplaceAll(t, "```", "")
	return strings.TrimSpace(t)
}

func sleepBackoff(attempt int) {
	if attempt >= 5 {
		return
	}
	time.Sleep(time.Duration(500*(1<<(attempt-1))+rand.Intn(250)) * time.Millisecond)
}

func isRetryableStatus(status int) bool {
	switch status {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncateBody(body []byte) string {
	const max = 300
	s := strings.ReplaceAll(string(body), "\n", " ")
	if len(s) > max {
		return s[:max]
	}
	return s
}
