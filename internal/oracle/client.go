package oracle

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

	"github.com/Aaron-Tawil/super-order-automation/internal"
	"github.com/Aaron-Tawil/super-order-automation/internal/config"
)

// Client talks to the generative extraction API. Trial 1 uses the fast
// model; trial 2 escalates to the stronger one and asks it to verify its
// own arithmetic.
type Client struct {
	cfg        config.Config
	httpClient *http.Client
	limiter    *RateLimiter
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.OracleTimeoutMs) * time.Millisecond},
		limiter:    NewRateLimiter(cfg.OracleRateRPS),
	}
}

func (c *Client) modelForTrial(trial int) string {
	if trial >= 2 {
		return c.cfg.OracleModelT2
	}
	return c.cfg.OracleModelT1
}

// ExtractOrders asks the oracle for structured orders. feedback carries
// the validation failures of the previous attempt and is empty on the
// first one.
func (c *Client) ExtractOrders(ctx context.Context, trial int, docs []internal.Document, meta internal.MessageMeta, instructions, feedback string) ([]internal.Order, internal.Usage, error) {
	model := c.modelForTrial(trial)
	prompt := extractionPrompt(trial, redactMeta(meta, c.cfg.BlacklistEmails), instructions, feedback)

	text, usage, err := c.generate(ctx, model, prompt, docs)
	if err != nil {
		return nil, usage, err
	}

	orders, err := parseOrders(text)
	if err != nil {
		return nil, usage, fmt.Errorf("parse oracle output: %w", err)
	}
	return orders, usage, nil
}

// DetectSupplier asks the oracle which directory entry sent the message.
// suppliersCSV is the directory snapshot embedded into the prompt.
func (c *Client) DetectSupplier(ctx context.Context, docs []internal.Document, meta internal.MessageMeta, suppliersCSV string) (internal.DetectionResult, internal.Usage, error) {
	text, usage, err := c.generate(ctx, c.cfg.OracleModelT1, detectionPrompt(redactMeta(meta, c.cfg.BlacklistEmails), suppliersCSV), docs)
	if err != nil {
		return internal.DetectionResult{}, usage, err
	}

	result, err := parseDetection(text)
	if err != nil {
		return internal.DetectionResult{}, usage, fmt.Errorf("parse detection output: %w", err)
	}
	result.Method = internal.DetectOracle
	return result, usage, nil
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
	UsageMetadata struct {
		PromptTokenCount     int64 `json:"promptTokenCount"`
		CandidatesTokenCount int64 `json:"candidatesTokenCount"`
		TotalTokenCount      int64 `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func (c *Client) generate(ctx context.Context, model, prompt string, docs []internal.Document) (string, internal.Usage, error) {
	usage := internal.Usage{Model: model}
	if strings.TrimSpace(c.cfg.OracleAPIKey) == "" {
		return "", usage, errors.New("missing ORACLE_API_KEY")
	}

	parts := []part{{Text: prompt}}
	for _, doc := range docs {
		parts = append(parts, part{InlineData: &inlineData{
			MimeType: doc.MediaType,
			Data:     base64.StdEncoding.EncodeToString(doc.Content),
		}})
	}

	payload, err := json.Marshal(generateRequest{Contents: []content{{Parts: parts}}})
	if err != nil {
		return "", usage, err
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		strings.TrimRight(c.cfg.OracleAPIBaseURL, "/"), model, c.cfg.OracleAPIKey)

	var lastErr error
	for attempt := 1; attempt <= 5; attempt++ {
		c.limiter.WaitTurn()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return "", usage, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < 5 {
				backoff := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
				time.Sleep(backoff)
				lastErr = fmt.Errorf("oracle status %d", resp.StatusCode)
				continue
			}
			return "", usage, fmt.Errorf("oracle api error: status=%d body=%s", resp.StatusCode, string(body))
		}

		var genResp generateResponse
		if err := json.Unmarshal(body, &genResp); err != nil {
			return "", usage, err
		}

		usage.PromptTokens = genResp.UsageMetadata.PromptTokenCount
		usage.OutputTokens = genResp.UsageMetadata.CandidatesTokenCount
		usage.TotalTokens = genResp.UsageMetadata.TotalTokenCount
		usage.EstimatedCost = EstimateCost(model, usage)

		if len(genResp.Candidates) == 0 {
			return "", usage, errors.New("oracle returned no candidates")
		}

		var sb strings.Builder
		for _, p := range genResp.Candidates[0].Content.Parts {
			sb.WriteString(p.Text)
		}
		return sb.String(), usage, nil
	}

	if lastErr == nil {
		lastErr = errors.New("oracle request failed")
	}
	return "", usage, lastErr
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
