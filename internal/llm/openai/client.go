package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/baloghm/meterbill/internal/llm"
)

// ExtractReadings sends one semantic request per invocation: the compressed
// photo, the instruction block, and the readings schema. Transient failures
// are retried with exponential backoff against the same model; when a model's
// attempt budget is exhausted (or the model itself is unavailable) the next
// model in the ordered list takes over. Non-transient failures abort
// immediately. Callers only ever see a classified llm.ExtractionError.
func (c *Client) ExtractReadings(ctx context.Context, req llm.ExtractRequest) ([]byte, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, llm.NewExtractionError(llm.CodeMissingCredential, nil)
	}

	rid := uuid.New().String()
	start := time.Now()
	schema := llm.BuildReadingsJSONSchema()
	sys := llm.BuildSystemPrompt(req)
	user := llm.BuildUserPrompt(req)

	c.logger.Info("llm.extract.start",
		"req_id", rid,
		"models", c.cfg.Models,
		"temp", c.cfg.Temperature,
		"meter_hint", req.MeterHint,
		"image_bytes", len(req.ImageDataURL),
	)

	var lastErr *llm.ExtractionError
	for mi, model := range c.cfg.Models {
		for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
			raw, cerr := c.attempt(ctx, rid, model, sys, user, schema, req)
			if cerr == nil {
				c.logger.Info("llm.extract.ok",
					"req_id", rid, "model", model, "attempt", attempt,
					"elapsed_ms", time.Since(start).Milliseconds(),
				)
				return raw, nil
			}
			lastErr = cerr

			switch cerr.Action() {
			case llm.FailFast:
				c.logger.Error("llm.extract.fatal",
					"req_id", rid, "model", model, "code", cerr.Code, "error", cerr,
					"elapsed_ms", time.Since(start).Milliseconds(),
				)
				return nil, cerr
			case llm.AdvanceModel:
				c.logger.Warn("llm.extract.model_unavailable",
					"req_id", rid, "model", model, "error", cerr)
				attempt = c.cfg.MaxAttempts // leave the attempt loop
			case llm.RetrySameModel:
				if attempt < c.cfg.MaxAttempts {
					delay := c.cfg.BaseDelay << (attempt - 1)
					c.logger.Warn("llm.extract.retry",
						"req_id", rid, "model", model, "attempt", attempt,
						"code", cerr.Code, "delay_ms", delay.Milliseconds(),
					)
					if err := sleepCtx(ctx, delay); err != nil {
						return nil, llm.NewExtractionError(llm.CodeServiceUnavailable, err)
					}
				}
			}
		}
		if mi < len(c.cfg.Models)-1 {
			c.logger.Warn("llm.extract.fallback",
				"req_id", rid, "from_model", model, "to_model", c.cfg.Models[mi+1])
			if err := sleepCtx(ctx, c.cfg.BaseDelay); err != nil {
				return nil, llm.NewExtractionError(llm.CodeServiceUnavailable, err)
			}
		}
	}

	c.logger.Error("llm.extract.exhausted",
		"req_id", rid, "code", lastErr.Code,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil, lastErr
}

// attempt issues exactly one request against one model and returns the
// schema-validated reply content.
func (c *Client) attempt(ctx context.Context, rid, model, sys, user string, schema map[string]any, req llm.ExtractRequest) ([]byte, *llm.ExtractionError) {
	body := map[string]any{
		"model":           model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": sys},
			{"role": "user", "content": []map[string]any{
				{"type": "text", "text": user},
				{"type": "image_url", "image_url": map[string]any{
					"url":    req.ImageDataURL,
					"detail": "high",
				}},
			}},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, status, err := c.post(ctx, endpoint, body)
	if err != nil && status == 0 {
		// transport-level failure, no status to classify
		return nil, llm.NewExtractionError(llm.CodeServiceUnavailable, err)
	}
	if status < 200 || status >= 300 {
		return nil, llm.Classify(status, raw)
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, llm.NewExtractionError(llm.CodeMalformedResponse, fmt.Errorf("decode response: %w", err))
	}
	if len(cc.Choices) == 0 {
		return nil, llm.NewExtractionError(llm.CodeMalformedResponse, fmt.Errorf("no choices in response"))
	}
	content := []byte(strings.TrimSpace(cc.Choices[0].Message.Content))

	if err := llm.ValidateReadings(content); err != nil {
		c.logger.Error("llm.extract.schema_validation_failed",
			"req_id", rid, "model", model, "error", err, "content", string(content))
		return nil, llm.NewExtractionError(llm.CodeMalformedResponse, err)
	}
	return content, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, int, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("provider http error: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.logger.Warn("provider response body close error", "error", err)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(resp.Body)
	return raw, resp.StatusCode, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
