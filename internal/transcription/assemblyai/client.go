package assemblyai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/karmi/pn-transcriptions/internal/common"
	"github.com/karmi/pn-transcriptions/internal/transcription"
)

// requestID honors a caller-assigned request ID and otherwise mints one, so
// log lines from one logical operation stay correlatable.
func requestID(ctx context.Context) string {
	if rid := common.RequestIDFromContext(ctx); rid != "" {
		return rid
	}
	return uuid.New().String()
}

// Submit queues a transcription job for a fetchable audio URL and returns
// the remote job identifier.
func (c *Client) Submit(ctx context.Context, audioURL string) (string, error) {
	rid := requestID(ctx)
	start := time.Now()

	c.logger.Info("transcribe.submit.start",
		"req_id", rid,
		"item", common.ItemIDFromContext(ctx),
	)

	body := map[string]any{
		"audio_url":          audioURL,
		"speaker_labels":     true,
		"format_text":        true,
		"punctuate":          true,
		"language_detection": true,
		"speech_model":       "universal",
	}
	bs, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	raw, err := c.do(ctx, rid, http.MethodPost, "/v2/transcript", bs, "application/json")
	if err != nil {
		c.logger.Error("transcribe.submit.error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", err
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		c.logger.Error("transcribe.submit.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
		)
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("submit response carries no job id")
	}

	c.logger.Info("transcribe.submit.ok",
		"req_id", rid,
		"job_id", out.ID,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out.ID, nil
}

// Status fetches the current state of a previously submitted job.
func (c *Client) Status(ctx context.Context, jobID string) (transcription.JobStatus, error) {
	rid := requestID(ctx)

	raw, err := c.do(ctx, rid, http.MethodGet, "/v2/transcript/"+jobID, nil, "")
	if err != nil {
		c.logger.Error("transcribe.status.error", "req_id", rid, "job_id", jobID, "error", err)
		return transcription.JobStatus{}, err
	}

	var st struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		return transcription.JobStatus{}, fmt.Errorf("decode status response: %w", err)
	}

	c.logger.Debug("transcribe.status",
		"req_id", rid,
		"job_id", jobID,
		"state", st.Status,
	)
	return transcription.JobStatus{
		ID:    st.ID,
		State: transcription.JobState(st.Status),
		Error: st.Error,
	}, nil
}

// Result fetches the full transcript payload of a completed job.
func (c *Client) Result(ctx context.Context, jobID string) (json.RawMessage, error) {
	rid := requestID(ctx)
	start := time.Now()

	raw, err := c.do(ctx, rid, http.MethodGet, "/v2/transcript/"+jobID, nil, "")
	if err != nil {
		c.logger.Error("transcribe.result.error", "req_id", rid, "job_id", jobID, "error", err)
		return nil, err
	}

	c.logger.Info("transcribe.result.ok",
		"req_id", rid,
		"job_id", jobID,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return raw, nil
}

// Upload streams local audio bytes to the provider and returns a URL usable
// with Submit. The payload is buffered so rate-limited attempts can be
// replayed.
func (c *Client) Upload(ctx context.Context, r io.Reader) (string, error) {
	rid := requestID(ctx)
	start := time.Now()

	payload, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}

	c.logger.Info("transcribe.upload.start",
		"req_id", rid,
		"item", common.ItemIDFromContext(ctx),
		"bytes", len(payload),
	)

	raw, err := c.do(ctx, rid, http.MethodPost, "/v2/upload", payload, "application/octet-stream")
	if err != nil {
		c.logger.Error("transcribe.upload.error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", err
	}

	var out struct {
		UploadURL string `json:"upload_url"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if out.UploadURL == "" {
		return "", fmt.Errorf("upload response carries no url")
	}

	c.logger.Info("transcribe.upload.ok",
		"req_id", rid,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out.UploadURL, nil
}

// Subtitles exports a completed transcript as VTT or SRT text.
func (c *Client) Subtitles(ctx context.Context, jobID string, format transcription.SubtitleFormat) (string, error) {
	rid := requestID(ctx)

	raw, err := c.do(ctx, rid, http.MethodGet, "/v2/transcript/"+jobID+"/"+string(format), nil, "")
	if err != nil {
		c.logger.Error("transcribe.subtitles.error",
			"req_id", rid, "job_id", jobID, "format", format, "error", err)
		return "", err
	}

	c.logger.Info("transcribe.subtitles.ok",
		"req_id", rid,
		"job_id", jobID,
		"format", format,
		"bytes", len(raw),
	)
	return string(raw), nil
}

// do sends one API request, replaying it on rate limits, server errors and
// transport failures up to MaxAttempts. A 401/403 is classified as ErrAuth
// and never retried.
func (c *Client) do(ctx context.Context, rid, method, path string, payload []byte, contentType string) ([]byte, error) {
	url := strings.TrimRight(c.cfg.BaseURL, "/") + path

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Authorization", c.cfg.APIKey)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("assemblyai http error: %w", err)
			c.logger.Warn("transcribe.http.retry",
				"req_id", rid, "attempt", attempt, "error", err)
			if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
				return nil, err
			}
			continue
		}

		raw, readErr := io.ReadAll(resp.Body)
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("transcribe.http.body_close_error", "req_id", rid, "error", err)
		}
		if readErr != nil {
			return nil, fmt.Errorf("read response: %w", readErr)
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return raw, nil

		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, fmt.Errorf("%w: status %d: %s", common.ErrAuth, resp.StatusCode, strings.TrimSpace(string(raw)))

		case resp.StatusCode == http.StatusTooManyRequests:
			wait := c.retryWait(resp.Header, attempt)
			if c.cfg.OnRateLimit != nil {
				c.cfg.OnRateLimit(wait)
			}
			c.logger.Warn("transcribe.http.rate_limited",
				"req_id", rid, "attempt", attempt, "wait_ms", wait.Milliseconds())
			lastErr = fmt.Errorf("assemblyai status 429: %s", strings.TrimSpace(string(raw)))
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}

		case resp.StatusCode >= 500:
			wait := c.backoff(attempt)
			c.logger.Warn("transcribe.http.retry",
				"req_id", rid, "attempt", attempt, "status", resp.StatusCode, "wait_ms", wait.Milliseconds())
			lastErr = fmt.Errorf("assemblyai status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}

		default:
			return nil, fmt.Errorf("assemblyai status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		}
	}
	return nil, fmt.Errorf("giving up after %d attempts: %w", c.cfg.MaxAttempts, lastErr)
}

// retryWait derives the wait before the next attempt from the rate-limit
// headers, falling back to exponential backoff. Retry-After carries relative
// seconds, X-RateLimit-Reset an epoch timestamp. Header-derived waits are
// floored at one second and capped at MaxBackoff.
func (c *Client) retryWait(h http.Header, attempt int) time.Duration {
	if secs := headerSeconds(h.Get("Retry-After")); secs > 0 {
		return c.clampWait(time.Duration(secs) * time.Second)
	}
	if reset := headerSeconds(h.Get("X-RateLimit-Reset")); reset > 0 {
		until := int64(reset) - time.Now().Unix()
		return c.clampWait(time.Duration(until) * time.Second)
	}
	return c.backoff(attempt)
}

func (c *Client) clampWait(d time.Duration) time.Duration {
	if d < time.Second {
		d = time.Second
	}
	if d > c.cfg.MaxBackoff {
		d = c.cfg.MaxBackoff
	}
	return d
}

func (c *Client) backoff(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > c.cfg.MaxBackoff {
		d = c.cfg.MaxBackoff
	}
	return d
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func headerSeconds(v string) int {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return secs
}
