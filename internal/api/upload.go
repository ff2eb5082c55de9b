package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// File is one part of a multipart upload.
type File struct {
	FieldName   string
	FileName    string
	ContentType string
	Reader      io.Reader
}

// Upload streams a multipart form to endpoint with the same auth and timeout
// discipline as Request. onProgress, when non-nil, receives the percentage of
// the request body written so far.
func (c *Client) Upload(ctx context.Context, endpoint string, files []File, fields map[string]string, onProgress func(float64)) (*Envelope, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("api: upload requires at least one file")
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("api: write form field %s: %w", name, err)
		}
	}
	for _, f := range files {
		part, err := writer.CreateFormFile(f.FieldName, f.FileName)
		if err != nil {
			return nil, fmt.Errorf("api: create form file %s: %w", f.FieldName, err)
		}
		if _, err := io.Copy(part, f.Reader); err != nil {
			return nil, fmt.Errorf("api: read upload %s: %w", f.FileName, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("api: finalize form: %w", err)
	}

	// Uploads get a generous multiple of the request budget: a multipart
	// body is expected to take longer than a JSON call.
	timeout := c.timeout * 6
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body := &progressReader{r: bytes.NewReader(buf.Bytes()), total: int64(buf.Len()), onProgress: onProgress}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("api: create upload request: %w", err)
	}
	req.ContentLength = int64(buf.Len())
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if token := c.currentToken(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return nil, timeoutError()
		}
		return nil, networkError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, networkError(err)
	}
	return c.parseEnvelope(resp, respBody)
}

// progressReader reports cumulative read progress as a percentage.
type progressReader struct {
	r          io.Reader
	total      int64
	read       int64
	onProgress func(float64)
	lastReport time.Time
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	p.read += int64(n)
	if p.onProgress != nil && p.total > 0 {
		// Throttle callbacks; always report completion.
		done := p.read >= p.total
		if done || time.Since(p.lastReport) >= 50*time.Millisecond {
			p.lastReport = time.Now()
			p.onProgress(float64(p.read) / float64(p.total) * 100)
		}
	}
	return n, err
}
