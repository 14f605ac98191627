package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/WailSalutem-Health-Care/user-directory/internal/users"
)

// ProgressFunc is called as the request body is sent. total is the full body size.
type ProgressFunc func(loaded, total int64)

// progressReader reports how much of the body the transport has consumed
type progressReader struct {
	r      io.Reader
	total  int64
	loaded int64
	fn     ProgressFunc
	mu     sync.Mutex
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.fn != nil {
		p.mu.Lock()
		p.loaded += int64(n)
		loaded := p.loaded
		p.mu.Unlock()
		p.fn(loaded, p.total)
	}
	return n, err
}

// UploadProfileImage sends a new profile image for username. A 2xx reply
// returns its status code and the updated user; other replies return *RemoteError.
func (c *Client) UploadProfileImage(ctx context.Context, username string, img *users.ProfileImage, progress ProgressFunc) (*UploadResult, error) {
	if img == nil {
		return nil, fmt.Errorf("no profile image to upload")
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField(FieldUsername, username); err != nil {
		return nil, fmt.Errorf("failed to write field %s: %w", FieldUsername, err)
	}
	if err := writeImage(w, img); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart body: %w", err)
	}
	total := int64(buf.Len())

	ctx, span := tracer.Start(ctx, "directory.upload_profile_image",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("user.username", username),
			attribute.Int64("upload.bytes", total),
		),
	)
	defer span.End()
	start := time.Now()

	body := &progressReader{r: &buf, total: total, fn: progress}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/user/updateProfileImage", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.ContentLength = total
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		if token, err := c.tokens.Token(ctx); err == nil && token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		c.record(ctx, "upload_profile_image", 0, start)
		return nil, fmt.Errorf("failed to upload profile image: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	c.record(ctx, "upload_profile_image", resp.StatusCode, start)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		remote := decodeRemoteError(resp)
		log.Printf("Profile image upload failed: %d - %s", resp.StatusCode, remote.Message)
		span.SetStatus(codes.Error, remote.Error())
		return nil, remote
	}

	if c.metrics != nil {
		c.metrics.RecordUploadBytes(ctx, total)
	}

	result := &UploadResult{StatusCode: resp.StatusCode}
	var u users.User
	if err := json.NewDecoder(resp.Body).Decode(&u); err == nil {
		result.User = &u
	} else if err != io.EOF {
		span.SetStatus(codes.Error, "decode failure")
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	span.SetStatus(codes.Ok, "")
	return result, nil
}
