package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/orrn/printdesk/internal/core"
)

type PinningConfig struct {
	BaseURL    string
	GatewayURL string
	APIKey     string
	APISecret  string
	Timeout    time.Duration
}

type PinningClient struct {
	cfg        PinningConfig
	httpClient *http.Client
}

type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

type PinningError struct {
	StatusCode int
	Body       string
}

func (e *PinningError) Error() string {
	return fmt.Sprintf("pinning service error: status %d: %s", e.StatusCode, e.Body)
}

func NewPinningClient(cfg PinningConfig) *PinningClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.GatewayURL = strings.TrimRight(cfg.GatewayURL, "/")
	return &PinningClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Store streams the document to the pinning service as a multipart upload
// and returns the gateway URL of the pinned content.
func (c *PinningClient) Store(ctx context.Context, name, contentType string, r io.Reader) (core.Artifact, error) {
	if c.cfg.APIKey == "" {
		return core.Artifact{}, fmt.Errorf("%w: pinning api key not configured", core.ErrStorage)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	counter := &countingReader{r: r}

	go func() {
		pw.CloseWithError(writePinForm(mw, name, contentType, counter))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/pinning/pinFileToIPFS", pr)
	if err != nil {
		pr.Close()
		return core.Artifact{}, fmt.Errorf("%w: failed to create request: %v", core.ErrStorage, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("pinata_api_key", c.cfg.APIKey)
	req.Header.Set("pinata_secret_api_key", c.cfg.APISecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		pr.Close()
		return core.Artifact{}, fmt.Errorf("%w: failed to send request: %v", core.ErrStorage, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return core.Artifact{}, fmt.Errorf("%w: failed to read response: %v", core.ErrStorage, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return core.Artifact{}, fmt.Errorf("%w: %w", core.ErrStorage, &PinningError{StatusCode: resp.StatusCode, Body: string(respBody)})
	}

	var pinned pinResponse
	if err := json.Unmarshal(respBody, &pinned); err != nil {
		return core.Artifact{}, fmt.Errorf("%w: failed to parse response: %v", core.ErrStorage, err)
	}
	if pinned.IpfsHash == "" {
		return core.Artifact{}, fmt.Errorf("%w: pinning service returned no content hash", core.ErrStorage)
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	ref := c.cfg.GatewayURL + "/ipfs/" + pinned.IpfsHash
	log.Debug().Str("file", name).Str("ref", ref).Int64("bytes", counter.n.Load()).Msg("document pinned")
	return core.Artifact{Ref: ref, Size: counter.n.Load(), ContentType: contentType}, nil
}

func writePinForm(mw *multipart.Writer, name, contentType string, r io.Reader) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	if contentType != "" {
		h.Set("Content-Type", contentType)
	} else {
		h.Set("Content-Type", "application/octet-stream")
	}
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r); err != nil {
		return err
	}

	meta, err := json.Marshal(map[string]any{"name": name})
	if err != nil {
		return err
	}
	if err := mw.WriteField("pinataMetadata", string(meta)); err != nil {
		return err
	}
	return mw.Close()
}

type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}
