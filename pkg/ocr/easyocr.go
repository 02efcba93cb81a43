package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// recognition languages are fixed: Simplified Chinese plus English.
var languages = []string{"ch_sim", "en"}

// EasyOCRClient talks to an easyocr sidecar over HTTP. The sidecar loads
// its recognition model on the first /warmup call; the client issues that
// call once per process, guarded against concurrent initialization, and
// every Extract call reuses the warmed engine.
type EasyOCRClient struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger

	warmMu sync.Mutex
	warmed bool
}

func NewEasyOCRClient(endpoint string, timeout time.Duration, logger *zap.Logger) *EasyOCRClient {
	return &EasyOCRClient{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type readResponse struct {
	Fragments []string `json:"fragments"`
}

// ExtractURL hands a remote image URL to the sidecar, which downloads and
// reads it server-side.
func (c *EasyOCRClient) ExtractURL(ctx context.Context, url string) (string, error) {
	if err := c.warmup(ctx); err != nil {
		return "", err
	}

	body, err := json.Marshal(map[string]any{"url": url, "languages": languages})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/read", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

// ExtractBytes uploads raw image bytes (a downloaded attachment) for
// recognition.
func (c *EasyOCRClient) ExtractBytes(ctx context.Context, image []byte) (string, error) {
	if err := c.warmup(ctx); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", uuid.New().String()+".jpg")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(image); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/read", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return c.do(req)
}

func (c *EasyOCRClient) do(req *http.Request) (string, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocr request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ocr response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ocr service returned %d: %s", resp.StatusCode, data)
	}

	var parsed readResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("ocr response: %w", err)
	}

	// Fragment order is the engine's native reading order. No separator:
	// downstream consumers treat the result as one run of text.
	return strings.Join(parsed.Fragments, ""), nil
}

// warmup asks the sidecar to load its model. The mutex serializes
// concurrent first callers so the model is loaded exactly once; a failed
// warmup is retried on the next call rather than cached forever, so a
// sidecar that comes up late still becomes usable.
func (c *EasyOCRClient) warmup(ctx context.Context) error {
	c.warmMu.Lock()
	defer c.warmMu.Unlock()

	if c.warmed {
		return nil
	}

	body, err := json.Marshal(map[string]any{"languages": languages})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/warmup", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ocr warmup: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ocr warmup returned %d", resp.StatusCode)
	}

	c.warmed = true
	c.logger.Info("ocr engine warmed", zap.Strings("languages", languages))
	return nil
}
