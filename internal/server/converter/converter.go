// Package converter calls the office-document conversion service.
package converter

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/netx"
)

// DefaultURL is where the conversion service listens in the default deployment.
const DefaultURL = "http://vault-converter:3000"

const officePath = "/convert/office"

// HTTPConverter posts documents to a conversion service and returns the PDF.
type HTTPConverter struct {
	baseURL string
	client  *http.Client
}

func NewHTTPConverter(baseURL string, timeout time.Duration) *HTTPConverter {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPConverter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPConverter) Convert(ctx context.Context, filename string, data []byte) ([]byte, error) {
	return netx.PostFile(ctx, c.client, c.baseURL+officePath, "files", filename, data)
}
