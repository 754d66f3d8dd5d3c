package converter

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPConverter_Convert(t *testing.T) {
	var gotPath, gotName, gotBody string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		f, h, err := r.FormFile("files")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		gotName, gotBody = h.Filename, string(b)
		_, _ = w.Write([]byte("%PDF"))
	}))
	defer ts.Close()

	c := NewHTTPConverter(ts.URL+"/", time.Second)
	out, err := c.Convert(context.Background(), "slides.pptx", []byte("pptx-bytes"))
	require.NoError(t, err)

	assert.Equal(t, "%PDF", string(out))
	assert.Equal(t, "/convert/office", gotPath)
	assert.Equal(t, "slides.pptx", gotName)
	assert.Equal(t, "pptx-bytes", gotBody)
}

func TestHTTPConverter_ServiceError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unoconv crashed", http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, err := NewHTTPConverter(ts.URL, time.Second).Convert(context.Background(), "a.doc", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unoconv crashed")
}

func TestNewHTTPConverter_Defaults(t *testing.T) {
	c := NewHTTPConverter("", 0)
	assert.Equal(t, DefaultURL, c.baseURL)
	assert.Equal(t, 2*time.Minute, c.client.Timeout)
}
