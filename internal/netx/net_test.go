package netx

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostFile(t *testing.T) {
	t.Run("success 200 OK", func(t *testing.T) {
		var gotField, gotName, gotBody string

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			file, header, err := r.FormFile("files")
			if !assert.NoError(t, err) {
				return
			}
			defer file.Close()
			b, _ := io.ReadAll(file)
			gotField, gotName, gotBody = "files", header.Filename, string(b)
			_, _ = w.Write([]byte("%PDF-converted"))
		}))
		defer ts.Close()

		out, err := PostFile(context.Background(), ts.Client(), ts.URL+"/convert/office", "files", "slides.pptx", []byte("pptx-bytes"))
		require.NoError(t, err)
		assert.Equal(t, "%PDF-converted", string(out))
		assert.Equal(t, "files", gotField)
		assert.Equal(t, "slides.pptx", gotName)
		assert.Equal(t, "pptx-bytes", gotBody)
	})

	t.Run("non-200 returns error with body", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unsupported", http.StatusBadRequest)
		}))
		defer ts.Close()

		_, err := PostFile(context.Background(), ts.Client(), ts.URL, "files", "a.doc", []byte("x"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "400")
		assert.Contains(t, err.Error(), "unsupported")
	})

	t.Run("bad url", func(t *testing.T) {
		_, err := PostFile(context.Background(), http.DefaultClient, "://bad", "files", "a.doc", nil)
		require.Error(t, err)
	})
}

func TestGetJSON(t *testing.T) {
	t.Run("decodes body and forwards headers", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"success":true}`))
		}))
		defer ts.Close()

		var out struct {
			Success bool `json:"success"`
		}
		code, err := GetJSON(context.Background(), ts.Client(), ts.URL, map[string]string{"Authorization": "Bearer abc"}, &out)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, code)
		assert.True(t, out.Success)
	})

	t.Run("invalid json", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}))
		defer ts.Close()

		var out map[string]any
		_, err := GetJSON(context.Background(), ts.Client(), ts.URL, nil, &out)
		require.Error(t, err)
	})
}
