package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/server/uploads"
	"github.com/dmitrijs2005/gophvault/internal/server/vault"
)

var filePattern = regexp.MustCompile(`\.[^/]+$`)

type listResponse struct {
	Success bool `json:"success"`
	*vault.ListResult
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sub := vaultPath(r)
	key := r.Header.Get(headerVaultKey)

	if !s.store.Locks().IsKeyValid(sub, key) {
		s.writeError(w, r, fmt.Errorf("%w: invalid key", common.ErrForbidden))
		return
	}

	if !filePattern.MatchString(sub) {
		res, err := s.store.List(r.Context(), sub)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, listResponse{Success: true, ListResult: res})
		return
	}

	data, err := s.store.GetFile(r.Context(), sub, key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ct := mime.TypeByExtension(path.Ext(sub))
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

// form is a POST body reduced to string fields and uploaded files.
type form struct {
	fields map[string]string
	files  map[string][]*multipart.FileHeader
}

func (f *form) get(name string) string { return f.fields[name] }

// require returns the named field or a validation error naming it.
func (f *form) require(name string) (string, error) {
	v := f.fields[name]
	if v == "" {
		return "", fmt.Errorf("%w: Missing arg: %q", common.ErrValidation, name)
	}
	return v, nil
}

// parseForm accepts multipart, urlencoded and JSON bodies.
func parseForm(w http.ResponseWriter, r *http.Request) (*form, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	f := &form{fields: map[string]string{}}

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "application/json":
		var raw map[string]any
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil && err != io.EOF {
			return nil, fmt.Errorf("%w: malformed JSON body: %v", common.ErrValidation, err)
		}
		for k, v := range raw {
			if v != nil {
				f.fields[k] = fmt.Sprint(v)
			}
		}
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxMemoryBytes); err != nil {
			return nil, fmt.Errorf("%w: %w", common.ErrValidation, err)
		}
		for k, v := range r.MultipartForm.Value {
			if len(v) > 0 {
				f.fields[k] = v[0]
			}
		}
		f.files = r.MultipartForm.File
	default:
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("%w: %w", common.ErrValidation, err)
		}
		for k := range r.PostForm {
			f.fields[k] = r.PostForm.Get(k)
		}
	}
	return f, nil
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	f, err := parseForm(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if f.files != nil {
		defer r.MultipartForm.RemoveAll()
	}

	res, err := s.runCommand(r, vaultPath(r), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, res)
}

// runCommand dispatches a POST command and returns the extra response
// fields.
func (s *Server) runCommand(r *http.Request, sub string, f *form) (map[string]any, error) {
	ctx := r.Context()
	command := f.get("command")
	key := f.get("key")
	locks := s.store.Locks()

	switch command {
	case "create", "delete", "rename", "upload", "upload-init":
		if !locks.IsKeyValid(sub, key) {
			return nil, fmt.Errorf("%w: invalid key", common.ErrForbidden)
		}
	case "decrypt", "encrypt", "verify":
		if _, err := f.require("key"); err != nil {
			return nil, err
		}
	}

	switch command {
	case "create":
		return nil, s.store.Create(ctx, sub)

	case "decrypt":
		return nil, s.store.Unlock(ctx, sub, key)

	case "delete":
		return nil, s.store.Delete(ctx, sub)

	case "encrypt":
		return nil, s.store.Lock(ctx, sub, key)

	case "move":
		folder, err := f.require("folder")
		if err != nil {
			return nil, err
		}
		if s.auth != nil {
			if _, err := s.auth.Authorize(ctx, folder, r.Header.Get("Authorization"), r.Header.Get(headerAPIKey)); err != nil {
				return nil, err
			}
		}
		return nil, s.store.Move(ctx, sub, folder)

	case "rename":
		name, err := f.require("name")
		if err != nil {
			return nil, err
		}
		return nil, s.store.Rename(ctx, sub, name)

	case "upload":
		files, err := readFiles(f.files["files"])
		if err != nil {
			return nil, err
		}
		res, err := s.uploads.UploadFiles(ctx, sub, key, files)
		if err != nil {
			return nil, err
		}
		if len(res.Failed) > 0 {
			return map[string]any{"failed": res.Failed}, nil
		}
		return nil, nil

	case "upload-init":
		name, err := f.require("name")
		if err != nil {
			return nil, err
		}
		rawSize, err := f.require("size")
		if err != nil {
			return nil, err
		}
		size, err := strconv.ParseInt(strings.TrimSpace(rawSize), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid size %q", common.ErrValidation, rawSize)
		}
		id, err := s.uploads.Init(ctx, sub, name, key, size)
		if err != nil {
			return nil, err
		}
		return map[string]any{"id": id}, nil

	case "upload-cancel":
		id, err := f.require("id")
		if err != nil {
			return nil, err
		}
		return nil, s.uploads.Cancel(ctx, id)

	case "upload-chunk":
		chunks := f.files["chunk"]
		if len(chunks) != 1 {
			return nil, fmt.Errorf("%w: Invalid upload chunk", common.ErrValidation)
		}
		data, err := readPart(chunks[0])
		if err != nil {
			return nil, err
		}
		res, err := s.uploads.AppendChunk(ctx,
			r.Header.Get(headerUploadID), r.Header.Get(headerFileName), r.Header.Get(headerContentRange), data)
		if err != nil {
			return nil, err
		}
		if res.Done {
			return map[string]any{"done": true, "path": res.Path}, nil
		}
		return nil, nil

	case "verify":
		return map[string]any{"success": locks.IsKeyValid(sub, key)}, nil
	}

	return nil, fmt.Errorf("%w: Invalid command", common.ErrValidation)
}

func readFiles(headers []*multipart.FileHeader) ([]uploads.File, error) {
	if len(headers) == 0 {
		return nil, fmt.Errorf("%w: Missing arg: %q", common.ErrValidation, "files")
	}
	files := make([]uploads.File, 0, len(headers))
	for _, h := range headers {
		data, err := readPart(h)
		if err != nil {
			return nil, err
		}
		files = append(files, uploads.File{Name: h.Filename, Data: data})
	}
	return files, nil
}

func readPart(h *multipart.FileHeader) ([]byte, error) {
	f, err := h.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", h.Filename, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}
