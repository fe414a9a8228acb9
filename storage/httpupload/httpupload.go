// Package httpupload pushes blobs through a taskledger upload endpoint
// (see package uploadapi) instead of talking to a store directly.
package httpupload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/taskledger/cidutil"
	"xdao.co/taskledger/storage"
	"xdao.co/taskledger/storage/gateway"
)

// Store posts single-file multipart bodies to <BaseURL>/api/upload.
type Store struct {
	gateway.Reader

	baseURL string
	http    *http.Client
}

var _ storage.Store = (*Store)(nil)

func New(baseURL, gatewayBase string, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	hc := &http.Client{Timeout: timeout}
	return &Store{
		Reader:  gateway.Reader{Base: gatewayBase, HTTP: hc},
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    hc,
	}
}

type uploadReply struct {
	Identifier string `json:"identifier"`
	Error      string `json:"error"`
	Details    string `json:"details"`
}

func (s *Store) Push(ctx context.Context, data []byte, meta storage.Metadata) (cid.Cid, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	name := meta.Name
	if name == "" {
		name = "blob"
	}
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return cid.Undef, err
	}
	if _, err := fw.Write(data); err != nil {
		return cid.Undef, err
	}
	if len(meta.KeyValues) > 0 {
		kv, err := json.Marshal(meta.KeyValues)
		if err != nil {
			return cid.Undef, err
		}
		if err := mw.WriteField("keyvalues", string(kv)); err != nil {
			return cid.Undef, err
		}
	}
	if err := mw.Close(); err != nil {
		return cid.Undef, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/upload", &buf)
	if err != nil {
		return cid.Undef, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.http.Do(req)
	if err != nil {
		return cid.Undef, fmt.Errorf("%w: %v", storage.ErrUpstream, err)
	}
	defer resp.Body.Close()

	var out uploadReply
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out); err != nil {
		return cid.Undef, fmt.Errorf("%w: upload endpoint returned %d", storage.ErrUpstream, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		if out.Details != "" {
			return cid.Undef, fmt.Errorf("%w: %s: %s", storage.ErrUpstream, out.Error, out.Details)
		}
		return cid.Undef, fmt.Errorf("%w: %s", storage.ErrUpstream, out.Error)
	}
	id, err := cidutil.ParseV1(out.Identifier)
	if err != nil {
		return cid.Undef, fmt.Errorf("%w: %v", storage.ErrInvalidCID, err)
	}
	return id, nil
}
