// Package gateway reads blobs back through a public retrieval path of the form
// <gateway>/<identifier>.
package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ipfs/go-cid"

	"xdao.co/taskledger/cidutil"
	"xdao.co/taskledger/storage"
)

// URL returns the deterministic retrieval URL for id under base.
func URL(base string, id string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/") + "/" + id
}

// Reader implements the read half of storage.Store against an HTTP gateway.
type Reader struct {
	Base string
	HTTP *http.Client
	// MaxBytes bounds a single fetch when non-zero.
	MaxBytes int64
}

func (r Reader) client() *http.Client {
	if r.HTTP != nil {
		return r.HTTP
	}
	return http.DefaultClient
}

func (r Reader) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	if r.Base == "" {
		return nil, storage.ErrNotFound
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, URL(r.Base, id.String()), nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrUpstream, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, storage.ErrNotFound
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: gateway returned %d", storage.ErrUpstream, resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if r.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, r.MaxBytes)
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	// Only raw blocks can be checked locally; UnixFS DAG identifiers need the DAG.
	if id.Type() == cid.Raw && !cidutil.Matches(id, b) {
		return nil, storage.ErrCIDMismatch
	}
	return b, nil
}

func (r Reader) Has(ctx context.Context, id cid.Cid) bool {
	if !id.Defined() || r.Base == "" {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, URL(r.Base, id.String()), nil)
	if err != nil {
		return false
	}
	resp, err := r.client().Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
