// Package pinning pushes blobs to a Pinata-compatible pinning service.
//
// Each push is a single multipart upload to pinFileToIPFS carrying the file,
// its pinataMetadata (name and keyvalues) and pinataOptions fixing the CID
// version to 1 without a wrapping directory.
package pinning

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

const DefaultEndpoint = "https://api.pinata.cloud"

// Store pins through the service API and reads back through a gateway.
type Store struct {
	gateway.Reader

	endpoint  string
	apiKey    string
	apiSecret string
	jwt       string
	http      *http.Client
}

var _ storage.Store = (*Store)(nil)

type Options struct {
	// Endpoint is the service base URL. Defaults to DefaultEndpoint.
	Endpoint string
	// APIKey/APISecret authenticate with key headers; JWT, when set, wins.
	APIKey    string
	APISecret string
	JWT       string
	// Gateway is the retrieval base used by Get and Has.
	Gateway string
	// Timeout bounds each HTTP request. Defaults to 60s.
	Timeout time.Duration
}

func New(opts Options) *Store {
	endpoint := strings.TrimRight(strings.TrimSpace(opts.Endpoint), "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	hc := &http.Client{Timeout: timeout}
	return &Store{
		Reader:    gateway.Reader{Base: opts.Gateway, HTTP: hc},
		endpoint:  endpoint,
		apiKey:    opts.APIKey,
		apiSecret: opts.APISecret,
		jwt:       opts.JWT,
		http:      hc,
	}
}

type pinMetadata struct {
	Name      string            `json:"name,omitempty"`
	KeyValues map[string]string `json:"keyvalues,omitempty"`
}

type pinOptions struct {
	CIDVersion        int  `json:"cidVersion"`
	WrapWithDirectory bool `json:"wrapWithDirectory"`
}

type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

func (s *Store) Push(ctx context.Context, data []byte, meta storage.Metadata) (cid.Cid, error) {
	body, contentType, err := encodeUpload(data, meta)
	if err != nil {
		return cid.Undef, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/pinning/pinFileToIPFS", body)
	if err != nil {
		return cid.Undef, err
	}
	req.Header.Set("Content-Type", contentType)
	if s.jwt != "" {
		req.Header.Set("Authorization", "Bearer "+s.jwt)
	} else {
		req.Header.Set("pinata_api_key", s.apiKey)
		req.Header.Set("pinata_secret_api_key", s.apiSecret)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return cid.Undef, fmt.Errorf("%w: %v", storage.ErrUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return cid.Undef, fmt.Errorf("%w: pinning service returned %d: %s", storage.ErrUpstream, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return cid.Undef, fmt.Errorf("%w: decode pin response: %v", storage.ErrUpstream, err)
	}
	id, err := cidutil.ParseV1(out.IpfsHash)
	if err != nil {
		return cid.Undef, fmt.Errorf("%w: %v", storage.ErrInvalidCID, err)
	}
	return id, nil
}

func encodeUpload(data []byte, meta storage.Metadata) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	name := meta.Name
	if name == "" {
		name = "blob"
	}
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(data); err != nil {
		return nil, "", err
	}

	metaJSON, err := json.Marshal(pinMetadata{Name: name, KeyValues: meta.KeyValues})
	if err != nil {
		return nil, "", err
	}
	if err := mw.WriteField("pinataMetadata", string(metaJSON)); err != nil {
		return nil, "", err
	}
	optJSON, err := json.Marshal(pinOptions{CIDVersion: cidutil.Version, WrapWithDirectory: false})
	if err != nil {
		return nil, "", err
	}
	if err := mw.WriteField("pinataOptions", string(optJSON)); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}
