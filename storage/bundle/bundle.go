// Package bundle archives task result blobs as a deterministic TAR.
//
// A bundle holds blocks/<cid> entries plus an optional index.json mapping
// human labels (typically data ids) to the identifiers they reference.
package bundle

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/taskledger/cidutil"
	"xdao.co/taskledger/storage"
)

// FormatVersion is the current bundle index schema version.
const FormatVersion = 1

var epoch0 = time.Unix(0, 0).UTC()

// Entry names one blob to export.
type Entry struct {
	Label string
	CID   cid.Cid
}

// ExportOptions controls bundle export behavior.
type ExportOptions struct {
	// IncludeIndex controls whether index.json is included.
	IncludeIndex bool
}

// Export writes the blobs referenced by entries to w.
//
// Entry order is lexicographic by CID and TAR headers are normalized, so the
// same set of entries always yields the same bytes. Raw blocks are verified
// against their CID before being written.
func Export(ctx context.Context, w io.Writer, s storage.Store, entries []Entry, opts ExportOptions) error {
	if s == nil {
		return fmt.Errorf("bundle: nil store")
	}

	uniq := make(map[string]cid.Cid, len(entries))
	labels := make([]indexLabel, 0, len(entries))
	for _, e := range entries {
		if !e.CID.Defined() {
			return storage.ErrInvalidCID
		}
		uniq[e.CID.String()] = e.CID
		if e.Label != "" {
			labels = append(labels, indexLabel{Name: e.Label, CID: e.CID.String()})
		}
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].Name != labels[j].Name {
			return labels[i].Name < labels[j].Name
		}
		return labels[i].CID < labels[j].CID
	})

	cidStrings := make([]string, 0, len(uniq))
	for k := range uniq {
		cidStrings = append(cidStrings, k)
	}
	sort.Strings(cidStrings)

	tw := tar.NewWriter(w)
	blocks := make([]indexBlock, 0, len(cidStrings))
	for _, k := range cidStrings {
		id := uniq[k]
		b, err := s.Get(ctx, id)
		if err != nil {
			_ = tw.Close()
			return fmt.Errorf("bundle: get %s: %w", k, err)
		}
		if id.Type() == cid.Raw && !cidutil.Matches(id, b) {
			_ = tw.Close()
			return storage.ErrCIDMismatch
		}
		if err := writeFile(tw, "blocks/"+k, b); err != nil {
			_ = tw.Close()
			return err
		}
		blocks = append(blocks, indexBlock{CID: k, Size: len(b), Raw: id.Type() == cid.Raw})
	}

	if opts.IncludeIndex {
		b, err := marshalIndex(indexJSON{Version: FormatVersion, Blocks: blocks, Labels: labels})
		if err != nil {
			_ = tw.Close()
			return err
		}
		if err := writeFile(tw, "index.json", b); err != nil {
			_ = tw.Close()
			return err
		}
	}
	return tw.Close()
}

// ImportOptions controls bundle import behavior.
type ImportOptions struct {
	// IgnoreUnknown skips unknown TAR entries instead of failing.
	IgnoreUnknown bool
	// Repin accepts non-raw blocks. Their bytes are pushed as-is and the store
	// may assign a different identifier; see ImportResult.
	Repin bool
}

// ImportResult maps every imported block's bundle CID to the CID the target
// store returned. For raw blocks both are always equal.
type ImportResult map[string]cid.Cid

// Import reads a bundle from r and pushes every block into s.
func Import(ctx context.Context, r io.Reader, s storage.Store, opts ImportOptions) (ImportResult, error) {
	if s == nil {
		return nil, fmt.Errorf("bundle: nil store")
	}

	tr := tar.NewReader(r)
	out := ImportResult{}
	for {
		h, err := tr.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return out, fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}
		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return out, fmt.Errorf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}
		if name == "index.json" {
			_, _ = io.Copy(io.Discard, tr)
			continue
		}
		if !strings.HasPrefix(name, "blocks/") {
			if opts.IgnoreUnknown {
				_, _ = io.Copy(io.Discard, tr)
				continue
			}
			return out, fmt.Errorf("bundle: unknown entry: %s", name)
		}

		key := strings.TrimPrefix(name, "blocks/")
		id, derr := cid.Decode(key)
		if derr != nil || !id.Defined() {
			return out, storage.ErrInvalidCID
		}
		if _, dup := out[key]; dup {
			return out, fmt.Errorf("bundle: duplicate block entry: %s", key)
		}
		payload, err := io.ReadAll(tr)
		if err != nil {
			return out, err
		}

		raw := id.Type() == cid.Raw
		if raw && !cidutil.Matches(id, payload) {
			return out, storage.ErrCIDMismatch
		}
		if !raw && !opts.Repin {
			return out, fmt.Errorf("bundle: block %s is not raw; set Repin to import it", key)
		}
		got, err := s.Push(ctx, payload, storage.Metadata{Name: key, KeyValues: map[string]string{"bundle": "import"}})
		if err != nil {
			return out, err
		}
		if raw && !got.Equals(id) {
			return out, storage.ErrCIDMismatch
		}
		out[key] = got
	}
}

type indexJSON struct {
	Version int          `json:"version"`
	Blocks  []indexBlock `json:"blocks"`
	Labels  []indexLabel `json:"labels,omitempty"`
}

type indexBlock struct {
	CID  string `json:"cid"`
	Size int    `json:"size"`
	Raw  bool   `json:"raw"`
}

type indexLabel struct {
	Name string `json:"name"`
	CID  string `json:"cid"`
}

func marshalIndex(idx indexJSON) ([]byte, error) {
	// Structs and pre-sorted slices only; encoding/json output is deterministic.
	b, err := json.Marshal(idx)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}
	parts := strings.Split(name, "/")
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
