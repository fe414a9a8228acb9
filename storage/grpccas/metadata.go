package grpccas

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"

	"xdao.co/taskledger/storage"
)

const (
	headerName = "x-store-name"
	headerTag  = "x-store-tag"
)

// outgoing attaches blob metadata to the request headers. Tags are sent as
// "key=value" entries in sorted key order.
func outgoing(ctx context.Context, meta storage.Metadata) context.Context {
	kv := make([]string, 0, 2+2*len(meta.KeyValues))
	if meta.Name != "" {
		kv = append(kv, headerName, meta.Name)
	}
	for _, k := range meta.Keys() {
		kv = append(kv, headerTag, k+"="+meta.KeyValues[k])
	}
	if len(kv) == 0 {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, kv...)
}

func incoming(ctx context.Context) storage.Metadata {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return storage.Metadata{}
	}
	var meta storage.Metadata
	if names := md.Get(headerName); len(names) > 0 {
		meta.Name = names[0]
	}
	for _, tag := range md.Get(headerTag) {
		k, v, ok := strings.Cut(tag, "=")
		if !ok || k == "" {
			continue
		}
		if meta.KeyValues == nil {
			meta.KeyValues = map[string]string{}
		}
		meta.KeyValues[k] = v
	}
	return meta
}
