package httpupload

import (
	"flag"
	"fmt"
	"time"

	"xdao.co/taskledger/storage"
	"xdao.co/taskledger/storage/casregistry"
)

var (
	flagURL     string
	flagGateway string
	flagTimeout time.Duration
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "upload",
		Description: "Remote taskledger upload endpoint (POST /api/upload)",
		Usage:       casregistry.UsageCLI,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagURL, "upload-url", "", "Upload endpoint base URL (for --backend=upload)")
			fs.StringVar(&flagGateway, "upload-gateway", "", "Gateway base URL for reads (for --backend=upload)")
			fs.DurationVar(&flagTimeout, "upload-timeout", 60*time.Second, "Per-request timeout (for --backend=upload)")
		},
		Open: func() (storage.Store, func() error, error) {
			return open(flagURL, flagGateway, flagTimeout)
		},
		OpenConfig: func(cfg map[string]string) (storage.Store, func() error, error) {
			timeout := 60 * time.Second
			if v := cfg["upload-timeout"]; v != "" {
				d, err := time.ParseDuration(v)
				if err != nil {
					return nil, nil, fmt.Errorf("upload-timeout: %w", err)
				}
				timeout = d
			}
			return open(cfg["upload-url"], cfg["upload-gateway"], timeout)
		},
	})
}

func open(url, gw string, timeout time.Duration) (storage.Store, func() error, error) {
	if url == "" {
		return nil, nil, fmt.Errorf("missing upload-url")
	}
	return New(url, gw, timeout), nil, nil
}
