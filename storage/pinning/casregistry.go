package pinning

import (
	"flag"
	"fmt"
	"os"
	"time"

	"xdao.co/taskledger/storage"
	"xdao.co/taskledger/storage/casregistry"
)

var (
	flagEndpoint string
	flagGateway  string
	flagTimeout  time.Duration
)

// Credentials are read from PINATA_API_KEY/PINATA_API_SECRET or PINATA_JWT,
// never from flags or config files.
func credentials() (key, secret, jwt string) {
	return os.Getenv("PINATA_API_KEY"), os.Getenv("PINATA_API_SECRET"), os.Getenv("PINATA_JWT")
}

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "pinning",
		Description: "Pinata-compatible pinning service (credentials from PINATA_* env)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagEndpoint, "pinning-endpoint", DefaultEndpoint, "Pinning service base URL (for --backend=pinning)")
			fs.StringVar(&flagGateway, "pinning-gateway", "", "Gateway base URL for reads (for --backend=pinning)")
			fs.DurationVar(&flagTimeout, "pinning-timeout", 60*time.Second, "Per-request timeout (for --backend=pinning)")
		},
		Open: func() (storage.Store, func() error, error) {
			return open(flagEndpoint, flagGateway, flagTimeout)
		},
		OpenConfig: func(cfg map[string]string) (storage.Store, func() error, error) {
			timeout := 60 * time.Second
			if v := cfg["pinning-timeout"]; v != "" {
				d, err := time.ParseDuration(v)
				if err != nil {
					return nil, nil, fmt.Errorf("pinning-timeout: %w", err)
				}
				timeout = d
			}
			return open(cfg["pinning-endpoint"], cfg["pinning-gateway"], timeout)
		},
	})
}

func open(endpoint, gw string, timeout time.Duration) (storage.Store, func() error, error) {
	key, secret, jwt := credentials()
	if jwt == "" && (key == "" || secret == "") {
		return nil, nil, fmt.Errorf("pinning: set PINATA_JWT or PINATA_API_KEY and PINATA_API_SECRET")
	}
	return New(Options{Endpoint: endpoint, APIKey: key, APISecret: secret, JWT: jwt, Gateway: gw, Timeout: timeout}), nil, nil
}
