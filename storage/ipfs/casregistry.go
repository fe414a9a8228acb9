package ipfs

import (
	"flag"
	"strconv"

	"xdao.co/taskledger/storage"
	"xdao.co/taskledger/storage/casregistry"
)

var (
	flagBin  string
	flagPath string
	flagPin  bool
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "ipfs",
		Description: "Local Kubo repository via the ipfs CLI (raw CIDv1 blocks)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagBin, "ipfs-bin", "ipfs", "Path to the ipfs binary (for --backend=ipfs)")
			fs.StringVar(&flagPath, "ipfs-path", "", "IPFS_PATH override (for --backend=ipfs)")
			fs.BoolVar(&flagPin, "ipfs-pin", true, "Pin pushed blocks (for --backend=ipfs)")
		},
		Open: func() (storage.Store, func() error, error) {
			return New(Options{Bin: flagBin, RepoPath: flagPath, Pin: flagPin}), nil, nil
		},
		OpenConfig: func(cfg map[string]string) (storage.Store, func() error, error) {
			pin := true
			if v, ok := cfg["ipfs-pin"]; ok {
				b, err := strconv.ParseBool(v)
				if err != nil {
					return nil, nil, err
				}
				pin = b
			}
			return New(Options{Bin: cfg["ipfs-bin"], RepoPath: cfg["ipfs-path"], Pin: pin}), nil, nil
		},
	})
}
