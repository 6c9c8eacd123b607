package ipfs

import (
	"flag"
	"os"

	"xdao.co/sidecast/storage"
	"xdao.co/sidecast/storage/casregistry"
)

var (
	flagBin  string
	flagPath string
	flagPin  bool
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "ipfs",
		Description: "Local Kubo repo via the ipfs CLI (offline)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagBin, "ipfs-bin", "ipfs", "ipfs binary (for --backend=ipfs)")
			fs.StringVar(&flagPath, "ipfs-path", "", "IPFS_PATH repo directory (for --backend=ipfs); empty uses the environment")
			fs.BoolVar(&flagPin, "pin", false, "Pin blocks on put (for --backend=ipfs)")
		},
		Open: func() (storage.CAS, func() error, error) {
			var env []string
			if flagPath != "" {
				env = append(os.Environ(), "IPFS_PATH="+flagPath)
			}
			return New(Options{Bin: flagBin, Env: env, Pin: flagPin}), nil, nil
		},
	})
}
