package localfs

import (
	"flag"

	"xdao.co/sidecast/storage"
	"xdao.co/sidecast/storage/casregistry"
)

var flagDir string

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "localfs",
		Description: "Local filesystem CAS (directory)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagDir, "localfs-dir", "", "LocalFS CAS directory (for --backend=localfs)")
		},
		Open: func() (storage.CAS, func() error, error) {
			dir, err := casregistry.Required("localfs-dir", flagDir)
			if err != nil {
				return nil, nil, err
			}
			cas, err := New(dir)
			if err != nil {
				return nil, nil, err
			}
			return cas, nil, nil
		},
	})
}
