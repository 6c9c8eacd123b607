package sqlitecas

import (
	"flag"

	"xdao.co/sidecast/storage"
	"xdao.co/sidecast/storage/casregistry"
)

var flagPath string

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "sqlite",
		Description: "Single-file SQLite CAS (pure Go driver)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagPath, "sqlite-path", "", "SQLite database file (for --backend=sqlite)")
		},
		Open: func() (storage.CAS, func() error, error) {
			path, err := casregistry.Required("sqlite-path", flagPath)
			if err != nil {
				return nil, nil, err
			}
			cas, err := Open(path)
			if err != nil {
				return nil, nil, err
			}
			return cas, cas.Close, nil
		},
	})
}
