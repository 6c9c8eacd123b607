package casregistry

import "strings"

// Usage is a bit set of the program kinds that may open a backend.
// Backends are linked at build time: a package registers itself from init()
// and a binary enables it with a blank import.
type Usage uint8

const (
	// UsageCLI marks backends offered by short-lived tools such as cascli.
	UsageCLI Usage = 1 << iota
	// UsageDaemon marks backends a long-running server may hold open.
	UsageDaemon
)

func (u Usage) allows(want Usage) bool { return u&want != 0 }

func (u Usage) String() string {
	var parts []string
	if u&UsageCLI != 0 {
		parts = append(parts, "cli")
	}
	if u&UsageDaemon != 0 {
		parts = append(parts, "daemon")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}
