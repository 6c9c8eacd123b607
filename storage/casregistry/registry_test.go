package casregistry

import (
	"errors"
	"flag"
	"slices"
	"strings"
	"testing"

	"xdao.co/sidecast/storage"
	"xdao.co/sidecast/storage/memory"
)

var testLabel string

func registerTestBackend(t *testing.T, name string, usage Usage) {
	t.Helper()
	err := Register(Backend{
		Name:        name,
		Description: "test backend",
		Usage:       usage,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&testLabel, "test-label", "default", "label")
		},
		Open: func() (storage.CAS, func() error, error) {
			return memory.New(), nil, nil
		},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	t.Cleanup(func() {
		mu.Lock()
		delete(backends, name)
		mu.Unlock()
	})
}

func TestRegister_Validates(t *testing.T) {
	cases := []Backend{
		{},
		{Name: "x"},
		{Name: "x", RegisterFlags: func(*flag.FlagSet) {}},
		{Name: "x", RegisterFlags: func(*flag.FlagSet) {}, Open: func() (storage.CAS, func() error, error) { return nil, nil, nil }},
	}
	for i, b := range cases {
		if err := Register(b); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestRegister_RejectsDuplicate(t *testing.T) {
	registerTestBackend(t, "test-dup", UsageCLI)
	err := Register(Backend{
		Name:          "test-dup",
		Usage:         UsageCLI,
		RegisterFlags: func(*flag.FlagSet) {},
		Open:          func() (storage.CAS, func() error, error) { return nil, nil, nil },
	})
	if err == nil || !strings.Contains(err.Error(), "already registered") {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestNames_FiltersByUsage(t *testing.T) {
	registerTestBackend(t, "test-cli-only", UsageCLI)
	registerTestBackend(t, "test-daemon-only", UsageDaemon)

	cli := Names(UsageCLI)
	if !slices.Contains(cli, "test-cli-only") || slices.Contains(cli, "test-daemon-only") {
		t.Fatalf("Names(UsageCLI) = %v", cli)
	}
	if !slices.IsSorted(cli) {
		t.Fatalf("Names not sorted: %v", cli)
	}
}

func TestOpen_UnknownAndUsage(t *testing.T) {
	registerTestBackend(t, "test-cli", UsageCLI)
	if _, _, err := Open("test-missing", UsageCLI); !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend, got %v", err)
	}
	if _, _, err := Open("test-cli", UsageDaemon); err == nil {
		t.Fatalf("expected usage error")
	}
	cas, _, err := Open("test-cli", UsageCLI)
	if err != nil || cas == nil {
		t.Fatalf("Open: %v", err)
	}
}

func TestOpenWithConfig_AppliesKeys(t *testing.T) {
	registerTestBackend(t, "test-config", UsageCLI|UsageDaemon)

	if _, _, err := OpenWithConfig("test-config", UsageDaemon, map[string]string{"test-label": "custom"}); err != nil {
		t.Fatalf("OpenWithConfig: %v", err)
	}
	if testLabel != "custom" {
		t.Fatalf("label: got %q want custom", testLabel)
	}

	// Keys not set fall back to the flag default.
	if _, _, err := OpenWithConfig("test-config", UsageDaemon, nil); err != nil {
		t.Fatalf("OpenWithConfig: %v", err)
	}
	if testLabel != "default" {
		t.Fatalf("label: got %q want default", testLabel)
	}
}

func TestOpenWithConfig_RejectsUnknownKey(t *testing.T) {
	registerTestBackend(t, "test-keys", UsageCLI)
	_, _, err := OpenWithConfig("test-keys", UsageCLI, map[string]string{"nope": "1"})
	if err == nil || !strings.Contains(err.Error(), "unknown config key") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestUsage_String(t *testing.T) {
	cases := map[Usage]string{
		0:                      "none",
		UsageCLI:               "cli",
		UsageDaemon:            "daemon",
		UsageCLI | UsageDaemon: "cli|daemon",
	}
	for u, want := range cases {
		if got := u.String(); got != want {
			t.Fatalf("%d: got %q want %q", u, got, want)
		}
	}
}

func TestRequired(t *testing.T) {
	if _, err := Required("localfs-dir", "  "); err == nil || !strings.Contains(err.Error(), "--localfs-dir") {
		t.Fatalf("expected missing flag error, got %v", err)
	}
	if v, err := Required("localfs-dir", " /tmp/x "); err != nil || v != "/tmp/x" {
		t.Fatalf("Required: %q %v", v, err)
	}
}
