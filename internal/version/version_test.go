package appversion_test

import (
	"runtime"
	"strings"
	"testing"

	appversion "github.com/dantte-lp/regorus/internal/version"
)

func TestFull(t *testing.T) {
	t.Parallel()

	out := appversion.Full("regorusd")

	for _, want := range []string{"regorusd dev", "commit:  unknown", "go:      " + runtime.Version()} {
		if !strings.Contains(out, want) {
			t.Errorf("Full() = %q, missing %q", out, want)
		}
	}
}

func TestGet(t *testing.T) {
	t.Parallel()

	info := appversion.Get("regorusctl")
	if info.Binary != "regorusctl" || info.Version != appversion.Version {
		t.Errorf("Get() = %+v, want binary regorusctl version %s", info, appversion.Version)
	}
}
