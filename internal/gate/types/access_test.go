package types_test

import (
	"testing"

	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/types"
)

func TestNormalizeCode(t *testing.T) {
	cases := map[string]string{
		"a1:b2:c3:d4":     "A1:B2:C3:D4",
		"A1:B2:C3:D4":     "A1:B2:C3:D4",
		"  e5:f6:g7:h8\t": "E5:F6:G7:H8",
		"":                "",
		"   ":             "",
	}
	for in, want := range cases {
		if got := types.NormalizeCode(in); got != want {
			t.Errorf("NormalizeCode(%q) = %q, want %q", in, got, want)
		}
	}
}
