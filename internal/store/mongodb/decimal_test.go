package mongodb

import (
	"math/big"
	"strings"
	"testing"
)

func TestDecimal128FromBig(t *testing.T) {
	tests := []struct {
		name  string
		value string
		ok    bool
	}{
		{"zero", "0", true},
		{"one eth in wei", "1000000000000000000", true},
		{"34 digits", strings.Repeat("9", 34), true},
		{"negative 34 digits", "-" + strings.Repeat("9", 34), true},
		{"35 digits", "1" + strings.Repeat("0", 34), false},
		{"negative 35 digits", "-1" + strings.Repeat("0", 34), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v, ok := new(big.Int).SetString(tc.value, 10)
			if !ok {
				t.Fatalf("bad test input %q", tc.value)
			}

			d, err := decimal128FromBig(v)
			if tc.ok {
				if err != nil {
					t.Fatalf("decimal128FromBig(%s) failed: %v", tc.value, err)
				}
				// Round-trips exactly; ParseDecimal128 would round silently
				// beyond the significand capacity.
				if d.String() != tc.value {
					t.Errorf("stored %s, want %s", d.String(), tc.value)
				}
			} else if err == nil {
				t.Errorf("decimal128FromBig(%s) should be rejected, stored %s", tc.value, d.String())
			}
		})
	}
}
