package diag

import "testing"

func TestParseBootArgsSplitsKeyValueTokens(t *testing.T) {
	got := ParseBootArgs(`consoleLogo=off simdSmokeTest=on quiet`)

	want := map[string]string{
		"consoleLogo":   "off",
		"simdSmokeTest": "on",
		"quiet":         "",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d tokens; got %d (%v)", len(want), len(got), got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("key %q: expected %q; got %q", k, v, got[k])
		}
	}
}

func TestParseBootArgsHandlesQuotedValues(t *testing.T) {
	got := ParseBootArgs(`label="two words"`)
	if got["label"] != "two words" {
		t.Fatalf("expected quoted value to survive splitting; got %q", got["label"])
	}
}
