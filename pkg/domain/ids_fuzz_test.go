package domain

import (
	"testing"
	"unicode/utf8"
)

func seedIDs(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("{550e8400-e29b-41d4-a716-446655440000}")
	f.Add("urn:uuid:550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")
	f.Add(string([]byte{0xff, 0x00, 0x01}))
}

// checkParse asserts a parser never panics, never accepts the nil UUID and
// that whatever it accepts survives String and back.
func checkParse[T interface {
	comparable
	String() string
	IsNil() bool
}](t *testing.T, input string, parse func(string) (T, error)) {
	got, err := parse(input)
	if err != nil {
		return
	}
	if got.IsNil() {
		t.Fatalf("nil ID accepted from %q", input)
	}
	if !utf8.ValidString(input) {
		t.Fatalf("non-UTF8 input %q accepted", input)
	}
	again, err := parse(got.String())
	if err != nil || again != got {
		t.Fatalf("round trip of %q failed: %v", input, err)
	}
}

func FuzzParseSubjectID(f *testing.F) {
	seedIDs(f)
	f.Fuzz(func(t *testing.T, input string) { checkParse(t, input, ParseSubjectID) })
}

func FuzzParseSessionID(f *testing.F) {
	seedIDs(f)
	f.Fuzz(func(t *testing.T, input string) { checkParse(t, input, ParseSessionID) })
}
