package checksum

import (
	"strings"
	"testing"
)

func TestSum_MatchesReader(t *testing.T) {
	data := "# shard\n- [ ] task\n"
	got, err := Reader(strings.NewReader(data))
	if err != nil {
		t.Fatalf("Reader: %v", err)
	}
	if want := Sum([]byte(data)); got != want {
		t.Errorf("Reader = %q, want %q", got, want)
	}
}

func TestSum_Empty(t *testing.T) {
	const want = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := Sum(nil); got != want {
		t.Errorf("Sum(nil) = %q, want %q", got, want)
	}
}
