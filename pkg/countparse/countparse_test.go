package countparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"1.2K", 1200},
		{"3.4M", 3400000},
		{"1,234", 1234},
		{"", 0},
		{"2B", 2_000_000_000},
		{"0", 0},
		{"  42  ", 42},
		{"not a number", 0},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Parse(c.in), "Parse(%q)", c.in)
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 42, 1234, 999999} {
		assert.Equal(t, n, Parse(Format(n)))
	}
}
