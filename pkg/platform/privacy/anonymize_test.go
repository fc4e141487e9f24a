package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnonymizeIP(t *testing.T) {
	cases := map[string]string{
		"203.0.113.47":             "203.0.113.0",
		"::ffff:10.0.0.9":          "10.0.0.0",
		"2001:db8:85a3::8a2e:7334": "2001:db8:85a3::",
		"fe80::1%eth0":             "fe80::",
		"":                         "unknown",
		"unknown":                  "unknown",
		"10.0.0":                   "invalid",
	}
	for in, want := range cases {
		assert.Equal(t, want, AnonymizeIP(in), in)
	}
}
