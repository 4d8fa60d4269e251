package emailsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAddress(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", ""},
		{"alice@example.com", "alice@example.com"},
		{"  Alice@Example.COM ", "alice@example.com"},
		{`"Alice Smith" <Alice@Example.com>`, "alice@example.com"},
		{"Bob < bob@x.io >", "bob@x.io"},
		{"no-angle", "no-angle"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeAddress(tc.in), tc.in)
	}
}

func TestNormalizeAddress_Idempotent(t *testing.T) {
	for _, in := range []string{"Carol <CAROL@mail.com>", "dave@d.com", ""} {
		once := NormalizeAddress(in)
		assert.Equal(t, once, NormalizeAddress(once))
	}
}

func TestIsAddress(t *testing.T) {
	assert.True(t, IsAddress("me@mail.com"))
	for _, in := range []string{"", "no-angle", "undisclosed-recipients:;", "a@x.com, b@x.com", "@x.com", "me@"} {
		assert.False(t, IsAddress(in), in)
	}
}
