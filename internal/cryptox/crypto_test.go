package cryptox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeUsername(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain name kept", in: "alice", want: "alice"},
		{name: "dots dashes underscores kept", in: "a.b-c_d", want: "a.b-c_d"},
		// lower(base32(sha1("foo@example.com")))
		{name: "email hashed", in: "foo@example.com", want: "oz7hj2vxbaoedyfygyyfcejz2eycjftg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EncodeUsername(tt.in))
		})
	}
}

func TestEncodeUsername_HashedFormIsPlain(t *testing.T) {
	enc := EncodeUsername("user with spaces")
	assert.Len(t, enc, 32)
	assert.Equal(t, enc, EncodeUsername(enc), "encoding must be idempotent")
}

func TestStoreName(t *testing.T) {
	a := StoreName("alice", "secret")
	assert.True(t, strings.HasPrefix(a, "alice."))
	assert.Len(t, a, len("alice.")+16)

	assert.Equal(t, a, StoreName("alice", "secret"), "deterministic")
	assert.NotEqual(t, a, StoreName("alice", "Secret"), "password sensitive")
	assert.NotEqual(t, a, StoreName("bob", "secret"))
}

func TestStoreOwner(t *testing.T) {
	assert.Equal(t, "alice", StoreOwner(StoreName("alice", "pw")))
	assert.Equal(t, "bob", StoreOwner("bob"))
	assert.Equal(t, "j.doe", StoreOwner(StoreName("j.doe", "pw")))
}

func TestValidUsername(t *testing.T) {
	assert.True(t, ValidUsername("alice"))
	assert.True(t, ValidUsername("oz7hj2vxbaoedyfygyyfcejz2eycjftg"))
	assert.False(t, ValidUsername(""))
	assert.False(t, ValidUsername(".."))
	assert.False(t, ValidUsername("a/b"))
	assert.False(t, ValidUsername("foo@example.com"))
}
