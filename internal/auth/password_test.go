package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// testArgon2Params keeps hashing fast in tests
var testArgon2Params = Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

func TestArgon2Hasher_RoundTrip(t *testing.T) {
	h := NewArgon2Hasher(testArgon2Params)

	encoded, err := h.Hash("Abcd12!@")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=8192,t=1,p=1$"))

	ok, err := h.Verify("Abcd12!@", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("Abcd12!#", encoded)
	require.NoError(t, err)
	assert.False(t, ok)

	other, err := h.Hash("Abcd12!@")
	require.NoError(t, err)
	assert.NotEqual(t, encoded, other, "salt must differ per hash")
}

func TestArgon2Hasher_RejectsMalformed(t *testing.T) {
	h := NewArgon2Hasher(testArgon2Params)

	for _, encoded := range []string{
		"",
		"plain",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=x,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=1$!!$aGFzaA",
	} {
		ok, err := h.Verify("Abcd12!@", encoded)
		assert.Error(t, err, encoded)
		assert.False(t, ok)
	}
}

func TestBcryptHasher_RoundTrip(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	encoded, err := h.Hash("Abcd12!@")
	require.NoError(t, err)

	ok, err := h.Verify("Abcd12!@", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("wrong", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewBcryptHasher_ClampsCost(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(0).cost)
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(99).cost)
}

func TestMultiHasher(t *testing.T) {
	argonFirst, err := NewMultiHasher(HasherArgon2id, testArgon2Params, bcrypt.MinCost)
	require.NoError(t, err)
	bcryptFirst, err := NewMultiHasher(HasherBcrypt, testArgon2Params, bcrypt.MinCost)
	require.NoError(t, err)

	argonHash, err := argonFirst.Hash("Abcd12!@")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(argonHash, "$argon2id$"))

	bcryptHash, err := bcryptFirst.Hash("Abcd12!@")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(bcryptHash, "$2a$"))

	for _, h := range []*MultiHasher{argonFirst, bcryptFirst} {
		for _, encoded := range []string{argonHash, bcryptHash} {
			ok, err := h.Verify("Abcd12!@", encoded)
			require.NoError(t, err)
			assert.True(t, ok)
		}
	}

	_, err = argonFirst.Verify("Abcd12!@", "$1$md5crypt")
	assert.ErrorIs(t, err, ErrUnsupportedHash)

	_, err = NewMultiHasher("scrypt", testArgon2Params, bcrypt.MinCost)
	assert.Error(t, err)
}
