package identity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-service/pkg/config"
)

func testBcrypt() *PasswordHasher {
	return NewPasswordHasher(config.PasswordConfig{Hasher: config.HasherBcrypt, BcryptCost: 4})
}

func testArgon2id() *PasswordHasher {
	return NewPasswordHasher(config.PasswordConfig{
		Hasher:            config.HasherArgon2id,
		Argon2MemoryKB:    1024,
		Argon2Iterations:  1,
		Argon2Parallelism: 1,
	})
}

func TestPasswordHasher_RoundTrip(t *testing.T) {
	for name, h := range map[string]*PasswordHasher{"bcrypt": testBcrypt(), "argon2id": testArgon2id()} {
		t.Run(name, func(t *testing.T) {
			encoded, err := h.Hash("correct horse")
			require.NoError(t, err)
			assert.NotContains(t, encoded, "correct horse")

			ok, err := h.Verify(encoded, "correct horse")
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = h.Verify(encoded, "wrong horse")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestPasswordHasher_SaltsEveryHash(t *testing.T) {
	h := testArgon2id()
	a, err := h.Hash("same")
	require.NoError(t, err)
	b, err := h.Hash("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestPasswordHasher_VerifiesEitherFamily(t *testing.T) {
	fromBcrypt, err := testBcrypt().Hash("pw-12345")
	require.NoError(t, err)
	fromArgon, err := testArgon2id().Hash("pw-12345")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(fromArgon, "$argon2id$v=19$m=1024,t=1,p=1$"))

	// switching the configured KDF keeps old hashes valid
	for _, h := range []*PasswordHasher{testBcrypt(), testArgon2id()} {
		ok, err := h.Verify(fromBcrypt, "pw-12345")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = h.Verify(fromArgon, "pw-12345")
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestPasswordHasher_RejectsPlaintext(t *testing.T) {
	h := testBcrypt()
	for _, stored := range []string{"hunter22", "", "$argon2id$garbage", "$2a$broken"} {
		ok, _ := h.Verify(stored, stored)
		assert.False(t, ok, stored)
	}
}

func TestDecodeArgon2id(t *testing.T) {
	_, _, _, err := decodeArgon2id("$argon2id$v=19$m=0,t=1,p=1$c2FsdA$a2V5")
	assert.Error(t, err)

	_, _, _, err = decodeArgon2id("$argon2id$v=18$m=1024,t=1,p=1$c2FsdA$a2V5")
	assert.Error(t, err)

	p, salt, key, err := decodeArgon2id("$argon2id$v=19$m=1024,t=2,p=1$c2FsdA$a2V5")
	require.NoError(t, err)
	assert.Equal(t, uint32(1024), p.memory)
	assert.Equal(t, uint32(2), p.iterations)
	assert.Equal(t, []byte("salt"), salt)
	assert.Equal(t, []byte("key"), key)
	assert.Equal(t, uint32(3), p.keyLength)
}

func TestNewPasswordHasher_ClampsCost(t *testing.T) {
	assert.Equal(t, 4, NewPasswordHasher(config.PasswordConfig{BcryptCost: 1}).bcryptCost)
	assert.Equal(t, 31, NewPasswordHasher(config.PasswordConfig{BcryptCost: 99}).bcryptCost)
	assert.Equal(t, 10, NewPasswordHasher(config.PasswordConfig{}).bcryptCost)
}

func TestPasswordHasher_Burn(t *testing.T) {
	h := testBcrypt()
	h.Burn("anything")
	h.Burn("again")
	assert.NotEmpty(t, h.dummyHash)
}
