package password

import (
	"context"
	"encoding/hex"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams() Params {
	return Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16}
}

func TestHashVerifyRoundTrip(t *testing.T) {
	h := NewHasher(testParams())

	for _, p := range []string{"adminq", "x", "pässwörd", strings.Repeat("long", 64)} {
		record := h.Hash(p)
		assert.True(t, h.Verify(p, record), "password %q should verify", p)
		assert.True(t, h.WellFormed(record))
	}
}

func TestVerifyRejectsOtherPassword(t *testing.T) {
	h := NewHasher(testParams())
	record := h.Hash("correct horse")

	for _, p := range []string{"correct hors", "Correct horse", "correct horse ", "", "xorrect horse"} {
		assert.False(t, h.Verify(p, record), "password %q must not verify", p)
	}
}

func TestRecordShape(t *testing.T) {
	h := NewHasher(testParams())
	record := h.Hash("secret")

	parts := strings.Split(record, Delimiter)
	require.Len(t, parts, 2)

	key, err := hex.DecodeString(parts[0])
	require.NoError(t, err)
	assert.Len(t, key, 32)

	salt, err := hex.DecodeString(parts[1])
	require.NoError(t, err)
	assert.Len(t, salt, 16)
}

func TestSaltIsUniquePerHash(t *testing.T) {
	h := NewHasher(testParams())
	a := h.Hash("same")
	b := h.Hash("same")

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, strings.Split(a, Delimiter)[1], strings.Split(b, Delimiter)[1])
}

func TestVerifyMalformedFailsClosed(t *testing.T) {
	h := NewHasher(testParams())
	valid := h.Hash("secret")
	digest, salt, _ := strings.Cut(valid, Delimiter)

	malformed := []string{
		"",
		".",
		digest,
		digest + Delimiter,
		Delimiter + salt,
		digest + Delimiter + salt + Delimiter + salt,
		"zz" + digest[2:] + Delimiter + salt,
		digest[:10] + Delimiter + salt,
		digest + Delimiter + "not-hex",
		digest + ":" + salt,
		"$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$a2V5",
	}
	for _, m := range malformed {
		assert.NotPanics(t, func() {
			assert.False(t, h.Verify("secret", m), "record %q must not verify", m)
		})
		assert.False(t, h.WellFormed(m), "record %q must be malformed", m)
	}
}

func TestPoolHashAndVerify(t *testing.T) {
	pool := NewPool(NewHasher(testParams()), 2)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			record, err := pool.Hash(ctx, "adminq")
			if err != nil {
				t.Errorf("hash failed: %v", err)
				return
			}
			ok, err := pool.Verify(ctx, "adminq", record)
			if err != nil || !ok {
				t.Errorf("verify failed: ok=%v err=%v", ok, err)
			}
		}()
	}
	wg.Wait()
}

func TestPoolHonoursCancellation(t *testing.T) {
	pool := NewPool(NewHasher(testParams()), 1)

	// Occupy the only slot.
	require.NoError(t, pool.sem.Acquire(context.Background(), 1))
	defer pool.sem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := pool.Hash(ctx, "secret")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	ok, err := pool.Verify(ctx, "secret", "a.b")
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPoolRejectsDoneContextWithFreeSlots(t *testing.T) {
	pool := NewPool(NewHasher(testParams()), 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pool.Hash(ctx, "secret")
	assert.ErrorIs(t, err, context.Canceled)
}
