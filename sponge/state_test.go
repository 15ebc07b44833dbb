package sponge

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestMarshalRoundTrip checks that State survives a Marshal/Unmarshal
// cycle precisely enough to keep squeezing identical keystream — the
// property backup/restore depends on.
func TestMarshalRoundTrip(t *testing.T) {
	require := require.New(t)

	s := New()
	s.Absorb(bytes.Repeat([]byte("some absorbed content that spans more than one rate block "), 3))
	s.Commit()
	want := s.Squeeze(64)

	s2 := New()
	s2.Absorb(bytes.Repeat([]byte("some absorbed content that spans more than one rate block "), 3))
	s2.Commit()

	buf := s2.Marshal()
	require.Len(buf, MarshalSize)

	restored, err := UnmarshalState(buf)
	require.NoError(err)

	got := restored.Squeeze(64)
	require.True(bytes.Equal(want, got), "restored state must squeeze identical keystream")
}

func TestUnmarshalStateRejectsWrongLength(t *testing.T) {
	require := require.New(t)
	_, err := UnmarshalState(make([]byte, MarshalSize-1))
	require.Error(err)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	require := require.New(t)

	key := []byte("a shared secret key")
	plaintext := []byte("the quick brown fox jumps over the lazy dog, several times over")

	enc := New()
	enc.Absorb(key)
	enc.Commit()
	ciphertext := enc.Encrypt(plaintext)

	dec := New()
	dec.Absorb(key)
	dec.Commit()
	got := dec.Decrypt(ciphertext)

	require.Equal(plaintext, got)
}
