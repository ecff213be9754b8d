package cipher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObfuscate(t *testing.T) {
	assert.Equal(t, "ENC:YWJjZGVmZ2hoZWxsbw==", Obfuscate("hello", "abcdefgh"))
	assert.Equal(t, "ENC:YWJjZGVmZ2hoZWxsbw==", Obfuscate("hello", "abcdefghijklmnop"), "only 8 characters of salt")
	assert.Equal(t, "", Obfuscate("", "abcdefgh"), "empty messages stay untagged")
	assert.Equal(t, "ENC:YWJjaGVsbG8gd29ybGQ=", Obfuscate("hello world", "abc"), "short key is used whole")
}

func TestObfuscate_InvalidInputFallsBack(t *testing.T) {
	bad := "caf\xff"

	_, err := Encode(bad, "abcdefgh")
	assert.ErrorIs(t, err, ErrEncode)
	assert.Equal(t, bad, Obfuscate(bad, "abcdefgh"))
}

func TestDeobfuscate(t *testing.T) {
	assert.Equal(t, "hello", Deobfuscate("ENC:YWJjZGVmZ2hoZWxsbw==", "abcdefgh"))
	assert.Equal(t, "¡hola señor!", Deobfuscate("ENC:YWJjZGVmZ2jCoWhvbGEgc2XDsW9yIQ==", "abcdefgh"))
}

func TestDeobfuscate_Passthrough(t *testing.T) {
	for _, s := range []string{"", "hello", "enc:lowercase", " ENC:leading space", "[ENC:]"} {
		out, err := Decode(s, "abcdefgh")
		require.NoError(t, err)
		assert.Equal(t, s, out)
		assert.Equal(t, s, Deobfuscate(s, "abcdefgh"))
	}
}

func TestDeobfuscate_Malformed(t *testing.T) {
	cases := map[string]string{
		"not base64":        "ENC:!!!notbase64!!!",
		"shorter than salt": "ENC:c2hvcnQ=",
		"empty payload":     "ENC:",
		"invalid utf-8":     "ENC:/w==",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(in, "abcdefgh")
			assert.ErrorIs(t, err, ErrDecode)
			assert.Equal(t, UndecryptableMessage, Deobfuscate(in, "abcdefgh"))
		})
	}
}

func TestDecode_Unpadded(t *testing.T) {
	cases := map[string]string{
		"ENC:YWJjZGVmZ2g":          "",
		"ENC:YWJjZGVmZ2g=":         "",
		"ENC:YWJjZGVmZ2hoZWxsbw":   "hello",
		"ENC:YWJjZGVmZ2hoZWxsbw==": "hello",
	}
	for in, want := range cases {
		out, err := Decode(in, "abcdefgh")
		require.NoError(t, err, in)
		assert.Equal(t, want, out, in)
	}
}

func TestRoundTrip(t *testing.T) {
	keys := []string{"abcdefgh", ConversationKey("alice", "bob"), "ключключключ"}
	messages := []string{"hello", "x", "ENC:looks tagged", "multi\nline\tmessage", "emoji 🚀 ok", "日本語のメッセージ"}

	for _, k := range keys {
		for _, m := range messages {
			enc := Obfuscate(m, k)
			require.True(t, IsObfuscated(enc))
			assert.Equal(t, m, Deobfuscate(enc, k), "key %q message %q", k, m)
		}
	}
}

func TestDecode_WrongKeyIsNotDetected(t *testing.T) {
	enc := Obfuscate("hello", "abcdefgh")

	out, err := Decode(enc, "zzzzzzzz")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}
