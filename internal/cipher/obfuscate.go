package cipher

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// Tag marks a string as an obfuscated payload.
	Tag = "ENC:"

	saltLen = 8

	// UndecryptableMessage replaces a tagged payload that cannot be decoded.
	UndecryptableMessage = "[Unable to decrypt message]"
)

var (
	ErrEncode = errors.New("cipher: cannot encode message")
	ErrDecode = errors.New("cipher: cannot decode message")
)

// IsObfuscated reports whether s carries the obfuscation tag.
func IsObfuscated(s string) bool {
	return strings.HasPrefix(s, Tag)
}

// Encode salts message with the first 8 characters of key, base64-encodes it
// and prefixes the tag. An empty message is returned as is.
func Encode(message, key string) (string, error) {
	if message == "" {
		return message, nil
	}
	if !utf8.ValidString(message) || !utf8.ValidString(key) {
		return "", fmt.Errorf("%w: invalid utf-8", ErrEncode)
	}
	payload := salt(key) + message
	return Tag + base64.StdEncoding.EncodeToString([]byte(payload)), nil
}

// Decode reverses Encode. Untagged input is returned unchanged.
//
// The salt is dropped without being compared to key, so decoding with the
// wrong key succeeds and yields the wrong text.
func Decode(s, key string) (string, error) {
	if !IsObfuscated(s) {
		return s, nil
	}
	raw, err := decodeBase64(strings.TrimPrefix(s, Tag))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w: invalid utf-8", ErrDecode)
	}
	text := string(raw)
	if utf8.RuneCountInString(text) < saltLen {
		return "", fmt.Errorf("%w: payload shorter than salt", ErrDecode)
	}
	return dropRunes(text, saltLen), nil
}

// decodeBase64 accepts standard base64 with or without trailing padding.
func decodeBase64(s string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return raw, nil
	}
	if unpadded, rerr := base64.RawStdEncoding.DecodeString(s); rerr == nil {
		return unpadded, nil
	}
	return nil, err
}

// Obfuscate is Encode falling back to the plaintext when encoding fails.
func Obfuscate(message, key string) string {
	out, err := Encode(message, key)
	if err != nil {
		return message
	}
	return out
}

// Deobfuscate is Decode falling back to UndecryptableMessage when decoding fails.
func Deobfuscate(s, key string) string {
	out, err := Decode(s, key)
	if err != nil {
		return UndecryptableMessage
	}
	return out
}

func salt(key string) string {
	if utf8.RuneCountInString(key) <= saltLen {
		return key
	}
	return key[:runeOffset(key, saltLen)]
}

func dropRunes(s string, n int) string {
	return s[runeOffset(s, n):]
}

// runeOffset returns the byte offset of the n-th rune in s, or len(s).
func runeOffset(s string, n int) int {
	i := 0
	for off := range s {
		if i == n {
			return off
		}
		i++
	}
	return len(s)
}
