package main

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// Room codes are short enough to read off a screen, so the charset skips
// glyphs that are easy to confuse (0/O, 1/I).
const (
	roomCodeChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	roomCodeLength = 4

	tokenChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	tokenLength = 32
)

// randomString draws n characters from charset via crypto/rand, using
// rejection sampling to keep the distribution uniform.
func randomString(charset string, n int) string {
	max := byte(255 - (256 % len(charset)))

	out := make([]byte, 0, n)
	buf := make([]byte, n*2)

	for {
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}

		for _, b := range buf {
			if b <= max {
				out = append(out, charset[int(b)%len(charset)])
				if len(out) == n {
					return string(out)
				}
			}
		}
	}
}

func newRoomCode() string {
	return randomString(roomCodeChars, roomCodeLength)
}

func newToken() string {
	return randomString(tokenChars, tokenLength)
}

func newPlayerID() string {
	return uuid.NewString()
}

// newAnswerID mints an opaque id for one entry of an answer set. Answer ids
// share nothing with player ids, so handing them to voters leaks no authorship.
func newAnswerID() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}
	return "a-" + hex.EncodeToString(buf)
}
