package client

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	mrand "math/rand/v2"
)

var usernamePrefixes = []string{
	"cipher", "phantom", "shadow", "ghost", "crypto", "stealth", "ninja", "viper",
	"raven", "falcon", "storm", "matrix", "nexus", "void", "echo", "omega",
	"alpha", "beta", "gamma", "delta", "sigma", "theta", "zero", "one",
	"binary", "hex", "byte", "node", "core", "flux", "dark", "black",
	"cyber", "neon", "pulse", "spark", "bolt", "flash", "swift", "quick",
}

// GenerateUsername returns a handle such as "raven#0412".
func GenerateUsername() string {
	prefix := usernamePrefixes[mrand.IntN(len(usernamePrefixes))]
	return fmt.Sprintf("%s#%04d", prefix, mrand.IntN(9999)+1)
}

// GenerateSessionID returns 8 lowercase hex characters.
func GenerateSessionID() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
