package game

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strconv"
)

const (
	MinCrashPoint = 1.00
	MaxCrashPoint = 100.00
)

// GenerateSeed creates a cryptographically secure random seed.
func GenerateSeed() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// DeriveCrashPoint computes the commitment hash and crash point for a round.
// The hash is SHA256 over the seed concatenated with the decimal round id,
// published before the round runs. The crash point is derived from the first
// 16 hex characters of that same hash, so revealing the seed after the crash
// lets anyone recompute both and check they match.
func DeriveCrashPoint(seed string, roundID int64) (hash string, crashPoint float64) {
	sum := sha256.Sum256([]byte(seed + strconv.FormatInt(roundID, 10)))
	hash = hex.EncodeToString(sum[:])

	const maxUint64 = 18446744073709551616.0 // 2^64

	intVal, _ := strconv.ParseUint(hash[:16], 16, 64)
	r := float64(intVal) / maxUint64 // uniform in [0,1)

	return hash, mapToCrashPoint(r)
}

// mapToCrashPoint maps a uniform value in [0,1) onto the crash distribution:
// crash = floor((1/(1-r)) * 100) / 100, clamped to [MinCrashPoint, MaxCrashPoint].
// r == 0 would put the singularity at 1/1, so it maps straight to the cap.
func mapToCrashPoint(r float64) float64 {
	if r == 0 {
		return MaxCrashPoint
	}
	crash := math.Floor((1/(1-r))*100) / 100
	if crash < MinCrashPoint {
		return MinCrashPoint
	}
	if crash > MaxCrashPoint {
		return MaxCrashPoint
	}
	return crash
}

// VerifyCrashPoint recomputes a round's outcome from a revealed seed and
// reports whether it matches the claimed crash point.
func VerifyCrashPoint(seed string, roundID int64, claimedHash string, claimedCrashPoint float64) bool {
	hash, crashPoint := DeriveCrashPoint(seed, roundID)
	if claimedHash != "" && hash != claimedHash {
		return false
	}
	return math.Abs(crashPoint-claimedCrashPoint) < 0.001
}
