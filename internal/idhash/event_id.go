package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ComputeEventID computes a deterministic chain event id using SHA256.
// Formula: SHA256(chain_id|tx_hash|log_index)
// Returns hex-encoded hash (64 characters).
func ComputeEventID(chainID, txHash string, logIndex uint64) string {
	data := fmt.Sprintf("%s|%s|%d",
		chainID,
		NormalizeTxHash(txHash),
		logIndex,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// DedupKey returns the marker key for one physical log.
// Format: processed:{chain_id}:{tx_hash}:{log_index}
func DedupKey(chainID, txHash string, logIndex uint64) string {
	return fmt.Sprintf("processed:%s:%s:%d", chainID, NormalizeTxHash(txHash), logIndex)
}

// NormalizeTxHash lower-cases 0x-prefixed hex hashes so that the same EVM
// transaction always maps to one key. Base58 digests are case-sensitive and
// returned unchanged.
func NormalizeTxHash(txHash string) string {
	if strings.HasPrefix(txHash, "0x") || strings.HasPrefix(txHash, "0X") {
		return "0x" + strings.ToLower(txHash[2:])
	}
	return txHash
}
