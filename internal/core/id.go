package core

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

type SessionID string

type MessageID string

type PartID string

type PermissionID string

// IDs carry a UTC timestamp prefix so plain string comparison yields
// creation order. The store's ordering invariant depends on this. Message,
// part, and permission IDs are minted server-side and arrive over the
// wire; only session IDs are ever generated here.

func NewSessionID() SessionID {
	return SessionID("ses_" + timestamp() + "_" + randomSeed())
}

func timestamp() string {
	return time.Now().UTC().Format("20060102T150405.000000000")
}

func randomSeed() string {
	buffer := make([]byte, 6)
	_, _ = rand.Read(buffer)
	return hex.EncodeToString(buffer)
}
