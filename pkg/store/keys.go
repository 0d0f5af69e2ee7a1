package store

import "strings"

// Persisted key layout (stable contract if the medium is swapped):
// <namespace>.<actorID>.<id>. Namespaces keep queue checkpoints, session
// checkpoints and dead-letter records enumerable per actor.
const (
	NamespaceQueue   = "queue"
	NamespaceSession = "session"
	NamespaceDead    = "dead"
)

// QueueKey returns the storage key for a queued operation checkpoint.
func QueueKey(actorID, operationID string) string {
	return NamespaceQueue + "." + actorID + "." + operationID
}

// QueuePrefix returns the enumeration prefix for an actor's queue.
func QueuePrefix(actorID string) string {
	return NamespaceQueue + "." + actorID + "."
}

// SessionKey returns the storage key for a session checkpoint.
func SessionKey(actorID, sessionID string) string {
	return NamespaceSession + "." + actorID + "." + sessionID
}

// SessionPrefix returns the enumeration prefix for an actor's sessions.
func SessionPrefix(actorID string) string {
	return NamespaceSession + "." + actorID + "."
}

// DeadKey returns the storage key for a dead-letter record.
func DeadKey(actorID, operationID string) string {
	return NamespaceDead + "." + actorID + "." + operationID
}

// DeadPrefix returns the enumeration prefix for an actor's dead letters.
func DeadPrefix(actorID string) string {
	return NamespaceDead + "." + actorID + "."
}

// SplitKey breaks a storage key into namespace, actor and id. The id part
// may itself contain dots; only the first two separators are structural.
func SplitKey(key string) (namespace, actorID, id string, ok bool) {
	parts := strings.SplitN(key, ".", 3)
	if len(parts) != 3 {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}
