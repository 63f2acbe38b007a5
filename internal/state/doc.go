// Package state provides the durable stores behind the dialogue
// engine, the deferred scheduler, and the player roster. Two backends
// implement the same interfaces: JSON files under the data directory
// (the default) and Postgres when a database URL is configured. The
// stores are the single source of truth; nothing above them caches
// authoritative state beyond one operation.
package state
