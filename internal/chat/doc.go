// Package chat implements the core of the messaging backend: the identity
// directory, the conversation store, the append-only message log, the
// reference-counted presence tracker, and the subscription router that fans
// events out to live sessions.
//
// The components are split across focused files so each concern stays small
// and independently testable. All shared state is guarded by the owning
// component; callers never touch it except through exported operations.
package chat
