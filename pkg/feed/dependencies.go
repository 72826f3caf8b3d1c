package feed

// ServiceDependencies holds all the external services the relay needs to
// operate. It is built once at startup and passed to feedrelay.New.
type ServiceDependencies struct {
	// --- Upstream ---
	Source EventSource

	// --- Backend stores ---
	Sessions SessionStore
	Decoder  SessionDecoder
	Follows  FollowStore

	// Closers run on shutdown, in order, after the servers have stopped.
	Closers []func() error
}
