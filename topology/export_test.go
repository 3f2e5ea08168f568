package topology

// BaseDone exposes the context every identity of s derives from.
func BaseDone(s *Session) <-chan struct{} { return s.baseCtx.Done() }
