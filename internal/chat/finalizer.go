package chat

import (
	"sync"

	"github.com/ent0n29/chatrelay/internal/session"
)

// finalizer records the assistant reply for one request. Only the first call
// has any effect.
type finalizer struct {
	once      sync.Once
	store     session.Store
	sessionID string
	done      bool
}

func newFinalizer(store session.Store, sessionID string) *finalizer {
	return &finalizer{store: store, sessionID: sessionID}
}

func (f *finalizer) Finalize(text string) {
	f.once.Do(func() {
		f.store.AppendTurn(f.sessionID, session.Turn{Role: session.RoleAssistant, Content: text})
		f.done = true
	})
}

func (f *finalizer) Finalized() bool { return f.done }
