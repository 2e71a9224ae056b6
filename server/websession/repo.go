package websession

import "time"

// Session binds one browser to one credential row in the token store. It is
// the only per-session state the service keeps; tokens themselves stay in
// the store.
type Session struct {
	CredentialID int64
	CreatedAt    time.Time
}

type Repo interface {
	Upsert(sessionID string, session Session) error
	Get(sessionID string) (Session, error)
	Delete(sessionID string) error
}
