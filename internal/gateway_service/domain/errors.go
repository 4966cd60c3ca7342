package domain

import "errors"

var (
	// ErrDuplicateSessionID indicates a session with the same id is already registered.
	ErrDuplicateSessionID = errors.New("session id already registered")
	// ErrUnknownSession indicates the referenced session is not registered.
	ErrUnknownSession = errors.New("unknown session")
	// ErrNoActiveSession indicates no current session is available and connected.
	ErrNoActiveSession = errors.New("no active session")
	// ErrSessionBusy indicates a dispatch run is already in flight on the session.
	ErrSessionBusy = errors.New("session busy with another dispatch run")

	// ErrEmptyMessage indicates a dispatch was requested with a blank template and no attachment.
	ErrEmptyMessage = errors.New("message template is empty")
	// ErrEmptyContactList indicates a dispatch was requested with no contacts.
	ErrEmptyContactList = errors.New("contact list is empty")

	// ErrRunNotFound indicates the referenced dispatch run does not exist.
	ErrRunNotFound = errors.New("dispatch run not found")
)
