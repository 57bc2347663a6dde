package chat

import "errors"

var (
	// ErrNameTaken is returned when a display name is already held by a live session.
	ErrNameTaken = errors.New("chat: username is already taken")

	// ErrNameInvalid is returned when a display name is empty, too long, or badly formed.
	ErrNameInvalid = errors.New("chat: username is invalid")

	// ErrOutboxClosed is returned when writing to an outbox whose session has ended.
	ErrOutboxClosed = errors.New("chat: outbox is closed")

	// ErrAddressResolution is returned by `\ipaddress` when the local address
	// cannot be determined.
	ErrAddressResolution = errors.New("chat: address resolution failed")

	// ErrMalformedPrivate is returned for a private message line without a body.
	ErrMalformedPrivate = errors.New("chat: malformed private message")
)
