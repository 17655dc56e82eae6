package relay

import "errors"

var (
	ErrMissingUserID    = errors.New("missing userId")
	ErrMissingTarget    = errors.New("missing target participant")
	ErrMissingRoom      = errors.New("missing roomId")
	ErrRecipientOffline = errors.New("recipient offline")
)
