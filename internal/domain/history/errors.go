package history

import "errors"

// ErrHistoryUnavailable wraps failures reading attempt history.
var ErrHistoryUnavailable = errors.New("assignment history unavailable")
