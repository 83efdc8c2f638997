package notify

import (
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// PermanentError marks a delivery failure that retrying cannot fix, such as
// a recipient who blocked the bot. The dispatcher marks the intent sent so
// it never loops on an undeliverable message.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent delivery failure: %v", e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// IsPermanent reports whether the delivery error is not worth retrying.
// Anything unclassified counts as transient and stays unsent for the sweep.
func IsPermanent(err error) bool {
	var perm *PermanentError
	return errors.As(err, &perm)
}

// classify wraps Telegram API failures that retrying cannot fix. 403 means
// the user blocked the bot; 400 covers deleted accounts and bad chat ids.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 400, 403:
			return &PermanentError{Err: err}
		}
	}
	return err
}
