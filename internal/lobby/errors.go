// internal/lobby/errors.go
package lobby

import "fmt"

// ClientError is a problem caused by the client's request. Its message is shown to the
// user; a fatal one also ends the connection.
type ClientError struct {
	Message string
	Fatal   bool
}

func (e *ClientError) Error() string {
	if e.Fatal {
		return fmt.Sprintf("fatal client error: %s", e.Message)
	}
	return fmt.Sprintf("client error: %s", e.Message)
}

func clientErr(format string, args ...interface{}) *ClientError {
	return &ClientError{Message: fmt.Sprintf(format, args...)}
}
