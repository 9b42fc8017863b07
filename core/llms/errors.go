package llms

import (
	"errors"
	"fmt"
)

var (
	ErrMissingAPIKey = errors.New("api key not configured")
	ErrEmptyResponse = errors.New("no response candidates")
)

// ConfigError is returned when a client cannot make a request at all, it is
// always reported before any network call is attempted.
type ConfigError struct {
	Provider string
	Err      error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s configuration error: %v", e.Provider, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NetworkError is returned when the request was attempted but the backend
// failed to produce a usable response.
type NetworkError struct {
	Provider   string
	StatusCode int
	Status     string
	Message    string
	Err        error
}

func (e *NetworkError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s error: %d %s: %s", e.Provider, e.StatusCode, e.Status, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s error: %d %s", e.Provider, e.StatusCode, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s error: %v", e.Provider, e.Err)
	}
	return e.Provider + " error"
}

func (e *NetworkError) Unwrap() error { return e.Err }

func IsConfigError(err error) bool {
	var configErr *ConfigError
	return errors.As(err, &configErr)
}
