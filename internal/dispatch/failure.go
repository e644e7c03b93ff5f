package dispatch

import (
	"errors"
	"fmt"

	"github.com/Tyrowin/chatgateway/internal/store"
)

var (
	// ErrUnauthenticated is returned by Handle when the connection failed or
	// skipped authentication. The transport must close.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrClosed is returned for a session that has already been disconnected.
	ErrClosed = errors.New("session closed")
)

// Kind classifies why an inbound event did not take effect.
type Kind int

const (
	// KindAuthentication ends the connection.
	KindAuthentication Kind = iota + 1
	// KindValidation covers missing fields and failed membership or
	// ownership checks. The event is dropped without a reply.
	KindValidation
	// KindPersistence means a store call failed; nothing is broadcast.
	KindPersistence
	// KindTransport means a delivery to one connection failed.
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindValidation:
		return "validation"
	case KindPersistence:
		return "persistence"
	case KindTransport:
		return "transport"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Failure is the error returned by event handlers.
type Failure struct {
	Kind Kind
	Err  error
}

func (f *Failure) Error() string {
	return f.Kind.String() + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func validation(err error) error {
	return &Failure{Kind: KindValidation, Err: err}
}

func persistence(err error) error {
	return &Failure{Kind: KindPersistence, Err: err}
}

// fromStore maps store sentinels that describe the caller's request to
// validation failures; anything else is a persistence failure.
func fromStore(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) ||
		errors.Is(err, store.ErrNotMember) ||
		errors.Is(err, store.ErrInvalidParent) {
		return validation(err)
	}
	return persistence(err)
}

// KindOf returns the failure kind of err, or zero when err is not a Failure.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return 0
}
