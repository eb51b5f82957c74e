package purchase

import "encoding/base64"

// Outcome is the terminal result of one purchase attempt.
// Implementations: Success, PendingAuthorization, UserCancelled, NoSuchProduct, Failure.
type Outcome interface {
	// Name returns a stable label, used for metrics and logs
	Name() string
	isOutcome()
}

// Success means the transaction was verified, reconciled and finalized
type Success struct {
	Receipt []byte
}

// PendingAuthorization means the platform is waiting for the purchase to be
// approved. The grant will arrive through the update stream.
type PendingAuthorization struct {
	ApprovalURL string
}

// UserCancelled means the user backed out
type UserCancelled struct{}

// NoSuchProduct means the identifier is not in the catalog
type NoSuchProduct struct {
	Identifier string
}

// Failure covers verification failures and platform errors
type Failure struct {
	Message string
	Err     error
}

func (Success) Name() string              { return "success" }
func (PendingAuthorization) Name() string { return "pending" }
func (UserCancelled) Name() string        { return "cancelled" }
func (NoSuchProduct) Name() string        { return "no_such_product" }
func (Failure) Name() string              { return "failure" }

func (Success) isOutcome()              {}
func (PendingAuthorization) isOutcome() {}
func (UserCancelled) isOutcome()        {}
func (NoSuchProduct) isOutcome()        {}
func (Failure) isOutcome()              {}

func (f Failure) Error() string { return f.Message }

// Unwrap exposes the underlying error for errors.Is/As
func (f Failure) Unwrap() error { return f.Err }

// ResultCode is the code carried by host callbacks
type ResultCode string

const (
	ResultSuccess       ResultCode = "success"
	ResultPending       ResultCode = "pending"
	ResultCancelled     ResultCode = "cancelled"
	ResultNoSuchProduct ResultCode = "no_such_product"
	ResultFailure       ResultCode = "failure"
)

// Result is the flattened form of an outcome handed to host callbacks.
// Payload is the base64 receipt for success and the approval URL for pending.
type Result struct {
	Code     ResultCode          `json:"code"`
	Payload  string              `json:"payload,omitempty"`
	Message  string              `json:"message,omitempty"`
	Products []ProductDescriptor `json:"products,omitempty"`
}

// OutcomeResult converts an outcome to its host representation
func OutcomeResult(o Outcome) Result {
	switch v := o.(type) {
	case Success:
		return Result{Code: ResultSuccess, Payload: base64.StdEncoding.EncodeToString(v.Receipt)}
	case PendingAuthorization:
		return Result{Code: ResultPending, Payload: v.ApprovalURL}
	case UserCancelled:
		return Result{Code: ResultCancelled}
	case NoSuchProduct:
		return Result{Code: ResultNoSuchProduct, Message: "no such product: " + v.Identifier}
	case Failure:
		return Result{Code: ResultFailure, Message: v.Message}
	default:
		return Result{Code: ResultFailure, Message: "unknown purchase outcome"}
	}
}

// ErrorResult builds a failure result from an error (nil means success)
func ErrorResult(err error) Result {
	if err == nil {
		return Result{Code: ResultSuccess}
	}
	return Result{Code: ResultFailure, Message: err.Error()}
}
