package eligibility

import "errors"

// Kind identifies which rule rejected a start request.
type Kind string

const (
	KindWalletMissing     Kind = "wallet_missing"
	KindLabelRoleMismatch Kind = "label_role_mismatch"
	KindConcurrencyLimit  Kind = "concurrency_limit_exceeded"
	KindPriceLabelMissing Kind = "price_label_missing"
)

// Rejection is a rule violation with a user-facing message. The dispatcher
// posts the message as an issue comment before the error terminates
// handling of the event.
type Rejection struct {
	Kind    Kind
	Message string
}

func (r *Rejection) Error() string {
	return r.Message
}

// AsRejection unwraps err into a Rejection if one is in its chain.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
