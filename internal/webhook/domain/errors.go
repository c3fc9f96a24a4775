package domain

import "errors"

var (
	ErrMissingSignature      = errors.New("missing_signature")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrNoTenantResolved      = errors.New("no_tenant_resolved")
	ErrTenantMisconfigured   = errors.New("tenant_misconfigured")
	ErrSignatureInvalid      = errors.New("signature_invalid")
	ErrTenantMismatch        = errors.New("tenant_mismatch")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrEventInFlight         = errors.New("event_in_flight")
	ErrInvalidEvent          = errors.New("invalid_event")
)
