package domain

import "errors"

var (
	// ErrEmptyPool is returned when no eligible entity could be loaded for a session.
	ErrEmptyPool = errors.New("entity pool is empty")
	// ErrImageLoad indicates the source image for a round could not be fetched or decoded.
	ErrImageLoad = errors.New("image load failed")
	// ErrGrant indicates the external currency grant failed.
	ErrGrant = errors.New("currency grant failed")
	// ErrSessionNotFound is returned when a challenge session does not exist (or already exited).
	ErrSessionNotFound = errors.New("challenge session not found")
	// ErrVariantNotFound indicates an unknown challenge variant name.
	ErrVariantNotFound = errors.New("challenge variant not found")
	// ErrNotFinished is returned when settlement is requested before the last stage resolved.
	ErrNotFinished = errors.New("challenge not finished")
	// ErrInvalidCatalog indicates a stage catalog that violates its ordering or bounds.
	ErrInvalidCatalog = errors.New("invalid stage catalog")
)
