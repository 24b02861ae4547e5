package searchmap

import (
	"errors"

	"github.com/kailas-cloud/searchmap/internal/backend"
	"github.com/kailas-cloud/searchmap/internal/backend/remote"
	"github.com/kailas-cloud/searchmap/internal/failure"
	"github.com/kailas-cloud/searchmap/internal/mapper"
	"github.com/kailas-cloud/searchmap/internal/predicate"
)

// Sentinel errors. Use errors.Is() to check.
var (
	ErrUnknownBackend    = errors.New("unknown backend")
	ErrNoDefaultBackend  = errors.New("no default backend: set one or name the backend of every type")
	ErrDuplicateIndex    = errors.New("index is mapped by more than one type")
	ErrIncompatibleField = errors.New("field cannot be queried across the targeted indexes")
	ErrEmptyScope        = errors.New("search scope targets no index")

	ErrClosed                   = backend.ErrClosed
	ErrMissingTenant            = backend.ErrMissingTenant
	ErrMultiTenancyNotSupported = backend.ErrMultiTenancyNotSupported
	ErrUnknownUnwrapType        = backend.ErrUnknownUnwrapType
	ErrUnknownType              = mapper.ErrUnknownType
	ErrNotIndexed               = mapper.ErrNotIndexed
	ErrNoIdentifier             = mapper.ErrNoIdentifier
	ErrNotSupported             = predicate.ErrNotSupported
	ErrUnknownField             = predicate.ErrUnknownField
	ErrInvalidValue             = predicate.ErrInvalidValue
	ErrCircuitOpen              = remote.ErrCircuitOpen
)

// MappingError lists every failure found while building a mapping.
type MappingError = failure.MappingError

// IsMappingError reports whether err carries mapping failures.
func IsMappingError(err error) bool { return failure.IsMappingError(err) }
