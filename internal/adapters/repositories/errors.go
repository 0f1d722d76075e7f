package repositories

import "delivery-coordination-service/internal/domain"

// ErrNotFound is domain.ErrNotFound; repository errors wrap it.
var ErrNotFound = domain.ErrNotFound
