package ordercache

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Line is one cached order line. Orders are immutable once placed, so
// cached lines never expire.
type Line struct {
	ProductID       string
	ProductName     string
	OrderedQuantity float64
}

// Entry records that an order's lines were fetched, even when the fetch
// returned no lines.
type Entry struct {
	OrderID   string
	FetchedAt time.Time
}
