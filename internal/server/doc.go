// Package server exposes a parking.InstrumentedLot over HTTP with chi.
package server
