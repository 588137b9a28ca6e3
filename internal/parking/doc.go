// Package parking models a lot with two sections of equal capacity: a stack
// served last-in first-out and a queue served first-in first-out.
//
// Lot holds the state behind one mutex. InstrumentedLot adds spans, metrics
// and change observers and implements Operator, the surface shared by the
// HTTP server, the remote client and the interactive Shell.
package parking
