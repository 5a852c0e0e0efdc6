// Package domain defines core data models and interfaces shared across the app.
// It contains plain types (wire/state) and contracts (interfaces) only.
//
// The envelope chain is modelled as a closed variant: Rumor (unsigned
// calendar event), Seal (sender-signed, encrypted Rumor) and GiftWrap
// (ephemeral-key-signed, encrypted Seal). Classify discriminates raw
// transport events at the boundary.
package domain
