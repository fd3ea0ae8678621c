// Package adapter exposes the blocking, context-aware surface of the BLE
// bridge. Each adapter owns a correlator and its event channels and is the
// only observer of the collaborator callbacks it registers at construction:
//
//   - Central drives the central role: scanning, connecting, disconnect
//     notifications.
//   - Peripheral wraps one connected remote peripheral: GATT discovery, reads,
//     writes, notifications.
//   - PeripheralManager drives the peripheral role: publishing services and
//     advertising.
//
// Correlated operations register their slot before the command is issued and
// then block until the matching callback resolves it, the context ends, or
// the adapter is closed.
package adapter
