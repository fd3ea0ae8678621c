// Package device defines the vocabulary shared by the asynchronous BLE bridge:
// entity identifiers and value types, the error taxonomy, and the contract of
// the callback-driven collaborator (the platform Bluetooth stack).
//
// The collaborator is consumed in two directions:
//   - Commands are plain method calls on CentralStack, GATTClient and
//     PeripheralManagerStack. A command returns as soon as it is accepted.
//   - Results arrive later through a callback set registered once with
//     Register. All callbacks of one stack are invoked serially on a single
//     delivery goroutine and carry only the affected entity's identifier.
package device
