// Package store holds the latest metric snapshot for every provisioned node.
//
// The node catalog is fixed when the Store is built (New) and never grows:
// ingesting for an id that was not provisioned fails with ErrUnknownNode.
// Each node has its own mutex, so updates to different nodes never contend,
// while updates to the same node are serialized. Callers that must perform
// several steps atomically for one node (merge, evaluate, write status) use
// Update, which runs a callback while the node's lock is held.
//
// Every read returns a deep copy; callers can never observe or mutate a
// node's metrics map while another goroutine is writing to it.
package store
