// Package regorus implements the regorus link-layer discovery engine.
//
// A node broadcasts a Ping on a monitored interface and tracks the interface
// as a Card that moves from Detecting to Detected once a peer answers with a
// Pong or probes the node itself. Unanswered probes are retried a bounded
// number of times on a per-card timer.
//
// Three producers feed the engine: the packet receive path, card retry timers
// and the control API. They never run protocol logic themselves. Each one
// appends a Work item to the WorkQueue, and a single Dispatcher goroutine
// drains the queue and applies every state transition in order.
package regorus
