/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package dispatch decouples transport goroutines from request execution.
//
// A transport wraps every inbound call into a Packet and admits it to a Queue.
// A single Dispatcher takes packets from the head of the queue in admission order
// and submits them to a fixed-size Pool. Submission blocks while all workers are busy,
// so the pool size is the only concurrency throttle; admission itself never blocks.
//
// The dispatcher loop is supervised: if it fails it is restarted with exponential backoff,
// and when restarts are exhausted Run returns an error, which stops the whole service.
package dispatch
