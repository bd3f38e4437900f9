// Package workqueue decouples scene acquisition from scene processing.
//
// The producer pushes scenes as their archives become available and pushes
// exactly one stop sentinel when it is done, whether it finished or failed.
// The consumer dequeues in FIFO order and returns when it sees the sentinel.
package workqueue
