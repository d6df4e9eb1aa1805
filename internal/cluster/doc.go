// Package cluster observes and drives the storage cluster under test: ring
// ownership sampling, running node counts through the Docker engine, node
// lifecycle, and waiting for partitions to rebalance after a topology change.
//
// Status reads fail fast by default. Set Poller.Retry to ride out a stats
// endpoint that drops while a node restarts.
package cluster
