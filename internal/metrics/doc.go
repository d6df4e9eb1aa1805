/*
Package metrics exports harness activity to Prometheus.

A Collector owns a private prometheus.Registry with these series, all under the
s3harness namespace by default:

	operations_total{operation,status}         store facade calls
	operation_duration_seconds{operation}      store call latency
	operation_size_bytes{operation}            bytes moved per call
	validated_keys_total{bucket,outcome}       validator outcomes per key
	rebalance_wait_seconds{status}             time spent waiting for ring balance
	cluster_running_nodes                      running node containers
	ring_partitions{node}                      partitions owned per node

The Collector satisfies the recorder interfaces of the storage and validate
packages, so it is passed straight into them:

	collector, err := metrics.NewCollector(&metrics.Config{Enabled: true, Port: 9090}, logger)
	if err != nil {
		return err
	}
	store, err := s3.Open(ctx, cfg, s3.WithRecorder(collector))
	validator := validate.New(store, logger, collector)

Start serves /metrics, /health and /debug/operations; Stop shuts the server
down. A disabled Collector accepts every call and records nothing.
*/
package metrics
