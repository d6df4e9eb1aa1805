/*
Package harness assembles the test harness from a Configuration.

New validates the configuration, opens the S3 store with the metrics
collector attached as its recorder and builds a validator over it. Cluster
access is lazy: the Docker client is created the first time Nodes, Reset or
WaitForRebalance needs it.

	h, err := harness.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer h.Stop(context.Background())

	if err := h.Start(ctx); err != nil {
		return err
	}
	report := h.Soak(ctx, "default", harness.SoakOptions{ReadRatio: 4})

Long-running workloads (Soak, ValidateContinuous) stop when their context is
done and return what they observed; individual failures are reported, not
returned.
*/
package harness
