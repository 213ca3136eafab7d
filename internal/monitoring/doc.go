// Package monitoring exports control loop state in Prometheus format.
//
// The exporter owns a private registry. Pool, catalog and task counters are
// read from the controller on every scrape; transition events are counted
// through an event subscription. Mount Handler() on the API router or any
// other mux:
//
//	exporter, err := monitoring.NewMetricsExporter(logger, config, controller)
//	if err != nil {
//		return err
//	}
//	defer exporter.Close()
//	mux.Handle("/metrics", exporter.Handler())
package monitoring
