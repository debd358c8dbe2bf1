package models

// All returns every model managed by the schema migration, parents first
func All() []interface{} {
	return []interface{}{
		&Rep{},
		&Customer{},
		&SalesOrder{},
		&SalesOrderLine{},
		&DistributionLogEntry{},
		&ShipStationSyncRun{},
		&ShipStationSkippedOrder{},
		&TracingReport{},
		&AuditEvent{},
	}
}
