package config

type WorkerKeyStruct struct {
	PersistNotificationsQueue string
	// AMQP routing keys, one per notification target.
	AuditRoutingKey string
	DMRoutingKey    string
	// AMQPNotifyQueue is the durable queue bound to both routing keys.
	AMQPNotifyQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistNotificationsQueue: "persist_notifications_queue",
	AuditRoutingKey:           "notify.audit",
	DMRoutingKey:              "notify.dm",
	AMQPNotifyQueue:           "whitelist.notify",
}
