// Package queue implements durable work queues on top of the pipeline
// database. Messages are leased rather than removed on dequeue, giving
// at-least-once delivery: a consumer that fails to ack within its lease
// sees the message again. Transient failures release a message back with
// exponential backoff; messages that exhaust their delivery budget are
// dead lettered for operator inspection and replay.
package queue
