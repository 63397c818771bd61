// Package events consumes domain events from Kafka and turns them into queued
// notification mail.
package events
