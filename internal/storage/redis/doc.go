// Package redis builds the shared go-redis client used by the rate
// limiter and the event queue.
package redis
