// Package notify provides the optional Redis pub/sub nudge used by the
// coordination messaging layer. Polling receive-messages is the delivery
// contract; the nudge only shortens latency by letting subscribed sessions
// wake early instead of waiting out the next poll. Every operation here is
// best effort and failure never propagates into message delivery.
package notify
