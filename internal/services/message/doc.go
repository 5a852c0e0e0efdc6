// Package message publishes calendar events and listens for private ones.
//
// Private events are wrapped once per participant (the author included) and
// each gift wrap is published to that participant's private relays. A
// failure for one recipient never blocks the others; the caller gets a
// FanoutReport with the counts. Public events go to the author's write
// relays and the participants' read relays. Listen feeds gift wraps from
// the local read relays into an ingest pipeline.
package message
