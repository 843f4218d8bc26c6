// Package ingest accepts temperature reading batches from sensor controllers
// and decides which of them are kept at full resolution only (research) and
// which are also promoted to the decimated long-term store (production).
//
// Every accepted batch lands in the research tier. A per-controller counter
// tracks submissions since the last promotion; once it reaches the threshold
// (120 by default) the next batch is promoted and the counter resets to 0, so
// one batch in every threshold+1 reaches production.
//
// The counter step is serialised per controller by a KeyedMutex and runs in
// a single immediate SQLite transaction, so concurrent submissions for the
// same controller can never both observe the threshold and double-promote.
//
// Batches arrive over HTTP (Pipeline.Submit) or MQTT (Subscriber). Promotions
// can fan out to additional production sinks such as the InfluxDB mirror and
// are announced on the controller's promoted topic.
package ingest
