// Package nativenode defines the call contract between the bridge and the
// native Reticulum node.
//
// The native node is an opaque subsystem reached through a small set of
// entry points with fixed signatures:
//   - Node: lifecycle, peer, messaging and settings operations, each
//     returning an integer result code (ResultOK on success)
//   - NextEventJSON: blocking, cancellable poll for the next queued event
//   - TakeLastErrorJSON: read-once retrieval of the most recent failure
//
// Everything that crosses the boundary is JSON text. This package also holds
// the record types used to encode and decode that text:
//   - NodeConfig: configuration passed to Start and Restart
//   - SendRequest: destination and payload for Send
//   - StatusReport: the shape returned by GetStatusJSON
//   - EventEnvelope: one event drained by NextEventJSON
//   - ErrorEnvelope: the last-error record
//
// Example usage:
//
//	cfg := nativenode.NodeConfig{Name: "ops-node", StorageDir: "/data/reticulum"}
//	raw, err := json.Marshal(cfg)
//	if err != nil {
//		return err
//	}
//	if node.Start(string(raw)) != nativenode.ResultOK {
//		envelope := node.TakeLastErrorJSON()
//		...
//	}
//
//	for {
//		raw := node.NextEventJSON(ctx, 500*time.Millisecond)
//		if raw == "" {
//			continue
//		}
//		var ev nativenode.EventEnvelope
//		...
//	}
package nativenode
