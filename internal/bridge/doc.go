// Package bridge forwards the activity of one monitor to another.
//
// A [Bridge] is registered as a client on its source monitor and forwards
// the log lines and groups that pass the target's final filter to an
// [Endpoint]. The endpoint is either a [Target] on a local monitor or a
// [StreamTarget] that writes frames to another process, where [Serve]
// replays them on a Target and can send the target's filter, topic and
// auto tags back for [StreamTarget.ReadControl].
//
// While bound, a bridge contributes the target's filter to the source's
// minimal filter, so the source never drops what the target wants. Groups
// whose opening was forwarded are closed on the target when they close on
// the source, or with a "closed by bridge removed" conclusion when the
// bridge is unregistered first.
//
//	target := bridge.NewTarget(root)
//	b := bridge.New(target, bridge.PullTopic())
//	worker.RegisterClient(b)
//	// ...
//	worker.UnregisterClient(b)
package bridge
