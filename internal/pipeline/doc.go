// Package pipeline runs a popularity-index collection end to end: it
// authenticates a session, resolves keywords to query terms, plans the
// window set, fetches each window under the shared throttle, reconciles
// the sub-series against the anchor, and exports the merged result.
//
// Steps are registered once and executed in registration order. Run
// state is tracked per step and per run, and progress is published
// through a StatusBroadcaster so WebSocket clients and the CLI observe
// the same event stream.
//
// Basic usage:
//
//	registry := pipeline.NewRegistry()
//	for _, step := range pipeline.StandardSteps(deps) {
//		if err := registry.Register(step); err != nil {
//			return err
//		}
//	}
//
//	manager := pipeline.NewManager(hub, registry, pipeline.NewConfig(), metrics, logger)
//	resp, err := manager.Execute(ctx, pipeline.RunRequest{
//		Keywords: []string{"solar power"},
//		Mode:     planner.ModeQuarters,
//		Start:    start,
//		End:      end,
//	})
//
// Execute blocks until the run reaches a terminal state. Callers that
// need fire-and-forget semantics run it on their own goroutine and
// watch the broadcaster for completion.
package pipeline
