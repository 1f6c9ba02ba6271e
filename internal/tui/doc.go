// Package tui provides the terminal view of a running build.
//
// The view is read-only. It follows the orchestrator's event stream and
// shows the build tree with each build's phase, the dev plan progress of the
// top-level build, the latest test run of every build and an activity log.
// Users can request a graceful stop with 's' and quit with 'q' or Ctrl+C.
//
// Usage:
//
//	program, app := tui.NewBuildProgram(onStop)
//	go tui.ForwardEvents(ctx, emitter.Events(), program)
//	go func() {
//	    result, err := orch.Build(ctx, spec, home)
//	    program.Send(tui.BuildDoneMsg{Result: result, Err: err})
//	}()
//	program.Run()
package tui
