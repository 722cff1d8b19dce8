// Package agentloop implements the ralph agent loop.
//
// The loop repeatedly invokes a language model with a fixed instruction and a
// bounded set of tools (list/read/write files, run a command, update the
// prd.json ledger, ask the operator, update the instruction, done) until the
// model signals completion or the iteration budget is exhausted.
//
// # Architecture
//
//   - LoopController: drives up to limit iterations against one conversation
//     history and detects the RALPH_DONE sentinel.
//   - StepEngine: one model-decide-then-execute-tools cycle.
//   - ToolRegistry: name -> tool dispatch with an explicit unknown-tool branch.
//   - ExecutionEnvironment: abstraction for where tools run; the local
//     implementation confines every filesystem operation to the working
//     directory via ResolvePath.
//   - InstructionStore: working copy of the instruction, re-read each
//     iteration so in-loop edits take effect immediately.
//   - EventEmitter: typed progress events for the host application.
//
// # Quick Start
//
//	env := agentloop.NewLocalEnvironment(workdir, instrPath)
//	reg := agentloop.NewToolRegistry()
//	agentloop.RegisterCoreTools(reg)
//	store := agentloop.NewInstructionStore(instrPath, instruction)
//	loop := agentloop.NewLoopController(decider, reg, env, store, nil)
//	defer loop.Close()
//
//	go func() {
//	    for ev := range loop.Events() {
//	        fmt.Printf("[%s] %v\n", ev.Kind, ev.Data)
//	    }
//	}()
//	err := loop.Run(ctx)
package agentloop
