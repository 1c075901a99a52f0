// Package core runs SEAD submission imports.
//
// It has no UI dependencies. The CLI and tests drive it the same way:
//
//	svc := core.NewService(schema, keys, policyFile.Policies, core.Options{})
//	summary, err := svc.Process(ctx, core.Request{
//	    InputDir:  "submissions/2024-03",
//	    OutputDir: "output",
//	    Basename:  "batch_42",
//	})
//	if err != nil {
//	    fmt.Println(core.FormatUserError(err))
//	}
//
// # Run
//
// A run proceeds in four steps, all under one run id and one timeout:
//
//  1. Open the input directory (one CSV or TSV file per sheet)
//  2. Load every sheet that maps to a schema table into a Submission
//  3. Apply the policy pipeline, aborting on the first policy error
//  4. Write the four export files into the output directory
//
// Nothing is written when any step before the export fails.
//
// # Concurrency
//
// Runs are bounded by a [RunLimiter]; two runs writing the same output
// directory are rejected with [ErrOutputBusy].
//
// # Errors
//
// [MapError] turns any run error into a coded [UserMessage] (see
// error_messages.go for the code ranges).
package core
