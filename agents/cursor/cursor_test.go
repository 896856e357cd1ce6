package cursor

import "testing"

func TestBuildArgsDefaultIncludesOutputFormatOnly(t *testing.T) {
	args := buildArgs(Options{}, "")
	want := []string{"--output-format", "stream-json"}
	if len(args) != len(want) {
		t.Fatalf("args = %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("args = %v, want %v", args, want)
		}
	}
}

func TestBuildArgsForceAndModelAndResume(t *testing.T) {
	args := buildArgs(Options{Force: true, Model: "gpt-5"}, "prior-id")
	joined := map[string]bool{}
	for _, a := range args {
		joined[a] = true
	}
	for _, want := range []string{"--force", "--model", "gpt-5", "--resume", "prior-id"} {
		if !joined[want] {
			t.Fatalf("expected %q in args %v", want, args)
		}
	}
}

func TestCheckAvailabilityNotFoundWhenNoCandidateOnPath(t *testing.T) {
	e := &Executor{}
	status := e.CheckAvailability(nil)
	// In the absence of a real cursor-agent/cursor binary on the test
	// machine's PATH this should report NotFound; if the test host
	// happens to have one installed, Available is also an acceptable
	// outcome, so only assert the call does not panic and reports some
	// recognized kind.
	switch status.Kind {
	case "available", "not_found":
	default:
		t.Fatalf("unexpected availability kind: %v", status.Kind)
	}
}
