package mtctl_test

import (
	"testing"

	"github.com/mtrace-dev/mtrace/mtctl"
)

func TestParseClearAndReset(t *testing.T) {
	for _, line := range []string{"clear", "reset"} {
		cmd, err := mtctl.Parse(line)
		if err != nil {
			t.Fatalf("%q: %v", line, err)
		}
		if cmd.Kind.String() != line {
			t.Fatalf("%q: kind = %v", line, cmd.Kind)
		}
	}
}

func TestParseClearRejectsArguments(t *testing.T) {
	if _, err := mtctl.Parse("clear now"); err == nil {
		t.Fatal("expected an error")
	}
}

func TestParseTraceBareClass(t *testing.T) {
	cmd, err := mtctl.Parse("trace com.example.Foo")
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Kind != mtctl.KindTrace || cmd.ClassPattern != "com.example.Foo" || cmd.MethodPattern != "" {
		t.Fatalf("cmd = %+v", cmd)
	}
}

func TestParseTraceClassMethod(t *testing.T) {
	cmd, err := mtctl.Parse("trace com.example.Foo#bar")
	if err != nil {
		t.Fatal(err)
	}
	if cmd.ClassPattern != "com.example.Foo" || cmd.MethodPattern != "bar" {
		t.Fatalf("cmd = %+v", cmd)
	}
}

func TestParseTraceCountOption(t *testing.T) {
	cmd, err := mtctl.Parse("trace count com.example.Foo#bar")
	if err != nil {
		t.Fatal(err)
	}
	if !cmd.CountOnly {
		t.Fatal("expected CountOnly")
	}
}

func TestParseTraceAllOption(t *testing.T) {
	cmd, err := mtctl.Parse("trace all com.example.Foo#bar")
	if err != nil {
		t.Fatal(err)
	}
	if cmd.CountOnly {
		t.Fatal("expected CountOnly false for the all option")
	}
}

func TestParseTraceWithParamList(t *testing.T) {
	cmd, err := mtctl.Parse("trace com.example.Foo#bar[0,2]")
	if err != nil {
		t.Fatal(err)
	}
	want := []int{0, 2}
	if len(cmd.TracedParams) != len(want) || cmd.TracedParams[0] != want[0] || cmd.TracedParams[1] != want[1] {
		t.Fatalf("TracedParams = %v, want %v", cmd.TracedParams, want)
	}
}

func TestParseUntraceStar(t *testing.T) {
	cmd, err := mtctl.Parse("untrace *")
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Kind != mtctl.KindUntrace || cmd.ClassPattern != "*" {
		t.Fatalf("cmd = %+v", cmd)
	}
}

func TestParseTraceStarIsSemanticallyImpossible(t *testing.T) {
	if _, err := mtctl.Parse("trace *"); err == nil {
		t.Fatal("expected trace * to be rejected")
	}
}

func TestParseSaveRequiresAbsolutePath(t *testing.T) {
	if _, err := mtctl.Parse("save relative/path.png"); err == nil {
		t.Fatal("expected a relative save path to be rejected")
	}
	cmd, err := mtctl.Parse("save /tmp/snapshot.png")
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Kind != mtctl.KindSave || cmd.SavePath != "/tmp/snapshot.png" {
		t.Fatalf("cmd = %+v", cmd)
	}
}

func TestParseEmptyCommandRejected(t *testing.T) {
	if _, err := mtctl.Parse(""); err == nil {
		t.Fatal("expected an error for an empty command")
	}
	if _, err := mtctl.Parse("   "); err == nil {
		t.Fatal("expected an error for a blank command")
	}
}

func TestParseUnrecognizedCommandRejected(t *testing.T) {
	if _, err := mtctl.Parse("frobnicate everything"); err == nil {
		t.Fatal("expected an error for an unrecognized command")
	}
}

func TestParseMalformedParamList(t *testing.T) {
	if _, err := mtctl.Parse("trace com.example.Foo#bar[0,x]"); err == nil {
		t.Fatal("expected an error for a non-integer parameter index")
	}
	if _, err := mtctl.Parse("trace com.example.Foo#bar[0,2"); err == nil {
		t.Fatal("expected an error for an unterminated parameter list")
	}
}
