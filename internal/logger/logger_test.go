package logger

import "testing"

func TestColorForIsDeterministic(t *testing.T) {
	c := newColorCache()
	a := c.colorFor("web:build")
	b := c.colorFor("web:build")
	if a != b {
		t.Fatalf("expected stable color assignment, got %+v then %+v", a, b)
	}
}

func TestColorForVariesByID(t *testing.T) {
	c := newColorCache()
	a := c.colorFor("web:build")
	b := c.colorFor("core:test")
	if a == b {
		t.Error("expected distinct ids to (almost always) get distinct colors")
	}
}

func TestHSLToRGBPureHues(t *testing.T) {
	red := hslToRGB(0, 1, 0.5)
	if red.r != 255 || red.g != 0 || red.b != 0 {
		t.Errorf("expected pure red, got %+v", red)
	}
}

type recordingLogger struct {
	tasks   []string
	stdout  []string
	stderr  []string
	summary []Summary
}

func (r *recordingLogger) Task(id string, status Status, msg string) {
	r.tasks = append(r.tasks, id+":"+string(status))
}
func (r *recordingLogger) TaskStdout(id string, data []byte) { r.stdout = append(r.stdout, string(data)) }
func (r *recordingLogger) TaskStderr(id string, data []byte) { r.stderr = append(r.stderr, string(data)) }
func (r *recordingLogger) Summary(s Summary)                 { r.summary = append(r.summary, s) }

func TestLoggerInterfaceSatisfiedByConsole(t *testing.T) {
	var _ Logger = (*Console)(nil)
	var _ Logger = (*recordingLogger)(nil)
}
