package recovery

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"
)

// runSelf re-runs the named test in a subprocess with env set
func runSelf(t *testing.T, name, env string) (stdout, stderr string, exitCode int) {
	t.Helper()
	cmd := exec.Command(os.Args[0], "-test.run=^"+name+"$")
	cmd.Env = append(os.Environ(), env+"=1")

	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut

	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		exitCode = exitErr.ExitCode()
	case err != nil:
		t.Fatalf("subprocess failed to run: %v", err)
	}
	return out.String(), errOut.String(), exitCode
}

func TestHandlePanic_NoPanic(t *testing.T) {
	func() {
		defer HandlePanic()
	}()
}

func TestHandlePanicFunc_NoPanic(t *testing.T) {
	closed := false

	func() {
		defer HandlePanicFunc(func() {
			closed = true
		})
	}()

	if closed {
		t.Error("cleanup was called without a panic")
	}

	// nil cleanup is allowed
	func() {
		defer HandlePanicFunc(nil)
	}()
}

func TestHandlePanic_ExitsOnPanic(t *testing.T) {
	if os.Getenv("STEPFIT_PANIC_EXIT") == "1" {
		defer HandlePanic()
		panic("corrupt track table")
	}

	_, stderr, code := runSelf(t, "TestHandlePanic_ExitsOnPanic", "STEPFIT_PANIC_EXIT")
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	for _, want := range []string{"FATAL", "corrupt track table", "Stack trace"} {
		if !strings.Contains(stderr, want) {
			t.Errorf("stderr should contain %q, got: %s", want, stderr)
		}
	}
}

func TestHandlePanicFunc_ClosesBeforeExit(t *testing.T) {
	if os.Getenv("STEPFIT_PANIC_FUNC_EXIT") == "1" {
		defer HandlePanicFunc(func() {
			_, _ = os.Stdout.WriteString("RESULTS_CLOSED\n")
		})
		panic("commit failed half way")
	}

	stdout, stderr, code := runSelf(t, "TestHandlePanicFunc_ClosesBeforeExit", "STEPFIT_PANIC_FUNC_EXIT")
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stdout, "RESULTS_CLOSED") {
		t.Errorf("cleanup did not run, stdout: %s", stdout)
	}
	if !strings.Contains(stderr, "commit failed half way") {
		t.Errorf("stderr should carry the panic value, got: %s", stderr)
	}
}

func TestGuard_NoPanic(t *testing.T) {
	if err := Guard(func() error { return nil }); err != nil {
		t.Errorf("Guard() = %v, want nil", err)
	}

	want := errors.New("track failed")
	if err := Guard(func() error { return want }); err != want {
		t.Errorf("Guard() = %v, want %v", err, want)
	}
}

func TestGuard_Panic(t *testing.T) {
	err := Guard(func() error {
		var series []float64
		_ = series[3]
		return nil
	})

	if !errors.Is(err, ErrPanic) {
		t.Fatalf("Guard() = %v, want ErrPanic", err)
	}
	if !strings.Contains(err.Error(), "index out of range") {
		t.Errorf("error should carry the panic value, got: %v", err)
	}
}
