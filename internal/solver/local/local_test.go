package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/colibri-telescope/astrocorr/internal/solver"
	"github.com/colibri-telescope/astrocorr/internal/wcs/wcstest"
)

func TestConfig_Command(t *testing.T) {
	c := DefaultConfig()

	program, args, err := c.Command("/data/frame.fits", "/data/tmp", "frame-1", 4)
	if err != nil {
		t.Fatalf("Command failed: %v", err)
	}
	if program != "solve-field" {
		t.Errorf("Expected solve-field, got %s", program)
	}

	want := "--no-plots -D /data/tmp -O -o frame-1 -N " + filepath.Join("/data/tmp", "frame-1.new") +
		" -t 4 --scale-units arcsecperpix --scale-low 2.2 --scale-high 2.6 /data/frame.fits"
	if got := strings.Join(args, " "); got != want {
		t.Errorf("Unexpected args:\n got: %s\nwant: %s", got, want)
	}
}

func TestConfig_CommandWrapped(t *testing.T) {
	c := DefaultConfig()
	c.Wrapper = []string{"wsl", "--exec"}
	c.WSLPaths = true

	program, args, err := c.Command(`D:\tmp\astr_corr.fits`, `D:\tmp`, "astr_corr", 3)
	if err != nil {
		t.Fatalf("Command failed: %v", err)
	}
	if program != "wsl" {
		t.Errorf("Expected wsl, got %s", program)
	}
	if args[0] != "--exec" || args[1] != "solve-field" {
		t.Errorf("Expected wrapper args before the solver, got %v", args[:2])
	}
	if args[len(args)-1] != "/mnt/d/tmp/astr_corr.fits" {
		t.Errorf("Expected translated image path, got %s", args[len(args)-1])
	}
	if !strings.Contains(strings.Join(args, " "), "-D /mnt/d/tmp ") {
		t.Errorf("Expected translated output directory in %v", args)
	}
}

func TestConfig_Validate(t *testing.T) {
	cases := map[string]func(c *Config){
		"binary":  func(c *Config) { c.Binary = " " },
		"scale":   func(c *Config) { c.ScaleLow = 0 },
		"bounds":  func(c *Config) { c.ScaleLow, c.ScaleHigh = 3, 2 },
		"timeout": func(c *Config) { c.Timeout = 0 },
		"wrapper": func(c *Config) { c.Wrapper = []string{""} },
	}

	for name, mutate := range cases {
		c := DefaultConfig()
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}

	c := DefaultConfig()
	if _, _, err := c.Command("a.fits", ".", "a", -1); err == nil {
		t.Errorf("Expected negative distortion order to be rejected")
	}
}

func TestWSLPath(t *testing.T) {
	cases := map[string]string{
		`D:\tmp\x.fits`:  "/mnt/d/tmp/x.fits",
		`c:\`:            "/mnt/c",
		`E:/data/a.fits`: "/mnt/e/data/a.fits",
		"/already/unix":  "/already/unix",
		`rel\path.fits`:  "rel/path.fits",
	}
	for in, want := range cases {
		if got := WSLPath(in); got != want {
			t.Errorf("WSLPath(%q): expected %q, got %q", in, want, got)
		}
	}
}

// fakeSolver writes a shell script standing in for solve-field
func fakeSolver(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell based solver stub")
	}

	dir := t.TempDir()
	fixture := filepath.Join(dir, "solution.wcs")
	if err := os.WriteFile(fixture, wcstest.Solution(t), 0o644); err != nil {
		t.Fatalf("Writing fixture failed: %v", err)
	}

	script := fmt.Sprintf(`#!/bin/sh
while [ $# -gt 0 ]; do
  case "$1" in
    -D) dir="$2"; shift ;;
    -o) base="$2"; shift ;;
  esac
  shift
done
FIXTURE=%q
%s
`, fixture, body)

	path := filepath.Join(dir, "solve-field")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("Writing solver stub failed: %v", err)
	}
	return path
}

func solveWith(t *testing.T, binary string, timeout time.Duration) error {
	t.Helper()

	c := DefaultConfig()
	c.Binary = binary
	c.Timeout = solver.NewDuration(timeout)
	c.OutputDir = t.TempDir()

	s, err := New(c)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	req := solver.Request{ImagePath: filepath.Join(c.OutputDir, "frame.fits"), FrameID: "frame-1", DistortionOrder: 4}
	d, err := s.Solve(context.Background(), req)
	if err == nil && d == nil {
		t.Fatalf("Expected a descriptor on success")
	}
	return err
}

func expectKind(t *testing.T, err error, kind solver.Kind) {
	t.Helper()

	var se *solver.StrategyError
	if !errors.As(err, &se) {
		t.Fatalf("Expected *solver.StrategyError, got %v", err)
	}
	if se.Kind != kind || se.Strategy != Name {
		t.Errorf("Expected %s %s failure, got %s %s: %v", Name, kind, se.Strategy, se.Kind, se.Err)
	}
}

func TestStrategy_Solve(t *testing.T) {
	bin := fakeSolver(t, `echo "solving $base"; cp "$FIXTURE" "$dir/$base.wcs"`)

	if err := solveWith(t, bin, 10*time.Second); err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
}

func TestStrategy_Failures(t *testing.T) {
	t.Run("exit status", func(t *testing.T) {
		bin := fakeSolver(t, `echo "no index files" >&2; exit 2`)
		expectKind(t, solveWith(t, bin, 10*time.Second), solver.KindFailed)
	})

	t.Run("no solution", func(t *testing.T) {
		bin := fakeSolver(t, `exit 0`)
		expectKind(t, solveWith(t, bin, 10*time.Second), solver.KindFailed)
	})

	t.Run("timeout", func(t *testing.T) {
		bin := fakeSolver(t, `exec sleep 10`)
		expectKind(t, solveWith(t, bin, time.Second), solver.KindTimeout)
	})

	t.Run("missing binary", func(t *testing.T) {
		err := solveWith(t, filepath.Join(t.TempDir(), "solve-field"), 10*time.Second)
		expectKind(t, err, solver.KindUnavailable)
	})

	t.Run("output directory", func(t *testing.T) {
		c := DefaultConfig()
		c.OutputDir = filepath.Join(t.TempDir(), "missing")
		s, _ := New(c)

		_, err := s.Solve(context.Background(), solver.Request{ImagePath: "frame.fits", FrameID: "f"})
		expectKind(t, err, solver.KindMisconfigured)
	})
}

func TestStrategy_IgnoresStaleSolution(t *testing.T) {
	bin := fakeSolver(t, `exit 0`)

	c := DefaultConfig()
	c.Binary = bin
	c.OutputDir = t.TempDir()
	if err := os.WriteFile(filepath.Join(c.OutputDir, "frame-1.wcs"), wcstest.Solution(t), 0o644); err != nil {
		t.Fatalf("Writing stale solution failed: %v", err)
	}

	s, _ := New(c)
	_, err := s.Solve(context.Background(), solver.Request{ImagePath: "frame.fits", FrameID: "frame-1"})
	expectKind(t, err, solver.KindFailed)
}

func TestStrategy_MissingBinaryKeepsExistingSolution(t *testing.T) {
	dir := t.TempDir()
	entry := filepath.Join(dir, "frame-1.wcs")
	corrupt := []byte("not a solution")
	if err := os.WriteFile(entry, corrupt, 0o644); err != nil {
		t.Fatalf("Writing cache entry failed: %v", err)
	}

	c := DefaultConfig()
	c.Binary = filepath.Join(t.TempDir(), "solve-field")
	c.OutputDir = dir
	s, err := New(c)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	chain := solver.NewChain([]solver.Strategy{s}, solver.WithCache(solver.NewCache(dir)))
	req := solver.Request{ImagePath: filepath.Join(dir, "frame.fits"), FrameID: "frame-1", DistortionOrder: 4}
	if _, err := chain.Solve(context.Background(), req); err == nil {
		t.Fatalf("Expected the chain to fail without a solver")
	}

	data, err := os.ReadFile(entry)
	if err != nil {
		t.Fatalf("Cache entry was removed: %v", err)
	}
	if string(data) != string(corrupt) {
		t.Errorf("Cache entry was rewritten: %q", data)
	}
}
