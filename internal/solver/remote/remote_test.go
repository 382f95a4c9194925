package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/colibri-telescope/astrocorr/internal/solver"
	"github.com/colibri-telescope/astrocorr/internal/wcs/wcstest"
)

// fakeNova imitates the astrometry.net API for a single submission
type fakeNova struct {
	t          *testing.T
	apiKey     string
	jobStatus  func(call int32) string
	wcsStatus  func(call int32) int
	subCalls   atomic.Int32
	jobCalls   atomic.Int32
	wcsCalls   atomic.Int32
	uploadCall atomic.Int32

	mu     sync.Mutex
	upload uploadRequest
}

func (f *fakeNova) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.Unmarshal([]byte(r.FormValue("request-json")), &req)
		if req["apikey"] != f.apiKey {
			fmt.Fprint(w, `{"status": "error", "errormessage": "bad apikey"}`)
			return
		}
		fmt.Fprint(w, `{"status": "success", "message": "authenticated user: ", "session": "s3ss10n"}`)
	})

	mux.HandleFunc("/api/upload", func(w http.ResponseWriter, r *http.Request) {
		f.uploadCall.Add(1)
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		_ = json.Unmarshal([]byte(r.FormValue("request-json")), &f.upload)
		f.mu.Unlock()

		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		if data, _ := io.ReadAll(file); string(data) != "FITS" {
			http.Error(w, "unexpected file", http.StatusBadRequest)
			return
		}

		fmt.Fprint(w, `{"status": "success", "subid": 7, "hash": "abc"}`)
	})

	mux.HandleFunc("/api/submissions/7", func(w http.ResponseWriter, r *http.Request) {
		if f.subCalls.Add(1) == 1 {
			fmt.Fprint(w, `{"processing_started": "2022-05-06", "jobs": [null]}`)
			return
		}
		fmt.Fprint(w, `{"processing_started": "2022-05-06", "jobs": [42]}`)
	})

	mux.HandleFunc("/api/jobs/42", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"status": %q}`, f.jobStatus(f.jobCalls.Add(1)))
	})

	mux.HandleFunc("/wcs_file/42", func(w http.ResponseWriter, r *http.Request) {
		call := f.wcsCalls.Add(1)
		if f.wcsStatus != nil {
			if code := f.wcsStatus(call); code != http.StatusOK {
				w.WriteHeader(code)
				return
			}
		}
		_, _ = w.Write(wcstest.Solution(f.t))
	})

	return mux
}

func newFakeNova(t *testing.T) *fakeNova {
	return &fakeNova{
		t:      t,
		apiKey: "key",
		jobStatus: func(call int32) string {
			if call == 1 {
				return "solving"
			}
			return "success"
		},
	}
}

func newStrategy(t *testing.T, baseURL, apiKey string, timeout time.Duration) *Strategy {
	t.Helper()

	c := DefaultConfig()
	c.BaseURL = baseURL
	c.APIKey = apiKey
	c.Timeout = solver.NewDuration(timeout)

	s, err := New(c)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	s.pollInterval = 10 * time.Millisecond
	return s
}

func request(t *testing.T) solver.Request {
	t.Helper()

	path := filepath.Join(t.TempDir(), "frame.fits")
	if err := os.WriteFile(path, []byte("FITS"), 0o644); err != nil {
		t.Fatalf("Writing image failed: %v", err)
	}
	return solver.Request{ImagePath: path, FrameID: "frame-1", Width: 2048, Height: 2048, DistortionOrder: 4}
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
	nova := newFakeNova(t)
	srv := httptest.NewServer(nova.handler())
	defer srv.Close()

	d, err := newStrategy(t, srv.URL, "key", time.Minute).Solve(context.Background(), request(t))
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if v, _ := d.String("CTYPE1"); v != "RA---TAN-SIP" {
		t.Errorf("Unexpected descriptor CTYPE1 %q", v)
	}

	nova.mu.Lock()
	up := nova.upload
	nova.mu.Unlock()

	if up.Session != "s3ss10n" || up.TweakOrder != 4 || !up.CRPixCenter || up.PubliclyVisible != "n" {
		t.Errorf("Unexpected upload options %+v", up)
	}
	if up.ScaleUnits != "arcsecperpix" || up.ScaleLower != 2.2 || up.ScaleUpper != 2.6 {
		t.Errorf("Unexpected scale hints %+v", up)
	}
	if nova.uploadCall.Load() != 1 || nova.subCalls.Load() != 2 || nova.jobCalls.Load() != 2 {
		t.Errorf("Unexpected call counts: upload=%d submissions=%d jobs=%d",
			nova.uploadCall.Load(), nova.subCalls.Load(), nova.jobCalls.Load())
	}
}

func TestStrategy_RetriesDownload(t *testing.T) {
	nova := newFakeNova(t)
	nova.wcsStatus = func(call int32) int {
		if call == 1 {
			return http.StatusServiceUnavailable
		}
		return http.StatusOK
	}
	srv := httptest.NewServer(nova.handler())
	defer srv.Close()

	if _, err := newStrategy(t, srv.URL, "key", time.Minute).Solve(context.Background(), request(t)); err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if nova.wcsCalls.Load() != 2 {
		t.Errorf("Expected one retry of the download, got %d calls", nova.wcsCalls.Load())
	}
}

func TestStrategy_Failures(t *testing.T) {
	t.Run("bad api key", func(t *testing.T) {
		srv := httptest.NewServer(newFakeNova(t).handler())
		defer srv.Close()

		_, err := newStrategy(t, srv.URL, "wrong", time.Minute).Solve(context.Background(), request(t))
		expectKind(t, err, solver.KindMisconfigured)
	})

	t.Run("no api key", func(t *testing.T) {
		t.Setenv(APIKeyEnv, "")

		_, err := newStrategy(t, "http://127.0.0.1:1", "", time.Minute).Solve(context.Background(), request(t))
		expectKind(t, err, solver.KindMisconfigured)
	})

	t.Run("job failure", func(t *testing.T) {
		nova := newFakeNova(t)
		nova.jobStatus = func(int32) string { return "failure" }
		srv := httptest.NewServer(nova.handler())
		defer srv.Close()

		_, err := newStrategy(t, srv.URL, "key", time.Minute).Solve(context.Background(), request(t))
		expectKind(t, err, solver.KindFailed)
	})

	t.Run("timeout", func(t *testing.T) {
		nova := newFakeNova(t)
		nova.jobStatus = func(int32) string { return "solving" }
		srv := httptest.NewServer(nova.handler())
		defer srv.Close()

		_, err := newStrategy(t, srv.URL, "key", time.Second).Solve(context.Background(), request(t))
		expectKind(t, err, solver.KindTimeout)
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := newStrategy(t, url, "key", time.Minute).Solve(context.Background(), request(t))
		expectKind(t, err, solver.KindUnavailable)
	})
}

func TestStrategy_APIKeyFromEnv(t *testing.T) {
	t.Setenv(APIKeyEnv, "key")

	srv := httptest.NewServer(newFakeNova(t).handler())
	defer srv.Close()

	if _, err := newStrategy(t, srv.URL, "", time.Minute).Solve(context.Background(), request(t)); err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	cases := map[string]func(c *Config){
		"scheme":  func(c *Config) { c.BaseURL = "ftp://nova" },
		"scale":   func(c *Config) { c.ScaleLow, c.ScaleHigh = 3, 2 },
		"timeout": func(c *Config) { c.Timeout = 0 },
		"poll":    func(c *Config) { c.PollInterval = 0 },
		"retries": func(c *Config) { c.MaxRetries = -1 },
	}

	for name, mutate := range cases {
		c := DefaultConfig()
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}
