package hcl

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/vk/regimerun/internal/config"
	"github.com/vk/regimerun/internal/ctxlog"
	"github.com/vk/regimerun/internal/testutil"
)

func writeRunFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func testLoader(env ...string) *Loader {
	return &Loader{environ: func() []string { return env }}
}

func TestLoad_Full(t *testing.T) {
	t.Parallel()

	path := writeRunFile(t, `
notebook   = "unsupervised_market_hidden_regime.ipynb"
output_dir = "out/${env.RUN_NAME}"

engine "kernel" {
  timeout    = 900
  kernel     = "python3"
  server_url = "http://localhost:8888"
  token      = env.JUPYTER_TOKEN
  root_dir   = "/srv"
}

extract {
  marker          = "Performance Summary by Regime"
  key             = "regime_summary"
  artifact_prefix = "regime_analysis"
}

publish "s3" {
  bucket   = "artifacts"
  prefix   = "regimes"
  region   = "eu-west-1"
  endpoint = "http://minio:9000"
}
`)

	got, err := testLoader("RUN_NAME=daily", "JUPYTER_TOKEN=t0k3n", "BROKEN").Load(context.Background(), path)
	require.NoError(t, err)

	want := &config.RunFile{
		Notebook:  "unsupervised_market_hidden_regime.ipynb",
		OutputDir: "out/daily",
		Engine: &config.Engine{
			Type:       "kernel",
			Timeout:    900 * time.Second,
			KernelName: "python3",
			ServerURL:  "http://localhost:8888",
			Token:      "t0k3n",
			RootDir:    "/srv",
		},
		Extract: &config.Extract{
			Marker:         "Performance Summary by Regime",
			Key:            "regime_summary",
			ArtifactPrefix: "regime_analysis",
		},
		Publish: &config.Publish{
			Type:     "s3",
			Bucket:   "artifacts",
			Prefix:   "regimes",
			Region:   "eu-west-1",
			Endpoint: "http://minio:9000",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("run file mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_Minimal(t *testing.T) {
	t.Parallel()

	path := writeRunFile(t, `notebook = "nb.ipynb"`)
	got, err := testLoader().Load(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, &config.RunFile{Notebook: "nb.ipynb"}, got)
}

func TestLoad_TimeoutForms(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		timeout string
		want    time.Duration
		wantErr string
	}{
		{name: "seconds", timeout: `timeout = 30`, want: 30 * time.Second},
		{name: "fractional seconds", timeout: `timeout = 1.5`, want: 1500 * time.Millisecond},
		{name: "duration string", timeout: `timeout = "10m"`, want: 10 * time.Minute},
		{name: "absent", timeout: ``, want: 0},
		{name: "negative", timeout: `timeout = -1`, wantErr: "must be positive"},
		{name: "bad string", timeout: `timeout = "soon"`, wantErr: "invalid timeout"},
		{name: "wrong type", timeout: `timeout = true`, wantErr: "number of seconds or a duration string"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := writeRunFile(t, "engine \"nbconvert\" {\n"+tc.timeout+"\n}\n")
			got, err := testLoader().Load(context.Background(), path)
			if tc.wantErr != "" {
				require.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, "nbconvert", got.Engine.Type)
			require.Equal(t, tc.want, got.Engine.Timeout)
		})
	}
}

func TestLoad_WarnsOnUnknownContent(t *testing.T) {
	t.Parallel()

	path := writeRunFile(t, `
notebook = "nb.ipynb"
colour   = "red"

extact {
  marker = "Performance Summary by Regime"
}
`)
	logs := &testutil.SafeBuffer{}
	ctx := ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(logs, nil)))

	got, err := testLoader().Load(ctx, path)
	require.NoError(t, err)
	require.Equal(t, "nb.ipynb", got.Notebook)
	require.Nil(t, got.Extract, "a misspelled block is not decoded")

	out := logs.String()
	require.Contains(t, out, "Ignoring unknown run file attribute.")
	require.Contains(t, out, "attribute=colour")
	require.Contains(t, out, "Ignoring unknown run file block.")
	require.Contains(t, out, `extact`)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	_, err := testLoader().Load(context.Background(), writeRunFile(t, `notebook = "unterminated`))
	require.ErrorContains(t, err, "failed to parse HCL file")

	_, err = testLoader().Load(context.Background(), writeRunFile(t, `engine "kernel" { token = env.MISSING }`))
	require.ErrorContains(t, err, "failed to decode HCL file")

	_, err = testLoader().Load(context.Background(), writeRunFile(t, `publish "s3" { prefix = "x" }`))
	require.ErrorContains(t, err, "bucket")

	_, err = testLoader().Load(context.Background(), filepath.Join(t.TempDir(), "missing.hcl"))
	require.Error(t, err)
}
