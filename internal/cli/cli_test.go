package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/vk/regimerun/internal/app"
	"github.com/vk/regimerun/internal/config"
	"github.com/vk/regimerun/internal/hcl"
)

// clearEnv hides secrets of the developer's environment from the parser.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"JUPYTER_TOKEN", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "AWS_REGION"} {
		t.Setenv(name, "")
	}
}

type stubLoader struct {
	runFile *config.RunFile
	err     error
	path    string
}

func (l *stubLoader) Load(ctx context.Context, path string) (*config.RunFile, error) {
	l.path = path
	return l.runFile, l.err
}

func TestParse(t *testing.T) {
	clearEnv(t)

	defaults := app.DefaultConfig()
	withDefaults := func(mod func(c *app.Config)) *app.Config {
		c := defaults
		mod(&c)
		return &c
	}

	testCases := []struct {
		name           string
		args           []string
		expectExit     bool
		expectErr      string
		expectedConfig *app.Config
		checkOutput    func(t *testing.T, output string)
	}{
		{
			name:           "No arguments uses the default notebook",
			args:           nil,
			expectedConfig: &defaults,
		},
		{
			name: "Happy Path with all flags",
			args: []string{
				"-notebook", "/data/regimes.ipynb",
				"--output-dir=/data/out",
				"--engine=KERNEL",
				"--timeout=15m",
				"--kernel=python3.12",
				"--server-url=http://localhost:8888",
				"--root-dir=/data",
				"--log-level=debug",
				"--log-format=json",
				"--log-file=/var/log/regimerun.log",
			},
			expectedConfig: withDefaults(func(c *app.Config) {
				c.NotebookPath = "/data/regimes.ipynb"
				c.OutputDir = "/data/out"
				c.Engine = app.EngineKernel
				c.Timeout = 15 * time.Minute
				c.KernelName = "python3.12"
				c.ServerURL = "http://localhost:8888"
				c.RootDir = "/data"
				c.LogLevel = "debug"
				c.LogFormat = "json"
				c.LogFile = "/var/log/regimerun.log"
			}),
		},
		{
			name: "Shorthand flags",
			args: []string{"-n", "a.ipynb", "-o", "out", "-jupyter", "/opt/conda/bin/jupyter"},
			expectedConfig: withDefaults(func(c *app.Config) {
				c.NotebookPath = "a.ipynb"
				c.OutputDir = "out"
				c.JupyterBinary = "/opt/conda/bin/jupyter"
			}),
		},
		{
			name: "Positional argument for path",
			args: []string{"/positional/nb.ipynb"},
			expectedConfig: withDefaults(func(c *app.Config) {
				c.NotebookPath = "/positional/nb.ipynb"
			}),
		},
		{
			name:       "Help flag triggers clean exit",
			args:       []string{"-h"},
			expectExit: true,
			checkOutput: func(t *testing.T, output string) {
				require.Contains(t, output, "Usage:")
				require.Contains(t, output, "-server-url")
			},
		},
		{
			name:      "Unknown flag",
			args:      []string{"--workers=3"},
			expectErr: "flag provided but not defined: -workers",
		},
		{
			name:      "Invalid log format",
			args:      []string{"--log-format=xml"},
			expectErr: "invalid log-format",
		},
		{
			name:      "Kernel engine without server",
			args:      []string{"--engine=kernel"},
			expectErr: "requires a server url",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			cfg, shouldExit, err := Parse(context.Background(), tc.args, &out, &stubLoader{})

			require.Equal(t, tc.expectExit, shouldExit)
			if tc.expectErr != "" {
				require.Error(t, err)
				var exitErr *ExitError
				require.True(t, errors.As(err, &exitErr))
				require.Equal(t, 2, exitErr.Code)
				require.Contains(t, exitErr.Message, tc.expectErr)
				return
			}
			require.NoError(t, err)
			if tc.checkOutput != nil {
				tc.checkOutput(t, out.String())
			}
			if tc.expectedConfig != nil {
				if diff := cmp.Diff(tc.expectedConfig, cfg); diff != "" {
					t.Errorf("config mismatch (-want +got):\n%s", diff)
				}
			}
		})
	}
}

func TestParse_RunFileAndFlagPrecedence(t *testing.T) {
	clearEnv(t)
	t.Setenv("JUPYTER_TOKEN", "env-token")
	t.Setenv("AWS_ACCESS_KEY_ID", "AK")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "SK")

	runFile := filepath.Join(t.TempDir(), "run.hcl")
	require.NoError(t, os.WriteFile(runFile, []byte(`
notebook   = "from_file.ipynb"
output_dir = "file_out"
engine "kernel" {
  timeout    = 120
  server_url = "http://jupyter:8888"
}
publish "s3" {
  bucket = "runs"
}
`), 0600))

	cfg, shouldExit, err := Parse(context.Background(),
		[]string{"-config", runFile, "-o", "flag_out"}, &bytes.Buffer{}, hcl.NewLoader())
	require.NoError(t, err)
	require.False(t, shouldExit)

	require.Equal(t, "from_file.ipynb", cfg.NotebookPath)
	require.Equal(t, "flag_out", cfg.OutputDir, "flags override the run file")
	require.Equal(t, app.EngineKernel, cfg.Engine)
	require.Equal(t, 2*time.Minute, cfg.Timeout)
	require.Equal(t, "env-token", cfg.Token)
	require.Equal(t, &app.PublishConfig{Type: app.PublishS3, Bucket: "runs", AccessKey: "AK", SecretKey: "SK"}, cfg.Publish)
}

func TestParse_RunFileError(t *testing.T) {
	clearEnv(t)

	loader := &stubLoader{err: errors.New("failed to parse HCL file run.hcl")}
	_, _, err := Parse(context.Background(), []string{"-config", "run.hcl"}, &bytes.Buffer{}, loader)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	require.Equal(t, 2, exitErr.Code)
	require.Equal(t, "run.hcl", loader.path)
}

func TestParse_RunFileSeesEnvFile(t *testing.T) {
	clearEnv(t)
	// The env file only fills variables that are not set at all.
	require.NoError(t, os.Unsetenv("JUPYTER_TOKEN"))

	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("JUPYTER_TOKEN=secret\n"), 0600))
	runFile := filepath.Join(dir, "run.hcl")
	require.NoError(t, os.WriteFile(runFile, []byte(`
engine "kernel" {
  server_url = "http://jupyter:8888"
  token      = env.JUPYTER_TOKEN
}
`), 0600))

	cfg, _, err := Parse(context.Background(),
		[]string{"-env-file", envFile, "-config", runFile}, &bytes.Buffer{}, hcl.NewLoader())
	require.NoError(t, err)
	require.Equal(t, "secret", cfg.Token)
	require.Equal(t, app.EngineKernel, cfg.Engine)
}

func TestParse_UnsupportedPublishType(t *testing.T) {
	clearEnv(t)
	t.Setenv("AWS_ACCESS_KEY_ID", "AK")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "SK")

	runFile := filepath.Join(t.TempDir(), "run.hcl")
	require.NoError(t, os.WriteFile(runFile, []byte(`publish "gcs" { bucket = "runs" }`), 0600))

	_, _, err := Parse(context.Background(), []string{"-config", runFile}, &bytes.Buffer{}, hcl.NewLoader())
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	require.Equal(t, 2, exitErr.Code)
	require.Contains(t, exitErr.Message, `invalid publish type "gcs"`)
}
