package cli

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/peterbourgon/ff/v3/ffcli"
)

func TestMapValue(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var creds map[string]string
	fsMapVar(fs, &creds, "creds", nil, "")
	if err := fs.Parse([]string{"-creds", "user1:pass1;user2:pa:ss2"}); err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	if creds["user1"] != "pass1" || creds["user2"] != "pa:ss2" {
		t.Fatalf("creds = %v", creds)
	}
	if err := fs.Parse([]string{"-creds", "nopass"}); err == nil {
		t.Fatal("Parse(nopass) = nil; want error")
	}
}

func TestVersionText(t *testing.T) {
	tests := []struct {
		version, commit, date string
		want                  string
	}{
		{"v1.2.3", "abc", "2024-01-01", "v1.2.3 abc 2024-01-01"},
		{"v1.2.3", "", "", "v1.2.3"},
	}
	for _, tt := range tests {
		if got := versionText(tt.version, tt.commit, tt.date); got != tt.want {
			t.Errorf("versionText(%q, %q, %q) = %q; want %q", tt.version, tt.commit, tt.date, got, tt.want)
		}
	}
	if got := versionText("", "", ""); got == "" {
		t.Error("versionText() is empty")
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, ".env")
	if err := os.WriteFile(env, []byte("TUNEQUIZ_TEST_VALUE=from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TUNEQUIZ_TEST_VALUE", "")
	os.Unsetenv("TUNEQUIZ_TEST_VALUE")

	if err := LoadEnv(filepath.Join(dir, "missing.env"), env); err != nil {
		t.Fatalf("LoadEnv() = %v", err)
	}
	if got := os.Getenv("TUNEQUIZ_TEST_VALUE"); got != "from-file" {
		t.Fatalf("env = %q; want from-file", got)
	}
}

func subcommand(t *testing.T, root *ffcli.Command, name string) *ffcli.Command {
	t.Helper()
	for _, c := range root.Subcommands {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("subcommand %q not found", name)
	return nil
}

func TestEnvAndConfigFile(t *testing.T) {
	dir := t.TempDir()
	config := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(config, []byte("query: jazz\nmax: 20\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TUNEQUIZ_YOUTUBE_KEY", "secret")

	root := New("", "", "")
	if err := root.Parse([]string{"pool", "-config", config, "-shuffle"}); err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	fs := subcommand(t, root, "pool").FlagSet
	want := map[string]string{
		"youtube-key": "secret",
		"query":       "jazz",
		"max":         "20",
		"shuffle":     "true",
		"order":       "viewCount",
	}
	for name, v := range want {
		if got := fs.Lookup(name).Value.String(); got != v {
			t.Errorf("-%s = %q; want %q", name, got, v)
		}
	}
}

func TestCommands(t *testing.T) {
	root := New("", "", "")
	for _, name := range []string{"version", "play", "serve", "pool"} {
		c := subcommand(t, root, name)
		if name == "version" {
			continue
		}
		if c.FlagSet.Lookup("config") == nil || c.FlagSet.Lookup("debug") == nil {
			t.Errorf("%s: missing config or debug flag", name)
		}
	}
	if got := subcommand(t, root, "serve").FlagSet.Lookup("addr").DefValue; got != ":3001" {
		t.Fatalf("serve -addr default = %q; want :3001", got)
	}
}
