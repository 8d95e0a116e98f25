//go:build darwin || linux

package transcode

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestBuildRoots(t *testing.T) {
	root := t.TempDir()
	deep := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(deep, 0o755); err != nil {
		t.Fatal(err)
	}

	got := buildRoots(deep, maxBuildWalk)
	want := []string{deep, filepath.Join(root, "a", "b"), filepath.Join(root, "a"), root}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("without go.mod: %v, want %v", got, want)
	}

	if err := os.WriteFile(filepath.Join(root, "a", "go.mod"), []byte("module x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got = buildRoots(deep, maxBuildWalk)
	want = []string{deep, filepath.Join(root, "a", "b"), filepath.Join(root, "a")}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("with go.mod: %v, want %v", got, want)
	}

	if got := buildRoots("/", maxBuildWalk); len(got) != 1 {
		t.Errorf("from filesystem root: %v", got)
	}
}

func TestLibSearchPaths(t *testing.T) {
	t.Setenv("MEDIA_TEST_LIB_PATH", "/opt/custom/libmedia_test.so")
	t.Setenv("STREAM_SDK_LIB_PATH", "/opt/sdk")
	paths := libSearchPaths("media_test", "MEDIA_TEST_LIB_PATH")
	if len(paths) < 3 {
		t.Fatalf("paths = %v", paths)
	}
	if paths[0] != "/opt/custom/libmedia_test.so" {
		t.Errorf("explicit path not first: %s", paths[0])
	}
	if paths[1] != filepath.Join("/opt/sdk", sharedLibName("media_test")) {
		t.Errorf("sdk path = %s", paths[1])
	}
	for _, p := range paths {
		if !strings.HasSuffix(p, sharedLibName("media_test")) && p != paths[0] {
			t.Errorf("unexpected entry %s", p)
		}
	}
}
