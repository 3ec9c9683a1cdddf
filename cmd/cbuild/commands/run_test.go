package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/cbuild/internal/config"
)

// scratchProject writes a minimal project whose fake toolchain produces an
// executable exiting with the given status.
func scratchProject(t *testing.T, exitCode string) string {
	t.Helper()
	root := t.TempDir()

	script := `#!/bin/sh
out=""
prev=""
compile=0
for a in "$@"; do
  [ "$a" = "-c" ] && compile=1
  if [ "$prev" = "-o" ]; then out="$a"; fi
  prev="$a"
done
if [ "$compile" = 1 ]; then
  : > "$out"
else
  printf '#!/bin/sh\nexit ` + exitCode + `\n' > "$out"
  chmod +x "$out"
fi
`
	cc := filepath.Join(t.TempDir(), "fakecc")
	require.NoError(t, os.WriteFile(cc, []byte(script), 0o755))

	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "include"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "main.c"), []byte("int main(void){return 0;}\n"), 0o644))

	manifest := "project:\n  name: demo\n  version: 0.1.0\nbuild:\n  compiler: " + cc + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, config.ManifestName), []byte(manifest), 0o644))
	return root
}

func TestRunCmdReturnsExitCodeError(t *testing.T) {
	root := scratchProject(t, "3")
	cli := &CLI{Manifest: filepath.Join(root, config.ManifestName)}

	err := (&RunCmd{}).Run(&Global{Ctx: context.Background()}, cli)
	require.Error(t, err)

	var exitErr *ExitCodeError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.Code)
	assert.Equal(t, "exit status 3", exitErr.Error())
}

func TestRunCmdSuccessReturnsNil(t *testing.T) {
	root := scratchProject(t, "0")
	cli := &CLI{Manifest: filepath.Join(root, config.ManifestName)}

	require.NoError(t, (&RunCmd{}).Run(&Global{Ctx: context.Background()}, cli))
}
