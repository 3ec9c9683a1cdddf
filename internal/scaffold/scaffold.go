// Package scaffold creates new project trees: conventional directories, a
// starter source file, a manifest, and a fresh git repository.
package scaffold

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	git "github.com/go-git/go-git/v5"

	"git.home.luguber.info/inful/cbuild/internal/config"
	cberrors "git.home.luguber.info/inful/cbuild/internal/errors"
	"git.home.luguber.info/inful/cbuild/internal/logfields"
)

const mainTemplate = `#include <stdio.h>
#include "%[1]s.h"

int main(void) {
    printf("Hello from %[1]s!\n");
    return 0;
}
`

const headerTemplate = `#ifndef %[1]s_H
#define %[1]s_H

#endif /* %[1]s_H */
`

const testTemplate = `#include <stdio.h>
#include "%[1]s.h"

int main(void) {
    printf("Running %[1]s tests\n");
    return 0;
}
`

const gitignore = "build/\n"

// New creates a project directory at path. The last path element becomes
// the project name. The destination must not already exist.
func New(path string) error {
	if _, err := os.Stat(path); err == nil {
		return cberrors.New(cberrors.CategoryConfig, cberrors.SeverityFatal, "destination already exists").
			WithContext("path", path)
	}

	name := filepath.Base(filepath.Clean(path))
	m := config.Default(name, path)

	dirs := []string{
		path,
		filepath.Join(path, m.Paths.Source),
		filepath.Join(path, m.Paths.Source, "include"),
		filepath.Join(path, m.Paths.Include),
		filepath.Join(path, m.Paths.Tests),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return cberrors.StoreError("create project dir", err)
		}
	}

	guard := headerGuard(name)
	files := map[string]string{
		filepath.Join(path, m.Paths.Source, "main.c"):     fmt.Sprintf(mainTemplate, name),
		filepath.Join(path, m.Paths.Include, name+".h"):   fmt.Sprintf(headerTemplate, guard),
		filepath.Join(path, m.Paths.Tests, "test_main.c"): fmt.Sprintf(testTemplate, name),
		filepath.Join(path, ".gitignore"):                 gitignore,
	}
	for target, content := range files {
		if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
			return cberrors.StoreError("write project file", err)
		}
	}

	if err := m.Write(filepath.Join(path, config.ManifestName)); err != nil {
		return err
	}

	if _, err := git.PlainInit(path, false); err != nil {
		return cberrors.Wrap(err, cberrors.CategoryFileSystem, cberrors.SeverityFatal, "failed to initialize git repository")
	}

	slog.Info("Created project", slog.String("name", name), logfields.Path(path))
	return nil
}

// headerGuard derives an include-guard identifier from the project name.
func headerGuard(name string) string {
	guard := make([]rune, 0, len(name)+1)
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
			guard = append(guard, r-'a'+'A')
		case (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			guard = append(guard, r)
		default:
			guard = append(guard, '_')
		}
	}
	// C identifiers cannot start with a digit.
	if len(guard) > 0 && guard[0] >= '0' && guard[0] <= '9' {
		guard = append([]rune{'_'}, guard...)
	}
	return string(guard)
}
