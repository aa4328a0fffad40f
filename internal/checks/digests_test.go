package checks

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ralt/rpmcheck/internal/loader"
	"github.com/ralt/rpmcheck/internal/models"
)

func sha256Hex(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

func md5Hex(data string) string {
	sum := md5.Sum([]byte(data))
	return hex.EncodeToString(sum[:])
}

func TestDigestsCheck(t *testing.T) {
	payload := map[string]string{
		"usr/bin/good":     "intact content",
		"usr/bin/tampered": "replaced content",
		"usr/bin/legacy":   "md5 era content",
	}
	pkg := binaryPackage(loader.PackageInfo{
		Name: "foo", Version: "1.0", Release: "1",
		RunID: "testrun",
		Files: []loader.FileEntry{
			{Path: "/usr/bin/good", Mode: 0o100755, Owner: "root", Group: "root", Size: 14,
				Digest: sha256Hex("intact content")},
			{Path: "/usr/bin/tampered", Mode: 0o100755, Owner: "root", Group: "root", Size: 16,
				Digest: sha256Hex("original content")},
			{Path: "/usr/bin/legacy", Mode: 0o100755, Owner: "root", Group: "root", Size: 15,
				Digest: md5Hex("md5 era content")},
			// Listed in the header but absent from the payload
			{Path: "/usr/bin/vanished", Mode: 0o100755, Owner: "root", Group: "root", Size: 5,
				Digest: sha256Hex("gone")},
			// Ghosts, digest-less entries, and unknown digest widths are skipped
			{Path: "/var/log/foo.log", Mode: 0o100644, Owner: "root", Group: "root",
				Flags: loader.FlagGhost, Digest: strings.Repeat("0", 64)},
			{Path: "/usr/bin/nodigest", Mode: 0o100755, Owner: "root", Group: "root", Size: 1},
			{Path: "/usr/bin/oddwidth", Mode: 0o100755, Owner: "root", Group: "root", Size: 1,
				Digest: "abcdef"},
		},
		Expand: func(dest string) error {
			for path, content := range payload {
				full := filepath.Join(dest, path)
				if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
					return err
				}
				if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
					return err
				}
			}
			return nil
		},
	})
	defer pkg.Close()

	diags, err := DigestsCheck{}.Run(context.Background(), pkg, nil, emptyConfig(t))
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{"file-digest-mismatch", "unreadable-payload-file"},
		messages(diags))

	for _, d := range diags {
		switch d.Message {
		case "file-digest-mismatch":
			assert.Equal(t, models.SeverityError, d.Severity)
			assert.Equal(t, []string{"/usr/bin/tampered"}, d.Args)
		case "unreadable-payload-file":
			assert.Equal(t, []string{"/usr/bin/vanished"}, d.Args)
		}
	}
}

func TestDigestsCheckSkipsInstalledAndSourcePackages(t *testing.T) {
	installed := loader.NewPackage(loader.PackageInfo{
		Name: "foo", Version: "1.0", Release: "1", Arch: "x86_64",
		SourceRPM:     "foo-1.0-1.src.rpm",
		InstalledRoot: "/",
		Files: []loader.FileEntry{
			{Path: "/usr/bin/foo", Mode: 0o100755, Owner: "root", Group: "root", Size: 1,
				Digest: strings.Repeat("0", 64)},
		},
	})
	diags, err := DigestsCheck{}.Run(context.Background(), installed, nil, emptyConfig(t))
	require.NoError(t, err)
	assert.Empty(t, diags)

	source := loader.NewPackage(loader.PackageInfo{
		Name: "foo", Version: "1.0", Release: "1",
	})
	diags, err = DigestsCheck{}.Run(context.Background(), source, nil, emptyConfig(t))
	require.NoError(t, err)
	assert.Empty(t, diags)
}

func TestDigestsCheckCorruptPayload(t *testing.T) {
	pkg := binaryPackage(loader.PackageInfo{
		Name: "foo", Version: "1.0", Release: "1",
		RunID: "testrun",
		Files: []loader.FileEntry{
			{Path: "/usr/bin/foo", Mode: 0o100755, Owner: "root", Group: "root", Size: 1,
				Digest: strings.Repeat("0", 64)},
		},
		Expand: func(string) error {
			return os.ErrInvalid
		},
	})
	defer pkg.Close()

	diags, err := DigestsCheck{}.Run(context.Background(), pkg, nil, emptyConfig(t))
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, "corrupted-payload", diags[0].Message)
}
