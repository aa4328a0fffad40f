package checks

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ralt/rpmcheck/internal/loader"
)

func wellFormedTags() map[string]string {
	return map[string]string{
		"summary":     "A tool that does one thing well",
		"description": "Longer text describing the tool in detail.",
		"license":     "MIT",
		"group":       "Development/Tools",
		"url":         "https://example.com/foo",
		"packager":    "Example Packagers <packaging@example.com>",
	}
}

func TestWellFormedPackageHasNoTagFindings(t *testing.T) {
	pkg := binaryPackage(loader.PackageInfo{
		Name: "foo", Version: "1.0", Release: "1",
		Tags: wellFormedTags(),
	})

	diags, err := TagsCheck{}.Run(context.Background(), pkg, nil, emptyConfig(t))
	require.NoError(t, err)
	assert.Empty(t, diags)
}

func TestMissingTags(t *testing.T) {
	pkg := binaryPackage(loader.PackageInfo{
		Name: "foo", Version: "1.0", Release: "1",
	})

	diags, err := TagsCheck{}.Run(context.Background(), pkg, nil, emptyConfig(t))
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{"no-summary", "no-description", "no-license", "no-packager", "no-group", "no-url"},
		messages(diags))
}

func TestMissingVersionOrRelease(t *testing.T) {
	pkg := binaryPackage(loader.PackageInfo{
		Name: "foo",
		Tags: wellFormedTags(),
	})

	diags, err := TagsCheck{}.Run(context.Background(), pkg, nil, emptyConfig(t))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"no-version", "no-release"}, messages(diags))
}

func TestSummaryFindings(t *testing.T) {
	tags := wellFormedTags()
	tags["summary"] = strings.Repeat("long ", 30)
	pkg := binaryPackage(loader.PackageInfo{
		Name: "foo", Version: "1.0", Release: "1", Tags: tags,
	})

	diags, err := TagsCheck{}.Run(context.Background(), pkg, nil, emptyConfig(t))
	require.NoError(t, err)
	assert.Contains(t, messages(diags), "summary-too-long")

	tags = wellFormedTags()
	tags["description"] = tags["summary"]
	pkg = binaryPackage(loader.PackageInfo{
		Name: "foo", Version: "1.0", Release: "1", Tags: tags,
	})
	diags, err = TagsCheck{}.Run(context.Background(), pkg, nil, emptyConfig(t))
	require.NoError(t, err)
	assert.Contains(t, messages(diags), "description-same-as-summary")
}

func TestInvalidURL(t *testing.T) {
	tags := wellFormedTags()
	tags["url"] = "example.com/no-scheme"
	pkg := binaryPackage(loader.PackageInfo{
		Name: "foo", Version: "1.0", Release: "1", Tags: tags,
	})

	diags, err := TagsCheck{}.Run(context.Background(), pkg, nil, emptyConfig(t))
	require.NoError(t, err)
	assert.Contains(t, messages(diags), "invalid-url")
}

func TestUnexpandedMacroInRelease(t *testing.T) {
	pkg := binaryPackage(loader.PackageInfo{
		Name: "foo", Version: "1.0", Release: "1%{?dist}",
		Tags: wellFormedTags(),
	})

	diags, err := TagsCheck{}.Run(context.Background(), pkg, nil, emptyConfig(t))
	require.NoError(t, err)
	assert.Contains(t, messages(diags), "unexpanded-macro-in-release")
}
