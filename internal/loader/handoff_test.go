package loader

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHostState struct {
	metadata map[string]Metadata
	modules  map[string]EmbeddedModule
}

func (s *fakeHostState) EmbeddedMetadata(key string) (Metadata, bool) {
	md, ok := s.metadata[key]
	return md, ok
}

func (s *fakeHostState) EmbeddedModule(key string) (EmbeddedModule, bool) {
	m, ok := s.modules[key]
	return m, ok
}

type fakeEmbedded struct {
	runs int
}

func (m *fakeEmbedded) Instantiate(ctx context.Context, deps Dependencies) (any, error) {
	m.runs++
	return map[string]any{"greet": deps["x"]}, nil
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "bundleloaderWidgetConfig", ConfigKey("bundleloader", "Widget"))
	assert.Equal(t, "bundleloaderWidget", ModuleKey("bundleloader", "Widget"))
}

func TestRenderFragment(t *testing.T) {
	md := Metadata{ArtifactURL: "https://cdn/a.js?v=1&x=2", StyleURL: "https://cdn/a.css"}

	t.Run("metadata and hints", func(t *testing.T) {
		out, err := RenderFragment("bl", widget, md, FragmentOptions{})
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 3)
		assert.Equal(t, `<script>window["blWidgetConfig"] = {"artifactUrl":"https://cdn/a.js?v=1\u0026x=2","styleUrl":"https://cdn/a.css"};</script>`, lines[0])
		assert.Equal(t, `<link rel="preload" href="https://cdn/a.js?v=1&amp;x=2" as="script">`, lines[1])
		assert.Equal(t, `<link rel="stylesheet" href="https://cdn/a.css">`, lines[2])
		assert.NotContains(t, out, "BackupDefine")
	})

	t.Run("no stylesheet without style url", func(t *testing.T) {
		out, err := RenderFragment("bl", widget, Metadata{ArtifactURL: "https://cdn/a.js"}, FragmentOptions{})
		require.NoError(t, err)
		assert.NotContains(t, out, "stylesheet")
	})

	t.Run("precompute shim wraps the artifact script", func(t *testing.T) {
		out, err := RenderFragment("bl", widget, md, FragmentOptions{Precompute: true})
		require.NoError(t, err)
		shim := strings.Index(out, `window["blBackupDefine"] = window.define;`)
		capture := strings.Index(out, `window["blWidget"] = Array.prototype.slice.call(arguments);`)
		script := strings.Index(out, `<script src="https://cdn/a.js?v=1&amp;x=2"></script>`)
		restore := strings.Index(out, `window.define = window["blBackupDefine"];`)
		require.True(t, shim >= 0 && capture >= 0 && script >= 0 && restore >= 0, out)
		assert.Less(t, shim, capture)
		assert.Less(t, capture, script)
		assert.Less(t, script, restore)
	})
}

func TestLoadServer(t *testing.T) {
	md := Metadata{ArtifactURL: "https://cdn/a.js", StyleURL: "https://cdn/a.css"}
	f := newLoaderFixture(t, Config{StatePrefix: "bl"}, md, map[string]string{"https://cdn/a.js": "a"})

	res, err := f.loader.LoadServer(context.Background(), LoadRequest{Identity: widget}, FragmentOptions{Precompute: true})
	require.NoError(t, err)
	assert.Equal(t, md, res.Metadata)
	assert.Equal(t, "a", res.Module.(map[string]any)["source"])
	assert.Contains(t, res.Fragment, `window["blWidgetConfig"]`)
	assert.Contains(t, res.Fragment, `window["blWidget"] = Array.prototype.slice.call(arguments);`)
}

func TestLoadClient(t *testing.T) {
	md := Metadata{ArtifactURL: "https://cdn/a.js", StyleURL: "https://cdn/a.css"}
	sources := map[string]string{"https://cdn/a.js": "a"}

	t.Run("precomputed module skips resolution and execution", func(t *testing.T) {
		embedded := &fakeEmbedded{}
		state := &fakeHostState{
			metadata: map[string]Metadata{"blWidgetConfig": md},
			modules:  map[string]EmbeddedModule{"blWidget": embedded},
		}
		f := newLoaderFixture(t, Config{StatePrefix: "bl", State: state}, md, sources)

		v, err := f.loader.LoadClient(context.Background(), LoadRequest{Identity: widget, Dependencies: Dependencies{"x": "hi"}})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"greet": "hi"}, v)

		_, err = f.loader.LoadClient(context.Background(), LoadRequest{Identity: widget})
		require.NoError(t, err)
		assert.Equal(t, 1, embedded.runs)
		assert.Equal(t, int32(0), f.registry.calls.Load())
		assert.Equal(t, 0, f.fetcher.count("https://cdn/a.js"))
		assert.Equal(t, int32(0), f.executor.runs.Load())
		assert.Equal(t, []string{"https://cdn/a.css"}, f.loader.Styles().(*StyleSet).URLs())

		// The precomputed entry shares the artifact URL with a later network load.
		_, err = f.loader.Load(context.Background(), LoadRequest{Identity: widget})
		require.NoError(t, err)
		assert.Equal(t, int32(0), f.executor.runs.Load())
	})

	t.Run("embedded metadata skips resolution", func(t *testing.T) {
		state := &fakeHostState{metadata: map[string]Metadata{"blWidgetConfig": md}}
		f := newLoaderFixture(t, Config{StatePrefix: "bl", State: state}, Metadata{}, sources)

		v, err := f.loader.LoadClient(context.Background(), LoadRequest{Identity: widget})
		require.NoError(t, err)
		assert.Equal(t, "a", v.(map[string]any)["source"])
		assert.Equal(t, int32(0), f.registry.calls.Load())
		assert.Equal(t, int32(1), f.executor.runs.Load())
	})

	t.Run("no handoff state falls back to a full load", func(t *testing.T) {
		f := newLoaderFixture(t, Config{StatePrefix: "bl", State: &fakeHostState{}}, md, sources)

		_, err := f.loader.LoadClient(context.Background(), LoadRequest{Identity: widget})
		require.NoError(t, err)
		assert.Equal(t, int32(1), f.registry.calls.Load())
		assert.Equal(t, int32(1), f.executor.runs.Load())
	})

	t.Run("nil host state behaves like Load", func(t *testing.T) {
		f := newLoaderFixture(t, Config{}, md, sources)
		_, err := f.loader.LoadClient(context.Background(), LoadRequest{Identity: widget})
		require.NoError(t, err)
		assert.Equal(t, int32(1), f.registry.calls.Load())
	})
}
