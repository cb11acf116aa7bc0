package formatter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mark3labs/dialogia/internal/ast"
	"github.com/mark3labs/dialogia/internal/collab"
	"github.com/mark3labs/dialogia/internal/dialogue"
	"github.com/mark3labs/dialogia/internal/prefs"
)

func newTestFormatter() *Formatter {
	return New(prefs.NewMemory(), nil)
}

func TestDidntUnknownLocaleFallsBackToEnglish(t *testing.T) {
	f := newTestFormatter()
	want := f.Didnt("en")
	got := f.Didnt("fr")
	assert.Equal(t, want, got)
}

func TestExecutorErrorInterpolatesMessage(t *testing.T) {
	f := newTestFormatter()
	msg := f.ExecutorError("en", errors.New("device offline"))
	text, ok := msg.(dialogue.TextMessage)
	require.True(t, ok)
	assert.Contains(t, text.Text, "device offline")
}

func TestConfirmationProseWalksInvocationsDeterministically(t *testing.T) {
	f := newTestFormatter()
	program := &ast.Program{
		Statements: []*ast.Statement{
			{
				Action: &ast.Invocation{
					Kind:     ast.KindAction,
					Class:    "com.twitter",
					Function: "post",
					Slots: []*ast.Slot{
						{Name: "status", Value: "hello", Filled: true},
					},
				},
			},
		},
	}

	prose1 := f.ConfirmationProse("en", program)
	prose2 := f.ConfirmationProse("en", program)
	assert.Equal(t, prose1, prose2)
	assert.Contains(t, prose1, "com.twitter.post")
	assert.Contains(t, prose1, "status=hello")
}

func TestRenderResultFallsBackToLinkWithoutPreview(t *testing.T) {
	f := newTestFormatter()
	msg := f.RenderResult(context.Background(), "en", collab.ExecutionEvent{
		OutputType:  "com.bing.web_search",
		OutputValue: map[string]any{"link": "https://example.com/a"},
	})
	link, ok := msg.(dialogue.LinkMessage)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/a", link.URL)
}

func TestRenderResultSurfacesExecutorError(t *testing.T) {
	f := newTestFormatter()
	msg := f.RenderResult(context.Background(), "en", collab.ExecutionEvent{
		Err: errors.New("timeout"),
	})
	text, ok := msg.(dialogue.TextMessage)
	require.True(t, ok)
	assert.Contains(t, text.Text, "timeout")
}

func TestRenderResultPictureTakesPriority(t *testing.T) {
	f := newTestFormatter()
	msg := f.RenderResult(context.Background(), "en", collab.ExecutionEvent{
		OutputValue: map[string]any{
			"picture_url": "https://example.com/cat.png",
			"link":        "https://example.com/a",
		},
	})
	pic, ok := msg.(dialogue.PictureMessage)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/cat.png", pic.URL)
}
