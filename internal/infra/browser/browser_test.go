//go:build !integration

package browser_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-pipeline/internal/domain"
	"social-pipeline/internal/infra/browser"
	"social-pipeline/internal/infra/browser/browsertest"
)

var ladder = []browser.Locator{
	browser.CSS(`[data-testid="LoginNextButton"]`),
	browser.XPath(`//div[@role="button"][.//span[text()="Next"]]`),
	browser.Text(`div[role="button"]`, "next"),
}

func TestClickFirst_FallsThroughLadder(t *testing.T) {
	p := browsertest.NewPage()
	p.Set(ladder[2], 1)

	got, err := browser.ClickFirst(context.Background(), p, 0, ladder...)
	require.NoError(t, err)
	assert.Equal(t, ladder[2], got)
	assert.Equal(t, []string{ladder[2].String()}, p.Clicks)
}

func TestClickFirst_SkipsRungThatFailsToClick(t *testing.T) {
	p := browsertest.NewPage()
	p.Set(ladder[0], 1)
	p.Set(ladder[1], 1)
	p.ClickErr[ladder[0].String()] = errors.New("not clickable")

	got, err := browser.ClickFirst(context.Background(), p, 0, ladder...)
	require.NoError(t, err)
	assert.Equal(t, ladder[1], got)
}

func TestClickFirst_Exhausted(t *testing.T) {
	p := browsertest.NewPage()
	_, err := browser.ClickFirst(context.Background(), p, 0, ladder...)
	assert.ErrorIs(t, err, domain.ErrSelectorNotFound)
}

func TestTypeFirst(t *testing.T) {
	p := browsertest.NewPage()
	field := browser.CSS(`input[name="password"]`)
	p.Set(field, 1)

	_, err := browser.TypeFirst(context.Background(), p, 0, "secret", browser.CSS(`#missing`), field)
	require.NoError(t, err)
	assert.Equal(t, []browsertest.Typed{{Loc: field.String(), Text: "secret"}}, p.Typed)
}

func TestFirstPresent_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := browser.FirstPresent(ctx, browsertest.NewPage(), 0, ladder...)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPause(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, browser.Pause(ctx, 0), context.Canceled)
	assert.NoError(t, browser.Pause(context.Background(), 0))
}
