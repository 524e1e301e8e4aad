package discover

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchesWindow_TitlePrefixIsCaseInsensitive(t *testing.T) {
	assert.True(t, matchesWindow("World of Warcraft", "SomeClass"))
	assert.True(t, matchesWindow("WORLD OF WARCRAFT - Wrath of the Lich King", "SomeClass"))
	assert.False(t, matchesWindow("Notepad", "SomeClass"))
}

func TestMatchesWindow_ClassPrefixIsCaseInsensitive(t *testing.T) {
	assert.True(t, matchesWindow("Untitled", "GxWindowClassD3d"))
	assert.True(t, matchesWindow("Untitled", "gxwindow"))
	assert.False(t, matchesWindow("Untitled", "Chrome_WidgetWin_1"))
}

func TestDedupeByPID_KeepsFirstOccurrence(t *testing.T) {
	in := []windowCandidate{
		{hwnd: 1, pid: 100, title: "first"},
		{hwnd: 2, pid: 100, title: "second"},
		{hwnd: 3, pid: 200, title: "third"},
	}
	out := dedupeByPID(in)
	assert.Len(t, out, 2)
	assert.Equal(t, "first", out[0].title)
	assert.Equal(t, "third", out[1].title)
}

func TestDedupeByPID_EmptyInput(t *testing.T) {
	assert.Empty(t, dedupeByPID(nil))
}
