package tgui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarkup(t *testing.T) {
	assert.Equal(t, "<b>a&lt;b&gt;</b>", Bold("a<b>"))
	assert.Equal(t, "<code>x&amp;y</code>", Code("x&y"))
	assert.Equal(t, "&#34;q&#34;", Esc(`"q"`))
}

func TestMention(t *testing.T) {
	assert.Equal(t, `<a href="tg://user?id=42">id42</a>`, Mention("", 42))
	assert.Equal(t, `<a href="tg://user?id=7">Ann &amp; Bo</a>`, Mention("Ann & Bo", 7))
}

func TestClip(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"привіт", 3, "при…"},
		{"abc", 3, "abc"},
		{"abc", 0, ""},
		{"", 5, ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Clip(tc.in, tc.n), tc.in)
	}
}
