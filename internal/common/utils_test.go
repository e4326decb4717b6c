package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasAny(t *testing.T) {
	assert.True(t, HasAny("Fwd: SlideShow pics", "slideshow"))
	assert.True(t, HasAny("photos for the frame", "slideshow", "frame"))
	assert.False(t, HasAny("hello", "slideshow"))
	assert.False(t, HasAny("anything", ""))
	assert.False(t, HasAny("anything"))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, SplitList(" A@example.com, ,b@Example.com "))
	assert.Nil(t, SplitList(""))
}
