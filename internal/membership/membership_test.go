package membership

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatic(t *testing.T) {
	assert := assert.New(t)
	s := NewStatic(map[string][]string{"chess": {"u1", "u2"}, "empty": nil})
	assert.True(s.IsMember("chess", "u1"))
	assert.False(s.IsMember("chess", "u3"))
	assert.False(s.IsMember("empty", "u1"))
	assert.False(s.IsMember("unknown", "u1"))

	s.Reset(map[string][]string{"rowing": {"u3"}})
	assert.False(s.IsMember("chess", "u1"))
	assert.True(s.IsMember("rowing", "u3"))
}
