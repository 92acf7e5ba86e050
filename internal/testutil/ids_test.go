package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequentialIDs_DefaultPrefix(t *testing.T) {
	g := NewSequentialIDs("")
	assert.Equal(t, "kf-1", g.Generate())
	assert.Equal(t, "kf-2", g.Generate())
}

func TestSequentialIDs_Reset(t *testing.T) {
	g := NewSequentialIDs("m")
	g.Generate()
	g.Generate()
	g.Reset()
	assert.Equal(t, "m-1", g.Generate())
}

func TestSequentialIDs_Deterministic(t *testing.T) {
	g1 := NewSequentialIDs("")
	g2 := NewSequentialIDs("")
	for i := 0; i < 50; i++ {
		assert.Equal(t, g1.Generate(), g2.Generate())
	}
}
