package sefaz

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDigitoVerificador(t *testing.T) {
	// Rightmost digit weighs 2: a body ending in 1 sums to 2, resto 2, dv 9.
	corpo := strings.Repeat("0", 42) + "1"
	assert.Equal(t, 9, DigitoVerificador(corpo))

	// All zeros: resto 0 maps to dv 0.
	assert.Equal(t, 0, DigitoVerificador(strings.Repeat("0", 43)))
}

func TestChaveValida(t *testing.T) {
	corpo := strings.Repeat("0", 42) + "1"
	assert.True(t, ChaveValida(corpo+"9"))
	assert.False(t, ChaveValida(corpo+"8"))
	assert.False(t, ChaveValida(corpo))                   // 43 chars
	assert.False(t, ChaveValida(corpo+"9X"))              // 45 chars
	assert.False(t, ChaveValida(strings.Repeat("A", 44))) // non-digits
}

func TestChaveValidaAutoConsistente(t *testing.T) {
	corpo := "3523081234567800019058001000000612100000612"
	dv := DigitoVerificador(corpo)
	assert.True(t, ChaveValida(corpo+string(rune('0'+dv))))
}
