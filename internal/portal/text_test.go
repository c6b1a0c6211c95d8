package portal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Vorlesung Ã¼ber Analysis", want: "Vorlesung über Analysis"},
		{in: "GrÃ¶ÃŸe", want: "Größe"},
		{in: "  Plain title  ", want: "Plain title"},
		{in: "Already fine: Größe", want: "Already fine: Größe"},
		{in: "Rock &amp; Roll", want: "Rock & Roll"},
		{in: "L├Âsung", want: "Lösung"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FixText(tt.in), "FixText(%q)", tt.in)
	}
}
